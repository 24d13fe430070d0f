// Package shutdown runs registered stop functions in reverse order on SIGINT or SIGTERM.
package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// Func stops one component
type Func func(context.Context) error

type component struct {
	stop Func
	name string
}

// Manager coordinates graceful shutdown. Components stop in reverse
// registration order, one at a time, so servers drain before the database closes.
type Manager struct {
	logger     *zap.Logger
	components []component
	timeout    time.Duration
	mu         sync.Mutex
}

// NewManager creates a manager whose whole shutdown must finish within timeout
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a component to stop during shutdown
func (m *Manager) Register(name string, stop Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, stop: stop})
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx is done, then shuts down
func (m *Manager) WaitForShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	m.logger.Info("Shutdown signal received", zap.Duration("timeout", m.timeout))
	return m.Shutdown()
}

// Shutdown stops every component and joins their errors
func (m *Manager) Shutdown() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	components := make([]component, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		begin := time.Now()
		if err := c.stop(ctx); err != nil {
			shutdownErrors.WithLabelValues(c.name).Inc()
			m.logger.Error("Component shutdown failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		m.logger.Info("Component stopped",
			zap.String("component", c.name),
			zap.Duration("elapsed", time.Since(begin)),
		)
	}

	shutdownDuration.Observe(time.Since(start).Seconds())
	m.logger.Info("Shutdown complete", zap.Duration("elapsed", time.Since(start)), zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
