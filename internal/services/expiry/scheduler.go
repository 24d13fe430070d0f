package expiry

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// runTimeout bounds a single scheduled run
const runTimeout = 5 * time.Minute

// Expirer runs one expiry pass
type Expirer interface {
	ExpireLinks(ctx context.Context, now time.Time) (Result, error)
}

// Scheduler runs the expiry job on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	expirer  Expirer
	logger   *zap.Logger
	schedule string
}

// NewScheduler creates a scheduler. Panics inside a run are recovered and logged.
func NewScheduler(expirer Expirer, schedule string, logger *zap.Logger) *Scheduler {
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		expirer:  expirer,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the job and starts the scheduler
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	s.logger.Info("Scheduled link expiry job", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop stops scheduling and returns a context done once running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	res, err := s.expirer.ExpireLinks(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("Link expiry run failed", zap.Error(err))
		return
	}
	if res.Partial() {
		s.logger.Warn("Link expiry run partially failed",
			zap.Int("failed", res.Failed),
			zap.Strings("errors", res.Errors),
		)
	}
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
