package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/kevin07696/payme-service/internal/adapters/database"
	"github.com/kevin07696/payme-service/internal/adapters/postgres"
	"github.com/kevin07696/payme-service/internal/adapters/secrets"
	stripeadapter "github.com/kevin07696/payme-service/internal/adapters/stripe"
	"github.com/kevin07696/payme-service/internal/auth"
	"github.com/kevin07696/payme-service/internal/config"
	"github.com/kevin07696/payme-service/internal/handlers/api"
	cronHandler "github.com/kevin07696/payme-service/internal/handlers/cron"
	"github.com/kevin07696/payme-service/internal/handlers/webhook"
	"github.com/kevin07696/payme-service/internal/services/accounts"
	"github.com/kevin07696/payme-service/internal/services/events"
	"github.com/kevin07696/payme-service/internal/services/expiry"
	"github.com/kevin07696/payme-service/internal/services/fees"
	"github.com/kevin07696/payme-service/internal/services/links"
	"github.com/kevin07696/payme-service/internal/services/reconciliation"
	"github.com/kevin07696/payme-service/internal/services/routing"
	"github.com/kevin07696/payme-service/internal/services/subscribers"
	"github.com/kevin07696/payme-service/internal/services/transactions"
	pkghttp "github.com/kevin07696/payme-service/pkg/http"
	"github.com/kevin07696/payme-service/pkg/middleware"
	"github.com/kevin07696/payme-service/pkg/observability"
	"github.com/kevin07696/payme-service/pkg/shutdown"
)

const healthProbeInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()
	logger.Info("Starting payme service", zap.String("environment", cfg.Environment))

	sm, err := initSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return err
	}
	creds, err := secrets.LoadStripeCredentials(ctx, sm, cfg.Stripe.SecretKeyPath, cfg.Stripe.WebhookSecretPath, logger)
	if err != nil {
		return err
	}
	if creds.WebhookSecret == "" {
		logger.Warn("Stripe webhook secret not configured; webhook events will be refused")
	}

	dbCfg := database.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	db, err := database.NewPostgreSQLAdapter(ctx, dbCfg, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	shutdownMgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	shutdownMgr.Register("database", func(context.Context) error {
		db.Close()
		return nil
	})

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	db.StartPoolMonitoring(monitorCtx, time.Minute)
	shutdownMgr.Register("pool-monitor", func(context.Context) error {
		stopMonitor()
		return nil
	})

	pool := db.GetDB()
	userRepo := postgres.NewUserRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	linkRepo := postgres.NewLinkRepository(pool)
	txnRepo := postgres.NewTransactionRepository(pool)
	subscriberRepo := postgres.NewSubscriberRepository(pool)

	metrics := observability.NewBusinessMetrics(prometheus.DefaultRegisterer)

	feeEngine, err := fees.NewEngine(fees.Config{
		StripeFeePercent:  cfg.Fees.StripeFeePercent,
		ServiceFeePercent: cfg.Fees.ServiceFeePercent,
	})
	if err != nil {
		return fmt.Errorf("fee configuration: %w", err)
	}

	stripeClient := stripeadapter.NewClient(
		creds.SecretKey,
		pkghttp.NewHTTPClient(pkghttp.StripeClientConfig(), 80*time.Second),
		logger,
	)
	linkRouter := routing.NewRouter(stripeClient)
	sweeper := routing.NewSweeper(accountRepo, stripeClient, metrics, logger)

	extractor := events.NewExtractor(stripeClient, stripeClient, logger)
	reconciler := reconciliation.NewService(db, accountRepo, linkRepo, txnRepo, subscriberRepo, extractor, metrics, logger)
	accountSvc := accounts.NewService(accountRepo, stripeClient, sweeper, metrics, logger)
	subscriberSvc := subscribers.NewService(subscriberRepo, linkRepo, accountRepo, stripeClient, logger)
	linkSvc := links.NewService(linkRepo, linkRouter, feeEngine, metrics, logger)
	txnSvc := transactions.NewService(txnRepo, stripeClient, logger)
	expirySvc := expiry.NewService(linkRepo, accountRepo, linkRouter, metrics, logger)

	jwks := auth.NewJWKSCache(
		pkghttp.NewHTTPClient(pkghttp.DefaultClientConfig(), 10*time.Second),
		cfg.Cognito.JWKSURL(),
		cfg.Cognito.JWKSCacheTTL,
		logger,
	)
	authenticator := auth.NewAuthenticator(
		auth.NewVerifier(jwks, cfg.Cognito.Issuer(), cfg.Cognito.AppClientID),
		auth.NewResolver(userRepo, accountRepo, metrics, logger),
		logger,
	)

	healthChecker := observability.NewHealthChecker(map[string]observability.Pinger{"database": db})
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	shutdownMgr.Register("rate-limiter", func(context.Context) error {
		rateLimiter.Shutdown()
		return nil
	})

	router := api.NewRouter(api.Handlers{
		Accounts:      api.NewAccountHandler(accountSvc, logger),
		Links:         api.NewLinkHandler(linkSvc, logger),
		Transactions:  api.NewTransactionHandler(txnSvc, logger),
		Subscribers:   api.NewSubscriberHandler(subscriberSvc, logger),
		Transfers:     api.NewTransferHandler(sweeper, logger),
		Webhook:       webhook.NewHandler(stripeadapter.NewWebhookVerifier(creds.WebhookSecret), reconciler, subscriberSvc, accountSvc, metrics, logger),
		ExpireLinks:   cronHandler.NewExpiryHandler(expirySvc, logger, cfg.Cron.Secret).ExpireLinks,
		Health:        healthChecker.HealthHandler(),
		Authenticator: authenticator,
		RateLimiter:   rateLimiter,
	}, api.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		HSTS:           cfg.IsProduction(),
	}, logger)

	if cfg.Cron.Enabled {
		scheduler := expiry.NewScheduler(expirySvc, cfg.Cron.ExpireLinksSchedule, logger)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("expiry scheduler: %w", err)
		}
		shutdownMgr.Register("expiry-scheduler", func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	metricsServer := observability.StartMetricsServer(
		fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		prometheus.DefaultGatherer,
		healthChecker,
		logger,
	)
	shutdownMgr.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})

	grpcServer, err := startHealthServer(cfg.Server.GRPCPort, healthChecker, logger, shutdownMgr)
	if err != nil {
		return err
	}
	shutdownMgr.Register("grpc-health", func(context.Context) error {
		grpcServer.GracefulStop()
		return nil
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	shutdownMgr.Register("http-server", httpServer.Shutdown)

	return shutdownMgr.WaitForShutdown(ctx)
}

// startHealthServer serves grpc.health.v1 on port, kept in step with the
// database health check so orchestrators can probe over gRPC.
func startHealthServer(port int, checker *observability.HealthChecker, logger *zap.Logger, mgr *shutdown.Manager) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	probeCtx, stopProbe := context.WithCancel(context.Background())
	mgr.Register("grpc-health-probe", func(context.Context) error {
		stopProbe()
		healthServer.Shutdown()
		return nil
	})
	go func() {
		ticker := time.NewTicker(healthProbeInterval)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			if !checker.Check(probeCtx).Healthy() {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			healthServer.SetServingStatus("", status)

			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		logger.Info("gRPC health server listening", zap.String("address", lis.Addr().String()))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC health server failed", zap.Error(err))
		}
	}()
	return server, nil
}

// initLogger uses the production encoder in production and the development one elsewhere
func initLogger(cfg *config.Config) *zap.Logger {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
