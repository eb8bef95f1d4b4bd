package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/youme-api/internal/application/notification"
	"github.com/youme-api/internal/application/pairing"
	"github.com/youme-api/internal/application/session"
	"github.com/youme-api/internal/config"
	"github.com/youme-api/internal/infrastructure/dynamo"
	"github.com/youme-api/internal/infrastructure/google"
	jwtinfra "github.com/youme-api/internal/infrastructure/jwt"
	"github.com/youme-api/internal/infrastructure/kafka"
	redisinfra "github.com/youme-api/internal/infrastructure/redis"
	s3infra "github.com/youme-api/internal/infrastructure/s3"
	"github.com/youme-api/internal/infrastructure/smtp"
	"github.com/youme-api/internal/infrastructure/sns"
	"github.com/youme-api/internal/observability"
	transporthttp "github.com/youme-api/internal/transport/http"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	meterProvider, metricsHandler, err := observability.InitTelemetry()
	if err != nil {
		logger.Fatal("telemetry init failed", zap.Error(err))
	}
	metrics, err := observability.NewMetrics(otel.Meter("youme-api"))
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}

	ctx := context.Background()

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("aws config", zap.Error(err))
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(awsCfg, cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables, logger)

	profiles := dynamo.NewProfileRepo(dynamoClient, cfg.DynamoTables.Users)
	codes := dynamo.NewCodeRepo(dynamoClient, cfg.DynamoTables.CoupleCodes)
	pairingTx := dynamo.NewPairingTx(dynamoClient, cfg.DynamoTables)

	gateway, err := google.NewGateway(ctx, cfg)
	if err != nil {
		logger.Fatal("identity gateway", zap.Error(err))
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer redisClient.Close()

	// A nil publisher (no brokers configured) discards events.
	events := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
	if events == nil {
		logger.Warn("KAFKA_BROKERS not set, domain events are discarded")
	}
	defer events.Close()

	ledger := s3infra.NewLedger(s3infra.NewClient(awsCfg, cfg), cfg.ReconciliationBucket)

	notifier := notification.NewService(notification.ServiceDeps{
		Mailer: smtp.NewMailer(cfg),
		SMS:    sns.NewSender(awsCfg, cfg),
		Logger: logger,
	})

	// Authenticated routes stay closed without a JWT provider.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		logger.Warn("JWT provider not available", zap.Error(err))
	}

	pairingSvc := pairing.NewService(pairing.ServiceDeps{
		Profiles: profiles,
		Codes:    codes,
		Tx:       pairingTx,
		Events:   events,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   logger,
		CodeTTL:  cfg.CoupleCodeTTL,
	})

	deps := &transporthttp.Deps{
		Logger:  logger,
		Pairing: pairingSvc,
		Session: session.Deps{
			Gateway:  gateway,
			Profiles: profiles,
			Accounts: pairingTx,
			Codes:    codes,
			Ledger:   ledger,
			Events:   events,
			Logger:   logger,
		},
		Prefs: func(deviceID string) session.Prefs {
			return redisinfra.NewPrefs(redisClient, deviceID)
		},
		Sessions:       redisinfra.NewSessionStore(redisClient),
		Limiter:        redisinfra.NewAttemptLimiter(redisClient, cfg.LinkAttemptLimit, cfg.LinkAttemptWindow),
		Watcher:        dynamo.NewProfileWatcher(profiles, cfg.ConnectionPollInterval),
		JWTProvider:    jwtProvider,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	}

	router := transporthttp.NewRouter(cfg, deps)

	// WriteTimeout stays 0: the connection stream is long-lived.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	_ = observability.Shutdown(shutdownCtx, meterProvider, logger)
	logger.Info("server stopped")
}
