package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/youme-api/internal/application/pairing"
	"github.com/youme-api/internal/config"
	"github.com/youme-api/internal/infrastructure/dynamo"
	"github.com/youme-api/internal/infrastructure/kafka"
	"github.com/youme-api/internal/observability"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type codeExpirer interface {
	ExpireStaleCodes(ctx context.Context, ttl time.Duration) (int, error)
}

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
	metrics, err := observability.NewMetrics(otel.Meter("youme-sweeper"))
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsAddr, metricsDone, err := serveMetrics(ctx, fmt.Sprintf(":%s", cfg.SweeperMetricsPort), metricsHandler, logger)
	if err != nil {
		logger.Fatal("metrics listener", zap.Error(err))
	}
	logger.Info("metrics listening", zap.String("addr", metricsAddr.String()))

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("aws config", zap.Error(err))
	}
	dynamoClient := dynamo.NewClient(awsCfg, cfg)

	events := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
	defer events.Close()

	svc := pairing.NewService(pairing.ServiceDeps{
		Profiles: dynamo.NewProfileRepo(dynamoClient, cfg.DynamoTables.Users),
		Codes:    dynamo.NewCodeRepo(dynamoClient, cfg.DynamoTables.CoupleCodes),
		Tx:       dynamo.NewPairingTx(dynamoClient, cfg.DynamoTables),
		Events:   events,
		Metrics:  metrics,
		Logger:   logger,
		CodeTTL:  cfg.CoupleCodeTTL,
	})

	logger.Info("sweeper starting",
		zap.Duration("ttl", cfg.CoupleCodeTTL), zap.Duration("interval", cfg.CoupleCodeSweepInterval))
	run(ctx, svc, cfg.CoupleCodeTTL, cfg.CoupleCodeSweepInterval, logger)
	<-metricsDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = observability.Shutdown(shutdownCtx, meterProvider, logger)
	logger.Info("sweeper stopped")
}

// serveMetrics exposes the Prometheus handler on addr until ctx is done.
// The returned channel closes once the listener has shut down.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) (net.Addr, <-chan struct{}, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", handler)
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}()
	return ln.Addr(), done, nil
}

// run sweeps once immediately and then on every tick until ctx is done.
func run(ctx context.Context, svc codeExpirer, ttl, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweep(ctx, svc, ttl, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, svc codeExpirer, ttl time.Duration, logger *zap.Logger) {
	removed, err := svc.ExpireStaleCodes(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("stale code sweep failed", zap.Int("removed", removed), zap.Error(err))
		return
	}
	logger.Info("stale code sweep", zap.Int("removed", removed))
}
