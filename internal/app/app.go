package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/albaran/internal/config"
	healthcheck "github.com/vladislavdragonenkov/albaran/internal/health"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
	"github.com/vladislavdragonenkov/albaran/internal/service/creation"
	"github.com/vladislavdragonenkov/albaran/internal/service/journal"
	"github.com/vladislavdragonenkov/albaran/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/albaran/internal/service/outbox"
	transporthttp "github.com/vladislavdragonenkov/albaran/internal/transport/http"
	"github.com/vladislavdragonenkov/albaran/internal/version"
)

const healthSyncInterval = 5 * time.Second

// Run собирает зависимости и обслуживает REST API, gRPC health и метрики до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	settings, warnings := config.LoadFromEnv(os.LookupEnv)
	for _, w := range warnings {
		logger.WithError(w).Warn("некорректная настройка, используем значение по умолчанию")
	}
	logger.WithField("settings", settings.Masked()).Info("настройки загружены")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Ошибка Kafka уже залогирована: сервис работает без неё.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	lifecycleMetrics := metrics.NewLifecycleMetrics()
	recorder := journal.NewRecorder(deps.outboxRepo, deps.timelineRepo, lifecycleMetrics, logger.WithField("component", "journal"))
	gateway := newExportGateway(settings, cfg, logger)

	engine := lifecycle.NewEngine(
		deps.repo,
		deps.clients,
		gateway,
		recorder,
		logger.WithField("component", "lifecycle"),
		lifecycle.WithMetrics(lifecycleMetrics),
		lifecycle.WithExportRetry(settings.Snapshot().AllowExportRetry),
	)
	creator := creation.NewService(
		deps.repo,
		deps.clients,
		recorder,
		logger.WithField("component", "creation"),
		creation.WithMetrics(lifecycleMetrics),
	)

	publisher, dlqPublisher := newOutboxPublishers(kafkaProducer, cfg.KafkaTopic, logger)
	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlqPublisher != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(dlqPublisher))
	}
	worker := outbox.NewWorker(deps.outboxRepo, publisher, workerOpts...)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.outboxRepo, cfg.OutboxMaxPending))
	if deps.store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", deps.store.Ping))
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	go worker.Run(runCtx)
	go healthHandler.RunGRPCSync(runCtx, healthServer, healthSyncInterval)

	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)

	api := transporthttp.NewServer(transporthttp.Deps{
		Orders:    deps.repo,
		Clients:   deps.clients,
		Timeline:  deps.timelineRepo,
		Lifecycle: engine,
		Creator:   creator,
		Settings:  settings,
		Company:   cfg.Company,
		Logger:    logger.WithField("component", "http"),
	})

	errCh := make(chan error, 2)
	apiSrv := startAPIServer(cfg.HTTPAddr, api, logger, errCh)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.Shutdown()
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		healthServer.Shutdown()
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// stopGRPC пытается остановить сервер мягко, по таймауту — принудительно.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
