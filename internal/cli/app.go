package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/config"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/alert"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/evaluation"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/events"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/extract"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/ledger"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/matching"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/messaging/consumer"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/messaging/producer"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/metrics"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
	worker "github.com/GylleadheBodedono/API-Connect-Checklist/processing"
	core "github.com/GylleadheBodedono/API-Connect-Checklist/reconciliation/service/core"
	grpchandler "github.com/GylleadheBodedono/API-Connect-Checklist/reconciliation/service/grpc"
	httphandler "github.com/GylleadheBodedono/API-Connect-Checklist/reconciliation/service/http"
)

// app is the wired reconciler process
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	metrics   *metrics.Metrics
	bus       *events.Bus
	store     *ledger.Store
	service   *core.Service
	mux       *http.ServeMux
	producer  producer.Producer
	forwarder *events.Forwarder
	consumer  consumer.Consumer
	worker    *worker.Worker
}

// newApp builds every component from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Monitoring.EnableMetrics {
		a.metrics = metrics.New()
	}

	a.bus = events.NewBus(cfg.EventBus.Capacity, cfg.EventBus.SnapshotSize)
	a.metrics.ObserveEventBus(a.bus.Len)

	tolerance, err := models.ParseDecimal(cfg.Matching.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("invalid matching tolerance: %w", err)
	}
	cmp, err := matching.NewComparator(tolerance)
	if err != nil {
		return nil, err
	}

	backend, err := openLedger(ctx, cfg.Ledger, logger.Named("ledger"))
	if err != nil {
		return nil, err
	}
	a.store = ledger.NewStore(backend, cmp, cfg.Ledger.TimeoutDuration())

	if cfg.KafkaProducer.Enabled() {
		p, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger.Named("producer"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize Kafka producer: %w", err)
		}
		a.producer = p
		a.forwarder = events.NewForwarder(events.ForwarderConfig{
			BatchSize:    cfg.EventBus.MirrorBatchSize,
			BatchTimeout: cfg.EventBus.MirrorBatchTimeoutDuration(),
			MaxBuffered:  cfg.EventBus.MirrorMaxBuffered,
		}, p, a.metrics.RecordMirrorDrop, logger.Named("mirror"))
		a.bus.SetSink(a.forwarder)
	}

	a.service = core.NewService(
		evaluation.NewClient(cfg.Evaluation.BaseURL, cfg.Evaluation.Token, cfg.Evaluation.TimeoutDuration(), logger.Named("evaluation")),
		extract.New(cfg.Fields.Primary, cfg.Fields.Secondary),
		a.store,
		newDispatcher(cfg, logger.Named("alert")),
		a.bus,
		a.metrics,
		logger.Named("core"),
		core.Options{
			PrimaryChecklistID:   cfg.Evaluation.ChecklistFor(models.RolePrimary),
			SecondaryChecklistID: cfg.Evaluation.ChecklistFor(models.RoleSecondary),
			DispatchTimeout:      cfg.Alert.TimeoutDuration(),
		},
	)

	handler := httphandler.NewHandler(a.service, a.bus, a.store, logger.Named("http"), httphandler.Options{
		ServiceName:     cfg.ServiceName,
		MaxBodyBytes:    cfg.HttpServer.MaxBodyBytes,
		MetricsPath:     cfg.Monitoring.MetricsPath,
		HealthCheckPath: cfg.Monitoring.HealthCheckPath,
	})
	a.mux = handler.Routes(a.metrics)

	if cfg.KafkaConsumer.Enabled() {
		if cfg.KafkaConsumer.Mock() {
			a.consumer = consumer.NewMockConsumer(logger.Named("consumer"), 100)
		} else {
			c, err := consumer.NewKafkaConsumer(cfg.KafkaConsumer, logger.Named("consumer"))
			if err != nil {
				a.close()
				return nil, fmt.Errorf("failed to initialize Kafka consumer: %w", err)
			}
			a.consumer = c
		}
		a.worker = worker.New(cfg.Worker, logger.Named("worker"), a.consumer, a.service, a.metrics)
	}

	return a, nil
}

func openLedger(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (ledger.Backend, error) {
	switch cfg.Backend {
	case config.LedgerPostgres:
		b, err := ledger.NewPostgresBackend(ctx, ledger.PostgresOptions{
			DSN:         cfg.Database.DSN,
			MaxConns:    int32(cfg.Database.MaxConnections),
			MinConns:    int32(cfg.Database.MinConnections),
			MaxIdleTime: cfg.Database.MaxIdleDuration(),
			MaxLifetime: cfg.Database.MaxLifetimeDuration(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres ledger: %w", err)
		}
		return b, nil
	case config.LedgerSQLite:
		b, err := ledger.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite ledger: %w", err)
		}
		return b, nil
	default:
		logger.Warn("using the in-memory ledger, rows are lost on restart")
		return ledger.NewMemoryBackend(), nil
	}
}

func newDispatcher(cfg *config.Config, logger *zap.Logger) alert.Dispatcher {
	if cfg.Alert.WebhookURL == "" {
		return alert.NewLogDispatcher(logger)
	}
	return alert.NewWebhookDispatcher(cfg.Alert.WebhookURL, cfg.Alert.TimeoutDuration(), cfg.Location(), logger)
}

// run serves until ctx is cancelled, then shuts everything down in order
func (a *app) run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	var httpServer *http.Server
	if a.cfg.HttpListenAddr != "" {
		lis, err := net.Listen("tcp", a.cfg.HttpListenAddr)
		if err != nil {
			return fmt.Errorf("unable to listen on HTTP address %s: %w", a.cfg.HttpListenAddr, err)
		}
		httpServer = &http.Server{
			Handler:        a.mux,
			ReadTimeout:    a.cfg.HttpServer.ReadTimeoutDuration(),
			WriteTimeout:   a.cfg.HttpServer.WriteTimeoutDuration(),
			IdleTimeout:    a.cfg.HttpServer.IdleTimeoutDuration(),
			MaxHeaderBytes: a.cfg.HttpServer.MaxHeaderBytes,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
			if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}()
	} else {
		a.logger.Info("http_listen_addr not configured, skipping HTTP server startup")
	}

	var grpcServer *grpchandler.Server
	if a.cfg.GrpcListenAddr != "" {
		lis, err := net.Listen("tcp", a.cfg.GrpcListenAddr)
		if err != nil {
			if httpServer != nil {
				httpServer.Close()
			}
			return fmt.Errorf("unable to listen on gRPC address %s: %w", a.cfg.GrpcListenAddr, err)
		}
		grpcServer = grpchandler.NewServer(a.cfg.ServiceName, a.logger.Named("grpc"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("gRPC server failed: %w", err)
			}
		}()
	}

	workerDone := make(chan struct{})
	if a.worker != nil {
		go func() {
			defer close(workerDone)
			a.worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, starting graceful shutdown")
	case runErr = <-errCh:
		a.logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HttpServer.ShutdownTimeoutDuration())
	defer cancel()

	if grpcServer != nil {
		grpcServer.SetServing(false)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("HTTP server shutdown failed", zap.Error(err))
		}
	}
	if grpcServer != nil {
		grpcServer.Shutdown()
	}

	stopWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("worker pool did not stop before the shutdown timeout")
	}

	wg.Wait()
	a.logger.Info("all servers stopped")
	return runErr
}

// close releases resources in reverse dependency order
func (a *app) close() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Warn("consumer close failed", zap.Error(err))
		}
	}
	if a.forwarder != nil {
		a.forwarder.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("producer close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("ledger close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
