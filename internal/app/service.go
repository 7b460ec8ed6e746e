package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"alertgateway/internal/api"
	"alertgateway/internal/broker"
	"alertgateway/internal/clock"
	"alertgateway/internal/config"
	"alertgateway/internal/logging"
	"alertgateway/internal/metrics"
	"alertgateway/internal/notify"
	"alertgateway/internal/queue"
	"alertgateway/internal/router"
	"alertgateway/internal/zoomauth"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable alert gateway.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	metrics   *metrics.Registry
	pool      *broker.Pool
	router    *router.Router
	consumer  *queue.Consumer
	publisher *queue.Publisher
	httpSrv   *http.Server
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service (broker not dialed yet) or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	logger, closeLog, err := logging.New(cfg.Log, logging.Options{Service: cfg.Service.Name})
	if err != nil {
		return nil, err
	}

	registry := metrics.New()
	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		metrics:  registry,
		pool:     broker.NewPool(cfg.Broker, cfg.Service.Name, logger, registry),
		clock:    clk,
	}

	service.router = router.New(cfg.ServiceRecords(), service.buildSenders(), logger, registry)
	service.consumer = queue.NewConsumer(service.pool, service.router, cfg.Broker, logger, registry)
	service.publisher = queue.NewPublisher(service.pool, cfg.Broker, registry)

	if err := service.buildHTTPServer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	return service, nil
}

// Run connects to the broker, binds queue consumers, serves the API, and blocks until shutdown.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.pool.Initialize(runCtx); err != nil {
		s.logger.Error("broker pool init failed", "error", err.Error())
		s.cleanupInitResources()
		return err
	}
	queues := s.cfg.QueueRecords()
	if err := s.consumer.Start(runCtx, queues); err != nil {
		s.logger.Error("queue consumer start failed", "error", err.Error())
		_ = s.shutdown()
		return fmt.Errorf("start consumer: %w", err)
	}

	errChan := make(chan error, 1)
	if s.httpSrv != nil {
		go func() {
			s.logger.Info("http server starting", "listen", s.cfg.API.Listen)
			err := s.httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	s.readyFlag.Store(true)
	s.logger.Info("alert gateway started",
		"queues", len(queues),
		"services", len(s.cfg.Destinations),
		"pool_size", s.pool.Size(),
		"started_at", s.clock.Now().Format(time.RFC3339),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		return s.shutdown()
	}
}

// Ready reports whether consumers are bound and the service accepts traffic.
// Params: none.
// Returns: readiness flag.
func (s *Service) Ready() bool {
	return s.readyFlag.Load()
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err.Error())
			markErr(fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.consumer.Close(); err != nil {
		s.logger.Error("queue consumer close failed", "error", err.Error())
		markErr(fmt.Errorf("queue consumer close: %w", err))
	}
	markErr(s.pool.Shutdown())
	s.logger.Info("alert gateway stopped")
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.consumer != nil {
		_ = s.consumer.Close()
	}
	if s.pool != nil {
		_ = s.pool.Shutdown()
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildSenders wires channel senders; Zoom mentions are enabled only with API credentials.
// Params: none.
// Returns: router sender set.
func (s *Service) buildSenders() router.Senders {
	var tokens notify.TokenSource
	if hasZoomCredentials(s.cfg.Zoom) {
		tokens = zoomauth.New(s.cfg.Zoom, s.logger,
			zoomauth.WithClock(s.clock),
			zoomauth.WithMetrics(s.metrics),
		)
	} else {
		s.logger.Info("zoom api credentials not configured, mentions disabled")
	}
	return router.Senders{
		Zoom:  notify.NewZoomSender(s.cfg.Notify, s.cfg.Zoom, tokens, s.logger),
		Teams: notify.NewTeamsSender(s.cfg.Notify, s.logger),
		Email: notify.NewEmailSender(s.cfg.SMTP, s.logger),
	}
}

// buildHTTPServer wires the publish API, catalog, probes, and metrics.
// Params: none.
// Returns: setup error.
func (s *Service) buildHTTPServer() error {
	if !s.cfg.API.Enabled {
		return nil
	}
	handler := api.New(api.Options{
		Config:    s.cfg.API,
		Queues:    s.cfg.QueueRecords(),
		Services:  s.cfg.ServiceRecords(),
		Publisher: s.publisher,
		Ready:     s.Ready,
		Metrics:   s.metrics,
		Logger:    s.logger,
	})
	s.httpSrv = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

func hasZoomCredentials(cfg config.ZoomConfig) bool {
	return strings.TrimSpace(cfg.AccountID) != "" &&
		strings.TrimSpace(cfg.ClientID) != "" &&
		strings.TrimSpace(cfg.ClientSecret) != ""
}
