package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/tabretry/internal/core/config"
	"github.com/vietddude/tabretry/internal/core/domain"
	"github.com/vietddude/tabretry/internal/core/worker"
	"github.com/vietddude/tabretry/internal/infra/browser"
	redisclient "github.com/vietddude/tabretry/internal/infra/redis"
	"github.com/vietddude/tabretry/internal/reload/health"
	"github.com/vietddude/tabretry/internal/reload/ingest"
	"github.com/vietddude/tabretry/internal/reload/recovery"
)

// Service is the main application struct that manages the retry controller lifecycle.
type Service struct {
	cfg          *config.AppConfig
	backends     *Backends
	controller   *recovery.Controller
	dispatcher   *Dispatcher
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	subscriber   *redisclient.EventSubscriber
	pruner       *worker.Pruner
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	tabs recovery.TabController
}

// WithTabController replaces the HTTP browser agent client.
func WithTabController(tabs recovery.TabController) Option {
	return func(o *serviceOptions) {
		o.tabs = tabs
	}
}

// NewService creates a new Service with all dependencies initialized.
func NewService(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Service, error) {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	// Timers fire into the dispatcher, which is created after the controller
	var dispatcher *Dispatcher
	onFire := func(ev domain.Event) { dispatcher.Fire(ev) }

	// 1. Initialize Storage
	backends, err := OpenBackends(ctx, cfg, onFire)
	if err != nil {
		return nil, err
	}

	// 2. Initialize Tab Controller
	tabs := o.tabs
	if tabs == nil {
		tabs = browser.NewClient(cfg.Browser)
	}

	// 3. Initialize Retry Controller and dispatch loop
	controller := recovery.NewController(backends.Retries, backends.Timers, tabs, recovery.DefaultBackoff())
	dispatcher = NewDispatcher(controller, cfg.Server.QueueSize)

	// 4. Initialize Health Monitor and servers
	healthMon := health.NewMonitor(controller, backends.Retries, backends.Timers, dispatcher)
	if backends.Redis != nil {
		healthMon.AddCheck("redis", backends.Redis.Ping)
	}
	if backends.DB != nil {
		healthMon.AddCheck("postgres", backends.DB.Health)
	}
	healthServer := health.NewServer(healthMon, cfg.Server.Port, ingest.NewHandler(dispatcher))

	s := &Service{
		cfg:          cfg,
		backends:     backends,
		controller:   controller,
		dispatcher:   dispatcher,
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          slog.Default().With("component", "service"),
	}

	if cfg.Server.GRPCPort > 0 {
		s.grpcServer = health.NewGRPCServer(cfg.Server.GRPCPort)
	}

	// 5. Optional event source and retention
	if cfg.Events.RedisChannel != "" {
		s.subscriber = redisclient.NewEventSubscriber(backends.Redis, cfg.Events.RedisChannel, dispatcher.Submit)
	}
	if cfg.Store.Retention > 0 {
		if repo, ok := backends.Pruner(); ok {
			s.pruner = worker.NewPruner(cfg.Store.Retention, repo)
		}
	}

	return s, nil
}

// Controller returns the retry controller.
func (s *Service) Controller() *recovery.Controller {
	return s.controller
}

// Dispatcher returns the event dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Start recovers from the previous run and then starts every event source.
func (s *Service) Start(ctx context.Context) error {
	// Timers left by a previous run must be gone before any event is handled
	if err := s.controller.Recover(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	// Loops touching storage run under their own context so Stop can drain them
	ctx, s.cancel = context.WithCancel(ctx)
	s.goLoop(func() { s.dispatcher.Run(ctx) })

	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()
	s.goLoop(func() { s.healthMon.Start(ctx, 30*time.Second) })
	s.log.Info("HTTP server listening", "port", s.cfg.Server.Port)

	if s.grpcServer != nil {
		s.grpcServer.SetServing()
		go func() {
			if err := s.grpcServer.Start(); err != nil {
				s.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start DB Metrics Collector
	if s.backends.DB != nil {
		s.backends.DB.StartMetricsCollector(ctx)
	}

	if s.backends.RedisTimers != nil {
		s.goLoop(func() {
			if err := s.backends.RedisTimers.Run(ctx); err != nil {
				s.log.Error("Timer poller failed", "error", err)
			}
		})
	}

	if s.subscriber != nil {
		s.goLoop(func() {
			if err := s.subscriber.Run(ctx); err != nil {
				s.log.Error("Event subscriber failed", "error", err)
			}
		})
	}

	if s.pruner != nil {
		s.log.Info("Starting pruner", "retention", s.cfg.Store.Retention)
		s.goLoop(func() { s.pruner.Start(ctx) })
	}

	return nil
}

func (s *Service) goLoop(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Stop stops the servers, waits for in-flight handling and closes storage connections.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}

	err := s.healthServer.Stop(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.log.Warn("Timed out waiting for event handling to finish")
		if err == nil {
			err = ctx.Err()
		}
	}

	if cerr := s.backends.Close(); cerr != nil {
		s.log.Warn("Failed to close backends", "error", cerr)
	}
	return err
}
