// Package runtime assembles the daemon: telemetry, bus, state store, model
// pair, capture, output, and the session manager, plus the control surface
// that drives it.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/itsdevcoffee/hyprvoice/internal/bus"
	"github.com/itsdevcoffee/hyprvoice/internal/capture"
	"github.com/itsdevcoffee/hyprvoice/internal/config"
	"github.com/itsdevcoffee/hyprvoice/internal/natsserver"
	"github.com/itsdevcoffee/hyprvoice/internal/output"
	"github.com/itsdevcoffee/hyprvoice/internal/session"
	"github.com/itsdevcoffee/hyprvoice/internal/statestore"
	"github.com/itsdevcoffee/hyprvoice/internal/transcribe"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	embedded    *natsserver.EmbeddedServer
	busClient   *bus.Client
	store       *statestore.Store
	pair        *transcribe.Pair
	manager     *session.Manager
	control     *controlServer

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the daemon until ctx is canceled, then shuts everything down in
// reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Embedded {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.embedded = embedded
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := statestore.Open(ctx, r.cfg.StateStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	r.store = store

	// A model that cannot load is fatal: a dictation daemon that cannot
	// transcribe has nothing to offer.
	pair, err := transcribe.Load(r.cfg.Model, r.logger)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	r.pair = pair
	r.logger.Info("models loaded", slog.String("capability", pair.Capability().String()))

	source, err := capture.New(r.cfg.Capture, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build capture source: %w", err)
	}

	dispatcher, err := output.NewExecDispatcher(r.cfg.Output, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build output dispatcher: %w", err)
	}

	r.manager = session.NewManager(ctx, r.cfg.Session, r.cfg.Capture, session.Deps{
		Store:     store,
		Source:    source,
		Engine:    transcribe.NewDecoder(pair, r.logger),
		Output:    dispatcher,
		Publisher: output.NewPublisher(busClient.Conn()),
		Logger:    r.logger,
	})
	r.manager.RecoverStaleState(ctx)

	r.control = newControlServer(r.manager, busClient, r.logger)
	if err := r.control.Start(); err != nil {
		return fmt.Errorf("failed to start control surface: %w", err)
	}

	toggles := make(chan os.Signal, 1)
	signal.Notify(toggles, syscall.SIGUSR1)
	defer signal.Stop(toggles)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-toggles:
				// Same transition path as a CLI toggle.
				r.control.Toggle(ctx, "")
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("daemon started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("daemon stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.control.Close()
	r.manager.Close()
	r.pair.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Error("state store close error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
