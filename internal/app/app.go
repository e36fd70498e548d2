// Package app wires all atl daemon subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the runtime and the
// HTTP surface, Run drives the audio goroutine, the frame driver and the
// HTTP server until the context is cancelled, and Reload applies config
// changes reported by the config watcher.
//
// For testing, inject collaborators via functional options (WithRegistry,
// WithMetrics, etc.). When an option is not provided, New uses the
// defaults.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/atl/internal/config"
	"github.com/MrWong99/atl/internal/health"
	"github.com/MrWong99/atl/internal/observe"
	"github.com/MrWong99/atl/internal/remote"
	"github.com/MrWong99/atl/internal/resilience"
	"github.com/MrWong99/atl/pkg/atl"
	"github.com/MrWong99/atl/pkg/impl"
)

// shutdownTimeout bounds how long Run waits for HTTP requests and remote
// sessions to finish after its context was cancelled.
const shutdownTimeout = 10 * time.Second

// App owns the runtime and everything serving it.
type App struct {
	log      *slog.Logger
	level    *slog.LevelVar
	registry *config.Registry
	metrics  *observe.Metrics

	sys    *atl.System
	remote *remote.Server
	health *health.Handler
	mux    *http.ServeMux
	srv    *http.Server

	// mu guards the fields below. Backend selection runs on the watcher or
	// bootstrap goroutine and may take as long as a backend swap.
	mu       sync.Mutex
	cfg      *config.Config
	selector *resilience.BackendSelector
	bound    string
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger for the app and the runtime.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets Reload change the log level of the handler behind the
// logger.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithRegistry injects a backend registry instead of [config.DefaultRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects the metric instruments instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates the runtime from cfg and assembles the HTTP surface. The
// backend is selected once Run started the audio goroutine.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	if a.registry == nil {
		a.registry = config.DefaultRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.level.Set(slogLevel(cfg.Server.LogLevel))

	rtCfg := cfg.ATL()
	rtCfg.Logger = a.log.With("component", "atl")
	if !cfg.Telemetry.Disabled {
		rtCfg.Telemetry = observe.NewTelemetry(a.metrics)
	}
	sys, err := atl.New(rtCfg)
	if err != nil {
		return nil, fmt.Errorf("app: create runtime: %w", err)
	}
	a.sys = sys
	a.selector = a.newSelector(cfg.Backend)

	a.remote = remote.NewServer(sys,
		remote.WithLogger(a.log.With("component", "remote")),
		remote.WithMetrics(a.metrics),
	)
	a.health = health.New(
		health.BackendChecker(a.ActiveBackend, a.WantedBackend),
	).WithLiveness(
		health.HeartbeatChecker("audio", sys.Heartbeat, heartbeatMaxAge(rtCfg.IdleUpdateRate)),
	)

	a.mux = http.NewServeMux()
	a.health.Register(a.mux)
	if !cfg.Telemetry.Disabled {
		a.mux.Handle("GET /metrics", promhttp.Handler())
	}
	a.mux.HandleFunc("GET /debug/atl", a.handleSnapshot)
	a.mux.Handle("GET /v1/ws", a.remote)

	if cfg.Server.ListenAddr != "" {
		a.srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return a, nil
}

// heartbeatMaxAge is how long the audio goroutine may stay silent before
// it counts as stalled. It idles for at most one update interval.
func heartbeatMaxAge(idleRate float64) time.Duration {
	if idleRate <= 0 {
		idleRate = atl.DefaultIdleUpdateRate
	}
	interval := time.Duration(float64(time.Second) / idleRate)
	return max(10*interval, 2*time.Second)
}

// System returns the runtime.
func (a *App) System() *atl.System { return a.sys }

// Handler returns the HTTP handler serving health, metrics, diagnostics
// and the remote protocol.
func (a *App) Handler() http.Handler {
	return observe.Middleware(a.metrics)(a.mux)
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ActiveBackend returns the configured name of the bound backend. Before
// selection, or after every candidate failed, it reports the runtime's own
// backend name.
func (a *App) ActiveBackend() string {
	a.mu.Lock()
	bound := a.bound
	a.mu.Unlock()
	if bound != "" {
		return bound
	}
	return a.sys.ImplInfo().Name
}

// WantedBackend returns the configured primary backend.
func (a *App) WantedBackend() string {
	return a.Config().Backend.Name
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the audio goroutine, selects the backend, loads the preloads,
// drives external frames and serves HTTP. It blocks until ctx is cancelled
// or a subsystem fails, then shuts everything down in order: HTTP server,
// remote sessions, audio goroutine.
func (a *App) Run(ctx context.Context) error {
	audioCtx, stopAudio := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAudio()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.sys.Run(audioCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.bootstrap()
		return nil
	})

	if rate := a.Config().Server.FrameRate; rate > 0 {
		g.Go(func() error { return a.driveFrames(gctx, rate) })
	}

	g.Go(func() error { return a.retryBackend(gctx, backendRetryInterval) })

	if a.srv != nil {
		g.Go(func() error {
			a.log.Info("http server listening", "addr", a.srv.Addr)
			var err error
			if tls := a.Config().Server.TLS; tls != nil {
				err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = a.srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if a.srv != nil {
			if err := a.srv.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
			}
		}
		if err := a.remote.Shutdown(sctx); err != nil && !errors.Is(err, remote.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("app: remote shutdown: %w", err))
		}
		stopAudio()
		return errors.Join(errs...)
	})

	err := g.Wait()
	if cerr := a.sys.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("app stopped")
	return err
}

// bootstrap binds the configured backend and loads the preloads.
func (a *App) bootstrap() {
	cfg := a.Config()
	a.selectBackend()
	a.preload(cfg.Controls.Preloads)
}

// preload loads triggers on the global object.
func (a *App) preload(names []string) {
	global := a.sys.GlobalObject()
	for _, name := range names {
		if st := global.LoadTrigger(atl.IDFromName(name), atl.WithBlocking()); st != atl.StatusSuccess {
			a.log.Warn("preload failed", "trigger", name, "status", st.String())
		}
	}
	if len(names) > 0 {
		a.log.Info("preloads loaded", "triggers", len(names))
	}
}

// driveFrames plays the host's render thread: it calls ExternalUpdate rate
// times per second.
func (a *App) driveFrames(ctx context.Context, rate float64) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.sys.ExternalUpdate()
		}
	}
}

// ─── Backend selection ───────────────────────────────────────────────────────

// backendRetryInterval is how often Run retries the primary backend while a
// fallback is bound.
const backendRetryInterval = 15 * time.Second

func (a *App) newSelector(bc config.BackendConfig) *resilience.BackendSelector {
	candidate := func(entry config.BackendEntry) resilience.BackendCandidate {
		return resilience.BackendCandidate{
			Name: entry.Name,
			Create: func() (impl.Impl, error) {
				return a.registry.Create(entry, a.log.With("backend", entry.Name))
			},
		}
	}
	entries := bc.Entries()
	s := resilience.NewBackendSelector(candidate(entries[0]), resilience.FallbackConfig{
		Logger: a.log.With("component", "backend"),
	})
	for _, e := range entries[1:] {
		s.AddFallback(candidate(e))
	}
	return s
}

// selectBackend binds the first usable backend of the configured chain. A
// candidate that is already bound is kept without a swap. When every
// candidate fails the runtime stays on the null backend.
func (a *App) selectBackend() {
	a.mu.Lock()
	defer a.mu.Unlock()

	name, err := a.selector.Select(func(name string, b impl.Impl) error {
		if name == a.bound && a.sys.ImplInfo().Name == b.GetInfo().Name {
			return nil
		}
		if st := a.sys.SetImpl(b); st != atl.StatusSuccess {
			return fmt.Errorf("%w: status %s", resilience.ErrBackendRejected, st)
		}
		return nil
	})
	if err != nil {
		a.bound = ""
		a.log.Error("no backend could be bound, running on null backend",
			"candidates", a.selector.Names(), "err", err)
		return
	}
	if name != a.bound {
		a.log.Info("backend bound", "backend", name, "primary", name == a.cfg.Backend.Name)
	}
	a.bound = name
}

// retryBackend periodically reselects while a fallback is bound. The
// primary's circuit breaker limits how often it is actually retried.
func (a *App) retryBackend(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.mu.Lock()
			degraded := a.bound != a.cfg.Backend.Name
			a.mu.Unlock()
			if degraded {
				a.selectBackend()
			}
		}
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. It is
// the onChange callback of [config.Watcher].
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	a.mu.Lock()
	a.cfg = new
	if d.BackendChanged {
		a.selector = a.newSelector(new.Backend)
	}
	a.mu.Unlock()

	if d.LogLevelChanged {
		a.level.Set(slogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ControlsChanged {
		st := a.sys.ReloadControls(new.Controls.Definition())
		a.log.Info("controls reloaded", "status", st.String(), "triggers", len(new.Controls.Triggers))
		a.preload(new.Controls.Preloads)
	}
	if d.BackendChanged {
		a.selectBackend()
	}
	if d.LanguageChanged {
		a.sys.SetLanguage(d.NewLanguage, atl.WithBlocking())
		a.log.Info("language changed", "language", d.NewLanguage)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", "settings", d.RestartRequired)
	}
}

// ─── Diagnostics ─────────────────────────────────────────────────────────────

// handleSnapshot serves the runtime snapshot as JSON.
func (a *App) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	// Snapshot blocks on the audio goroutine.
	if a.sys.Heartbeat().IsZero() {
		http.Error(w, "audio goroutine not running", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.sys.Snapshot()); err != nil {
		a.log.Warn("encode snapshot", "err", err)
	}
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
