// Package app wires all voxmail subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the contact storage and
// builds the pipeline and its HTTP surface, Run serves until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock providers through [Providers] and replace the
// storage or metrics with functional options (WithStorage, WithMetrics).
// When an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxmail/internal/api"
	"github.com/MrWong99/voxmail/internal/compose"
	"github.com/MrWong99/voxmail/internal/config"
	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/directory/filestore"
	"github.com/MrWong99/voxmail/internal/directory/pgstore"
	"github.com/MrWong99/voxmail/internal/directory/sqlitestore"
	"github.com/MrWong99/voxmail/internal/dispatch"
	"github.com/MrWong99/voxmail/internal/health"
	"github.com/MrWong99/voxmail/internal/history"
	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/internal/phonetic"
	"github.com/MrWong99/voxmail/internal/pipeline"
	"github.com/MrWong99/voxmail/internal/resolver"
)

// shutdownGrace bounds the HTTP server drain in Run.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes of voxmail.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	// Subsystems, initialised in New and torn down in Shutdown.
	telemetry *observe.Telemetry
	metrics   *observe.Metrics
	storage   directory.Storage
	dir       *directory.Directory
	hist      *history.History
	pipeline  *pipeline.Pipeline
	handler   http.Handler
	watcher   *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStorage injects a directory storage instead of opening the configured
// backend.
func WithStorage(s directory.Storage) Option {
	return func(a *App) { a.storage = s }
}

// WithMetrics injects metric instruments and skips the OpenTelemetry SDK
// setup. The metrics endpoint is not served in that case.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithWatcher makes Run poll the config file alongside the HTTP server.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithVersion sets the service version reported to telemetry.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders] in production.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.Mail == nil {
		return nil, errors.New("app: llm, stt and mail providers are required")
	}

	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	if err := a.initDirectory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init directory: %w", err)
	}
	if err := a.initHistory(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initHTTP()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Observability.ServiceName,
		ServiceVersion: a.version,
	})
	if err != nil {
		return err
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(ctx)
	})
	a.metrics = observe.DefaultMetrics()
	return nil
}

func (a *App) initDirectory(ctx context.Context) error {
	if a.storage == nil {
		store, closer, err := OpenStorage(ctx, a.cfg.Directory)
		if err != nil {
			return err
		}
		a.storage = store
		a.closers = append(a.closers, closer)
	}

	dir, err := directory.Load(ctx, a.storage,
		directory.WithMatcher(phonetic.New()),
		directory.WithMetrics(a.metrics),
	)
	if err != nil {
		// The directory is usable but empty; keep serving and let the
		// operator fix the storage.
		slog.Error("contact directory could not be loaded, starting empty", "err", err)
	}
	a.dir = dir
	slog.Info("contact directory loaded", "backend", a.cfg.Directory.Backend, "contacts", dir.Len())
	return nil
}

func (a *App) initHistory() error {
	var opts []history.Option
	if path := a.cfg.History.LogPath; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open history log %q: %w", path, err)
		}
		a.closers = append(a.closers, f.Close)
		opts = append(opts, history.WithLog(f))
	}
	a.hist = history.New(opts...)
	return nil
}

func (a *App) initPipeline() error {
	cc := a.cfg.Compose
	genOpts := []compose.Option{
		compose.WithMetrics(a.metrics),
		compose.WithSignature(compose.Signature{
			SignOff: cc.Signature.SignOff,
			Name:    cc.Signature.Name,
			Phone:   cc.Signature.Phone,
		}),
	}
	if cc.Temperature != nil {
		genOpts = append(genOpts, compose.WithTemperature(*cc.Temperature))
	}
	if cc.AssistantPrompt != "" {
		genOpts = append(genOpts, compose.WithAssistantPrompt(cc.AssistantPrompt))
	}

	p, err := pipeline.New(pipeline.Deps{
		STT:        a.providers.STT,
		TTS:        a.providers.TTS,
		Resolver:   resolver.New(a.providers.LLM, resolver.WithMatcher(phonetic.New()), resolver.WithMetrics(a.metrics)),
		Generator:  compose.New(a.providers.LLM, genOpts...),
		Dispatcher: dispatch.New(a.providers.Mail, a.cfg.Mail.From, dispatch.WithMetrics(a.metrics)),
		Directory:  a.dir,
		History:    a.hist,
	}, pipeline.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()

	api.New(a.pipeline, api.WithMaxAudioBytes(a.cfg.Server.MaxAudioBytes)).Register(mux)
	health.New(a.readinessChecks()...).Register(mux)
	if a.telemetry != nil {
		mux.Handle("GET "+a.cfg.Observability.MetricsPath, a.telemetry.MetricsHandler())
	}

	a.handler = observe.Middleware(a.metrics)(mux)
}

// readinessChecks covers every breaker-guarded provider and any storage
// that can be pinged.
func (a *App) readinessChecks() []health.Checker {
	var checks []health.Checker
	for _, c := range []struct {
		name string
		p    any
	}{
		{"llm", a.providers.LLM},
		{"stt", a.providers.STT},
		{"tts", a.providers.TTS},
		{"mail", a.providers.Mail},
	} {
		if b, ok := c.p.(health.BreakerState); ok {
			checks = append(checks, health.Breaker(c.name, b))
		}
	}
	if p, ok := a.storage.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Ping("directory", p.Ping))
	}
	return checks
}

// OpenStorage opens the configured directory backend. The returned closer
// releases it.
func OpenStorage(ctx context.Context, dc config.DirectoryConfig) (directory.Storage, func() error, error) {
	switch dc.Backend {
	case config.BackendPostgres:
		s, closeFn, err := pgstore.Connect(ctx, dc.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { closeFn(); return nil }, nil
	case config.BackendSQLite:
		s, err := sqlitestore.Open(dc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := filestore.New(dc.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Pipeline returns the orchestrator driving both flows.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Handler returns the root HTTP handler: API, probes and metrics.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the server fails. When ctx is done, Run drains in-flight
// requests and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ReloadHandler returns a config watcher callback that applies a changed log
// level to level and warns about sections that need a restart.
func ReloadHandler(level *slog.LevelVar) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		d := config.Compare(old, new)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changed in sections that are only read at startup; restart to apply",
				"sections", d.RestartRequired)
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before it failed.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
