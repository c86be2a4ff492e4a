package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/searchktools/tcp-http/config"
	"github.com/searchktools/tcp-http/core"
	"github.com/searchktools/tcp-http/core/middleware"
	"github.com/searchktools/tcp-http/logger"
	"github.com/searchktools/tcp-http/site"
)

// App wires configuration, logging, the site handler and the engine
type App struct {
	cfg    *config.Config
	engine *core.Engine
	logger zerolog.Logger
}

// New creates an application instance logging to stdout
func New(cfg *config.Config) (*App, error) {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput creates an application instance logging to w
func NewWithOutput(cfg *config.Config, w io.Writer) (*App, error) {
	log, err := logger.New(w, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("env", cfg.Env).Logger()

	handler := middleware.Chain(
		site.New(site.Options{
			CookieMode: cfg.CookieMode,
			AssetsDir:  cfg.AssetsDir,
		}, logger.Component(log, "site")),
		middleware.AccessLog(logger.Component(log, "access")),
	)

	engine := core.NewEngine(core.Options{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Backlog:     cfg.Backlog,
		MaxSessions: cfg.MaxSessions,
		Session: core.SessionOptions{
			ReadChunkSize:   cfg.ReadChunkSize,
			MaxRequestSize:  cfg.MaxRequestSize,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			RejectMalformed: cfg.RejectMalformed,
		},
	}, handler, log)

	return &App{
		cfg:    cfg,
		engine: engine,
		logger: log,
	}, nil
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run serves until SIGINT or SIGTERM. A failure to bind is fatal.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.logger.Fatal().Err(err).Msg("server failed")
	}
}

// Start binds, serves until ctx is done, then shuts down gracefully and logs
// the final statistics.
func (a *App) Start(ctx context.Context) error {
	if err := a.engine.Listen(ctx); err != nil {
		return err
	}

	serveErr := a.engine.Serve(ctx)
	if serveErr == nil {
		a.logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	shutdownErr := a.engine.Shutdown(shutdownCtx)
	if errors.Is(shutdownErr, context.DeadlineExceeded) {
		a.logger.Warn().Dur("grace", a.cfg.ShutdownTimeout).Msg("sessions still active after grace period, closed")
		shutdownErr = nil
	}

	a.logStats()
	return errors.Join(serveErr, shutdownErr)
}

func (a *App) logStats() {
	s := a.engine.Stats()

	outcomes := zerolog.Dict()
	for name, n := range s.Outcomes {
		outcomes.Uint64(name, n)
	}

	a.logger.Info().
		Uint64("accepted", s.Accepted).
		Int64("active", s.Active).
		Dict("outcomes", outcomes).
		Uint64("bytes_in", s.BytesIn).
		Uint64("bytes_out", s.BytesOut).
		Msg("📊 session statistics")

	b := a.engine.BufferStats()
	a.logger.Debug().
		Uint64("gets", b.TotalGets).
		Uint64("small", b.SmallHits).
		Uint64("medium", b.MediumHits).
		Uint64("large", b.LargeHits).
		Uint64("dropped", b.Dropped).
		Msg("receive buffer pool")

	for _, p := range s.Paths {
		a.logger.Info().
			Str("path", p.Path).
			Uint64("count", p.Count).
			Dur("avg", p.Average).
			Dur("min", p.Min).
			Dur("max", p.Max).
			Msg("handler latency")
	}
}
