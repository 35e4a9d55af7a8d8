// Package bootstrap wires the service together: logger, config,
// ruleset, session manager and HTTP API, with signal-driven reload and
// phased shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"argus/api"
	"argus/config"
	"argus/metrics"
	"argus/ruleset"
	"argus/session"
)

// App holds every long-lived component of the logtest service.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Provider  *ruleset.Provider
	Manager   *session.Manager
	Processor *session.Processor
	APIServer *api.API

	serveErrCh chan error
}

// NewApp creates the application and initializes all components. Any
// error here is fatal: configuration and ruleset problems are resolved
// before the first session can exist.
func NewApp() (*App, error) {
	app := &App{serveErrCh: make(chan error, 1)}

	// Config has to be loaded before the logger so the level applies,
	// but config loading itself can fail before any logger exists.
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	logger, sugar, err := InitLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Argus logtest service starting...")
	sugar.Infow("Config loaded",
		"listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"decoders", cfg.Ruleset.DecodersPath,
		"rules", cfg.Ruleset.RulesPath,
		"max_sessions", cfg.Logtest.MaxSessions)

	provider, err := InitRuleset(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Provider = provider
	metrics.RulesetGeneration.Set(float64(provider.Current().Version))

	app.Manager = session.NewManager(provider, session.Config{
		MaxSessions: cfg.Logtest.MaxSessions,
		IdleTTL:     cfg.Logtest.SessionIdleTTL,
	}, sugar)
	app.Processor = session.NewProcessor(app.Manager, sugar)
	app.APIServer = api.NewAPI(app.Manager, app.Processor, cfg, sugar)

	return app, nil
}

// Start brings up the HTTP server.
func (a *App) Start() {
	go func() {
		if err := a.APIServer.Start(); err != nil {
			a.serveErrCh <- err
		}
	}()
}

// WaitForShutdown blocks until SIGINT or SIGTERM, or until the server
// fails. SIGHUP reloads the ruleset in place: the new generation
// applies to sessions opened after the reload, existing sessions keep
// theirs.
func (a *App) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				a.reloadRuleset()
				continue
			}
			a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
			return nil
		case err := <-a.serveErrCh:
			a.Sugar.Errorw("API server failed", "error", err)
			return err
		}
	}
}

func (a *App) reloadRuleset() {
	a.Sugar.Info("SIGHUP received, reloading ruleset")
	gen, err := a.Provider.Reload()
	if err != nil {
		a.Sugar.Errorw("Ruleset reload failed, previous generation kept", "error", err)
		return
	}
	metrics.RulesetGeneration.Set(float64(gen.Version))
}

// Shutdown stops the service in order: stop accepting requests, drain
// in-flight ones, then close every session.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.APIServer.Stop(ctx); err != nil {
		a.Sugar.Warnw("API shutdown incomplete", "error", err)
	}

	a.Manager.Stop()

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
