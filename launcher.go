// Package launcher wires the UI-TARS agent launcher together: the profile
// store, the process supervisor, the event topics, launch history, metrics and
// the HTTP surface.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/bridge"
	"github.com/learning152/ui-tars-launcher/internal/config"
	"github.com/learning152/ui-tars-launcher/internal/envcheck"
	"github.com/learning152/ui-tars-launcher/internal/history"
	"github.com/learning152/ui-tars-launcher/internal/history/factory"
	"github.com/learning152/ui-tars-launcher/internal/metrics"
	"github.com/learning152/ui-tars-launcher/internal/process"
	"github.com/learning152/ui-tars-launcher/internal/profile"
	"github.com/learning152/ui-tars-launcher/internal/server"
	"github.com/learning152/ui-tars-launcher/internal/textenc"
	"github.com/learning152/ui-tars-launcher/internal/urlsniff"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Profile = profile.Profile

type Process = process.Record

type Events = bridge.Events

type LogEntry = bridge.LogEntry

type ProcessInfo = bridge.ProcessInfo

type ExitEvent = bridge.ExitEvent

type Config = config.Config

type HistorySink = history.Sink

// LoadConfig reads a TOML configuration file; an empty path yields defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in defaults plus TARS_LAUNCHER_* overrides.
func DefaultConfig() (*Config, error) { return config.Default() }

// Options customise New beyond the configuration file.
type Options struct {
	Logger *slog.Logger    // nil builds one from cfg.Log
	Opener urlsniff.Opener // nil selects the system browser when browser.auto_open is set
	Sinks  []HistorySink   // extra sinks besides history.dsn
}

// App is the launcher facade. It implements bridge.Commands.
type App struct {
	cfg      *Config
	log      *slog.Logger
	events   *bridge.Events
	sup      *process.Supervisor
	profiles *profile.Store
	env      *installer
	recorder *history.Recorder
	querier  history.Querier
	registry *prometheus.Registry
}

var _ bridge.Commands = (*App)(nil)

// New builds the application from cfg and starts the supervisor.
func New(cfg *Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = cfg.Log.NewSlogger()
	}

	store, err := profile.NewStore(cfg.ProfilesPath())
	if err != nil {
		return nil, err
	}
	decoder, err := textenc.New(cfg.Console.Encoding)
	if err != nil {
		return nil, fmt.Errorf("console.encoding: %w", err)
	}
	childEnv, err := cfg.ChildEnv()
	if err != nil {
		return nil, fmt.Errorf("child env: %w", err)
	}
	opener := opts.Opener
	if opener == nil {
		if cfg.Browser.AutoOpen {
			opener = urlsniff.BrowserOpener{}
		} else {
			opener = urlsniff.NopOpener{}
		}
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		if err := metrics.Register(registry); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	sinks := append([]HistorySink(nil), opts.Sinks...)
	for _, dsn := range cfg.History.DSN {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, s)
	}
	var querier history.Querier
	for _, s := range sinks {
		if q, ok := s.(history.Querier); ok {
			querier = q
			break
		}
	}

	events := bridge.NewEvents()
	recorder := history.NewRecorder(log.With("component", "history"), sinks...)
	recorder.Attach(events)

	sup, err := process.New(process.Options{
		ScriptDir: cfg.ScriptDir(),
		Command:   cfg.CommandOptions(),
		Decoder:   decoder,
		Opener:    opener,
		Env:       childEnv,
		Logs:      cfg.Log,
		WaitDelay: cfg.Process.WaitDelay,
		Events:    events,
		Logger:    log,
	})
	if err != nil {
		_ = recorder.Close(context.Background())
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		log:      log,
		events:   events,
		sup:      sup,
		profiles: store,
		recorder: recorder,
		querier:  querier,
		registry: registry,
		env: &installer{
			Checker: envcheck.Checker{Agent: cfg.Agent.Binary, Decoder: decoder, Logger: log},
			log:     cfg.Log.NewProcessLogger("env-install"),
		},
	}
	log.Debug("launcher ready", "profiles", store.Path(), "scripts", cfg.ScriptDir(), "sinks", len(sinks))
	return app, nil
}

func closeSinks(sinks []HistorySink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// Launch starts p and bumps its usage counters when it is a stored profile.
func (a *App) Launch(ctx context.Context, p Profile) (string, error) {
	id, err := a.sup.Launch(ctx, p)
	if err != nil {
		return "", err
	}
	if p.ID != "" {
		if err := a.profiles.MarkUsed(p.ID); err != nil && !errors.Is(err, profile.ErrNotFound) {
			a.log.Warn("mark profile used failed", "profile", p.ID, "error", err)
		}
	}
	return id, nil
}

// LaunchStored launches the stored profile with the given id or name. An
// empty ref selects the default profile.
func (a *App) LaunchStored(ctx context.Context, ref string) (string, error) {
	var (
		p   Profile
		err error
	)
	if ref == "" {
		var ok bool
		p, ok, err = a.profiles.Default()
		if err == nil && !ok {
			err = fmt.Errorf("%w: no default profile", profile.ErrNotFound)
		}
	} else {
		p, err = a.profiles.Find(ref)
	}
	if err != nil {
		return "", err
	}
	return a.Launch(ctx, p)
}

func (a *App) ListProcesses(ctx context.Context) ([]Process, error) { return a.sup.List(ctx) }

func (a *App) KillProcess(ctx context.Context, trackingID string) error {
	return a.sup.Kill(ctx, trackingID)
}

func (a *App) Events() *Events { return a.events }

func (a *App) Profiles() *profile.Store { return a.profiles }

// CheckEnv reports the agent toolchain status.
func (a *App) CheckEnv(ctx context.Context) envcheck.Status { return a.env.Check(ctx) }

// InstallAgent installs the agent CLI, publishing progress on the log topic.
func (a *App) InstallAgent(ctx context.Context) error {
	err := a.env.Install(ctx, func(line string) { a.events.Log(bridge.KindInfo, "", line) })
	if err != nil {
		a.events.Log(bridge.KindError, "", err.Error())
	}
	return err
}

// History returns the first configured sink able to read back events, or nil.
func (a *App) History() history.Querier { return a.querier }

// MetricsHandler serves the app's prometheus registry; nil when disabled.
func (a *App) MetricsHandler() http.Handler {
	if a.registry == nil {
		return nil
	}
	return metrics.HandlerFor(a.registry)
}

// Handler returns the HTTP surface mounted at server.base_path.
func (a *App) Handler() http.Handler {
	return server.NewRouter(a.deps(), a.cfg.Server.BasePath).Handler()
}

func (a *App) deps() server.Deps {
	d := server.Deps{
		Commands: a,
		Events:   a.events,
		Profiles: a.profiles,
		Env:      a.env,
		Logger:   a.log,
	}
	if a.querier != nil {
		d.History = a.querier
	}
	if h := a.MetricsHandler(); h != nil {
		d.Metrics = h
	}
	return d
}

// Serve runs the HTTP server on server.listen until ctx is cancelled, then
// shuts the server and the app down.
func (a *App) Serve(ctx context.Context) error {
	srv, err := server.NewServer(a.cfg.Server.Listen, a.cfg.Server.BasePath, a.deps())
	if err != nil {
		return err
	}
	a.log.Info("serving", "addr", a.cfg.Server.Listen, "base", a.cfg.Server.BasePath)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// close event streams first; they never end on their own
	_ = srv.Close()
	return a.Close(shutdownCtx)
}

// Close kills every tracked process, removes launch scripts and flushes
// history sinks.
func (a *App) Close(ctx context.Context) error {
	err := a.sup.Shutdown(ctx)
	return errors.Join(err, a.recorder.Close(ctx))
}

// installer mirrors installer output into an optional rotating log file.
type installer struct {
	envcheck.Checker
	log *slog.Logger
}

func (i *installer) Install(ctx context.Context, emit func(string)) error {
	if i.log == nil {
		return i.Checker.Install(ctx, emit)
	}
	i.log.Info("install started", "package", envcheck.InstallPackage)
	err := i.Checker.Install(ctx, func(line string) {
		i.log.Info(line)
		emit(line)
	})
	if err != nil {
		i.log.Error("install failed", "error", err)
	}
	return err
}
