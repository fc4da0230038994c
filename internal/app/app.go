// Package app wires the logging facade into a host process: the host sink,
// the level policy, the class path, the plugin manager, settings persistence
// and the operator commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"

	"modlog/internal/bridge"
	"modlog/internal/command"
	"modlog/internal/facade"
	"modlog/internal/level"
	"modlog/internal/loader"
	"modlog/internal/plugin"
	"modlog/internal/runtime/supervisor"
	"modlog/internal/settings"
	"modlog/pkg/logapi"
	"modlog/pkg/logx"
)

type Config struct {
	Log logx.Config
	// SettingsPath is the settings file; empty disables persistence.
	SettingsPath string
	// Watch reloads the settings file when it changes on disk.
	Watch bool
	// Bridge redirects the log and log/slog packages into the facade.
	Bridge bool
}

type App struct {
	cfg Config

	host     *logx.Service
	policy   *level.Policy
	classes  *loader.ClassPath
	hostUnit *loader.Loader
	modules  *loader.Loader
	registry *facade.Registry
	plugins  *plugin.Manager
	store    *settings.Store
	commands *command.Commands

	log logapi.Logger

	mu        sync.Mutex
	sup       *supervisor.Supervisor
	installed bool
	unbridge  func()
}

func New(cfg Config) *App {
	host := logx.New(cfg.Log)
	policy := level.NewPolicy(host, initialOptions(cfg.Log))

	classes := loader.NewClassPath()
	hostUnit := loader.NewHost(nil)
	for _, v := range hostTypes() {
		t := reflect.TypeOf(v)
		classes.DefineType(t, hostUnit, false)
		classes.DefinePackage(t.Elem().PkgPath(), hostUnit)
	}
	modules := loader.NewModules(hostUnit)

	dispatch := append(plugin.DispatchClasses(), bridge.DispatchClasses()...)
	reg := facade.NewRegistry(facade.Config{
		Policy:   policy,
		Sink:     host,
		Classes:  classes,
		Dispatch: dispatch,
	})

	a := &App{
		cfg:      cfg,
		host:     host,
		policy:   policy,
		classes:  classes,
		hostUnit: hostUnit,
		modules:  modules,
		registry: reg,
	}
	a.log = a.loggerFor((*App)(nil))
	a.plugins = plugin.NewManager(a.loggerFor((*plugin.Manager)(nil)), modules, classes, reg)

	var saver command.Saver
	if cfg.SettingsPath != "" {
		a.store = settings.NewStore(cfg.SettingsPath, policy, a.loggerFor((*settings.Store)(nil)))
		saver = a.store
	}
	a.commands = command.New(policy, saver, reg.Root())
	return a
}

// initialOptions turns colors off when the sink cannot show them. The
// settings file may still override the result.
func initialOptions(cfg logx.Config) level.Options {
	o := level.DefaultOptions()
	o.Color = !cfg.NoColor && !cfg.File.Enabled
	return o
}

// hostTypes are values from the host's own packages. Their code is attributed
// to the host unit and never carries a plugin label.
func hostTypes() []any {
	return []any{
		(*App)(nil),
		(*settings.Store)(nil),
		(*command.Commands)(nil),
		(*supervisor.Supervisor)(nil),
		(*plugin.Manager)(nil),
	}
}

func (a *App) Host() *logx.Service        { return a.host }
func (a *App) Policy() *level.Policy      { return a.policy }
func (a *App) Registry() *facade.Registry { return a.registry }
func (a *App) Plugins() *plugin.Manager   { return a.plugins }

// Installed reports whether the registry is the process-wide provider.
func (a *App) Installed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.installed
}

// Register adds a plugin with its bundled resources (plugin.json and friends).
func (a *App) Register(p plugin.Plugin, resources fs.FS) error {
	_, err := a.plugins.Register(p, resources)
	return err
}

// Start loads settings, installs the facade as provider and starts plugins.
// A foreign provider already in place is reported loudly but is not fatal.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return errors.New("app already started")
	}

	if a.store != nil {
		if err := a.store.Load(); err != nil {
			a.log.Error("Failed to read settings", err)
		}
	}

	a.install()

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.loggerFor((*supervisor.Supervisor)(nil))))
	if a.store != nil && a.cfg.Watch {
		a.sup.GoRestart("settings.watch", a.store.Watch)
	}

	if err := a.plugins.StartAll(a.sup.Context()); err != nil {
		a.log.Warn("some plugins failed to start", err)
	}
	return nil
}

func (a *App) loggerFor(v any) logapi.Logger {
	return a.registry.GetLogger(logapi.TypeName(reflect.TypeOf(v)))
}

func (a *App) install() {
	err := logapi.Install(a.registry)
	if errors.Is(err, logapi.ErrForeignFactory) {
		a.host.Log(logx.HostError, "The logging provider isn't provided by modlog.")
		a.host.Log(logx.HostError, fmt.Sprintf("Got %T instead of %T.", logapi.Current(), a.registry))
		a.host.Log(logx.HostError, "Make sure that other plugins do not make their own logging provider global.")
		return
	}
	if err != nil {
		a.host.Log(logx.HostError, "Failed to initialize modlog: "+facade.FormatError(err))
		return
	}

	a.installed = true
	a.log.Info("Initialized modlog")
	if a.cfg.Bridge {
		a.unbridge = bridge.Install(a.registry)
		a.log.Debug("Successfully redirected standard logging to modlog")
	}
}

// Command runs one operator command line, for example "log-level net debug".
func (a *App) Command(line string) error {
	return a.commands.Line(line)
}

// Stop stops plugins and background work, then gives the provider slot back.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	a.plugins.StopAll(ctx)
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		a.sup = nil
	}
	if a.unbridge != nil {
		a.unbridge()
		a.unbridge = nil
	}
	if a.installed {
		logapi.Uninstall(a.registry)
		a.installed = false
	}
	if err := a.host.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
