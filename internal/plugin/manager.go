package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"runtime/debug"
	"sync"

	"modlog/internal/loader"
	"modlog/pkg/logapi"
)

// Plugin is the entry-point contract every plugin implements.
type Plugin interface {
	Name() string
	Init(ctx context.Context, deps Deps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Deps is what a plugin receives at Init.
type Deps struct {
	// Logger is attributed to the plugin and labeled with its display name.
	Logger  logapi.Logger
	Factory logapi.Factory
	Unit    loader.Unit
}

var pluginType = reflect.TypeOf((*Plugin)(nil)).Elem()

// IsPluginType reports whether t (or *t) implements Plugin.
func IsPluginType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(pluginType) {
		return true
	}
	return t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(pluginType)
}

type entry struct {
	p       Plugin
	unit    *loader.Loader
	inited  bool
	running bool
	cancel  context.CancelFunc
}

// Manager loads plugins into their own units below the module-loading unit.
type Manager struct {
	mu sync.Mutex

	log     logapi.Logger
	modules loader.Unit
	classes *loader.ClassPath
	factory logapi.Factory

	reg   map[string]*entry
	order []string
}

// NewManager creates a manager. A nil factory means logapi.Current() at Init time.
func NewManager(log logapi.Logger, modules loader.Unit, classes *loader.ClassPath, factory logapi.Factory) *Manager {
	if log == nil {
		log = logapi.Nop("plugin.Manager")
	}
	return &Manager{
		log:     log,
		modules: modules,
		classes: classes,
		factory: factory,
		reg:     map[string]*entry{},
	}
}

// Register creates the plugin's unit with the given bundled resources and
// defines the plugin type and its package in that unit.
func (m *Manager) Register(p Plugin, resources fs.FS) (*loader.Loader, error) {
	if p == nil {
		return nil, errors.New("nil plugin")
	}
	name := p.Name()
	if name == "" {
		return nil, errors.New("plugin has empty name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.reg[name]; dup {
		return nil, fmt.Errorf("plugin %q already registered", name)
	}

	u := loader.New(name, loader.KindPlugin, m.modules, resources)
	t := reflect.TypeOf(p)
	cls := m.classes.DefineType(t, u, true)
	if pkg := loader.PackageOf(cls.Name); pkg != cls.Name {
		m.classes.DefinePackage(pkg, u)
	}

	m.reg[name] = &entry{p: p, unit: u}
	m.order = append(m.order, name)
	m.log.Debug("registered plugin {} as {}", name, cls.Name)
	return u, nil
}

// DefineType defines the type of v as code of the named plugin.
func (m *Manager) DefineType(plugin string, v any) (loader.Class, error) {
	u, ok := m.Unit(plugin)
	if !ok {
		return loader.Class{}, fmt.Errorf("unknown plugin %q", plugin)
	}
	t := reflect.TypeOf(v)
	return m.classes.DefineType(t, u, IsPluginType(t)), nil
}

// Unit returns the root unit of the named plugin.
func (m *Manager) Unit(plugin string) (*loader.Loader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.reg[plugin]
	if !ok {
		return nil, false
	}
	return e.unit, true
}

// Names returns plugin names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) factoryOrCurrent() logapi.Factory {
	if m.factory != nil {
		return m.factory
	}
	return logapi.Current()
}

// StartAll initializes (once) and starts every registered plugin that is not
// running. A failing plugin does not keep the others from starting.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.Names() {
		if err := m.start(ctx, name); err != nil {
			m.log.Error("plugin {} failed to start", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) start(ctx context.Context, name string) error {
	m.mu.Lock()
	e := m.reg[name]
	m.mu.Unlock()
	if e == nil || e.running {
		return nil
	}

	if !e.inited {
		f := m.factoryOrCurrent()
		deps := Deps{
			Logger:  f.GetLogger(logapi.TypeName(reflect.TypeOf(e.p))),
			Factory: f,
			Unit:    e.unit,
		}
		if err := m.safeCall("plugin.init."+name, func() error { return e.p.Init(ctx, deps) }); err != nil {
			return err
		}
		e.inited = true
	}

	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := m.safeCall("plugin.start."+name, func() error { return e.p.Start(pctx) }); err != nil {
		cancel()
		return err
	}

	m.mu.Lock()
	e.running = true
	e.cancel = cancel
	m.mu.Unlock()
	m.log.Info("plugin {} started", name)
	return nil
}

// StopAll stops running plugins in reverse registration order.
func (m *Manager) StopAll(ctx context.Context) {
	names := m.Names()
	for i := len(names) - 1; i >= 0; i-- {
		m.stop(ctx, names[i])
	}
}

func (m *Manager) stop(ctx context.Context, name string) {
	m.mu.Lock()
	e := m.reg[name]
	if e == nil || !e.running {
		m.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := m.safeCall("plugin.stop."+name, func() error { return e.p.Stop(ctx) }); err != nil {
		m.log.Warn("plugin {} stopped with error", name, err)
		return
	}
	m.log.Debug("plugin {} stopped", name)
}

// Running reports whether the named plugin is started.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.reg[name]
	return ok && e.running
}

func (m *Manager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in plugin call {}: {}\n{}", label, r, string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}
