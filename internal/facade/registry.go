// Package facade implements logapi.Factory: it attributes loggers to the plugin
// that owns the requesting code and renders their lines into the host sink.
package facade

import (
	"reflect"
	"sync"

	"modlog/internal/attribution"
	"modlog/internal/level"
	"modlog/pkg/logapi"
	"modlog/pkg/logx"
)

// Sink receives fully rendered lines.
type Sink interface {
	Log(level logx.HostLevel, line string)
}

type Config struct {
	Policy  *level.Policy
	Sink    Sink
	Classes attribution.ClassLookup
	// Frames defaults to attribution.RuntimeFrames.
	Frames attribution.FrameSource
	// Metadata defaults to a reader probing attribution.MetadataNames.
	Metadata *attribution.MetadataReader
	// LoggingPackages defaults to attribution.DefaultLoggingPackages.
	LoggingPackages []string
	// Dispatch adds class identifiers to skip during stack walks, for code
	// that forwards log calls on behalf of others (bridges, wrappers).
	Dispatch []string
}

// Registry caches loggers by name.
//
// A cached logger is never replaced: the first attribution of a name wins.
// Names resolved through a stack walk are never cached.
type Registry struct {
	policy  *level.Policy
	sink    Sink
	callers *attribution.CallerResolver
	owners  *attribution.OwnershipResolver

	loggers sync.Map // string -> *Logger
}

// DispatchClasses are the class identifiers of the facade's own call chain.
func DispatchClasses() []string {
	rt := reflect.TypeOf((*Registry)(nil)).Elem()
	return []string{
		logapi.TypeName(rt),
		rt.PkgPath(),
		logapi.TypeName(reflect.TypeOf(Logger{})),
		reflect.TypeOf((*logapi.Factory)(nil)).Elem().PkgPath(),
	}
}

func NewRegistry(cfg Config) *Registry {
	pkgs := cfg.LoggingPackages
	if pkgs == nil {
		pkgs = attribution.DefaultLoggingPackages
	}
	ex := attribution.Exclusions{
		Dispatch:        append(DispatchClasses(), cfg.Dispatch...),
		LoggingPackages: pkgs,
	}
	r := &Registry{
		policy:  cfg.Policy,
		sink:    cfg.Sink,
		callers: attribution.NewCallerResolver(cfg.Classes, cfg.Frames, ex),
		owners:  attribution.NewOwnershipResolver(cfg.Metadata),
	}
	r.loggers.Store(logapi.RootLoggerName, r.newLogger(logapi.RootLoggerName, ""))
	return r
}

// GetLogger implements logapi.Factory.
func (r *Registry) GetLogger(name string) logapi.Logger { return r.Resolve(name) }

// Resolve returns the logger for name, attributing and caching it as needed.
// A failure during attribution yields an unattributed, uncached logger.
func (r *Registry) Resolve(name string) (l *Logger) {
	if l, ok := r.loggers.Load(name); ok {
		return l.(*Logger)
	}
	defer func() {
		if rec := recover(); rec != nil {
			reportFailure(name, rec)
			l = r.newLogger(name, "")
		}
	}()
	return r.resolve(name)
}

func (r *Registry) resolve(name string) *Logger {

	cls, cacheable, ok := r.callers.Resolve(name)
	if !ok {
		return r.newLogger(name, "")
	}

	if cls.Plugin {
		display, ok := r.owners.Owner(cls)
		if !ok {
			return r.newLogger(name, "")
		}
		if !cacheable {
			// A custom logger created inside plugin code.
			return r.newLogger(name, display)
		}
		return r.store(name, r.newLogger(display, display))
	}

	owner, _ := r.owners.OwnerOfUnit(cls.Unit)
	l := r.newLogger(name, owner)
	if !cacheable {
		return l
	}
	return r.store(name, l)
}

func (r *Registry) store(name string, l *Logger) *Logger {
	actual, _ := r.loggers.LoadOrStore(name, l)
	return actual.(*Logger)
}

// Cached returns the cached logger for name, if any.
func (r *Registry) Cached(name string) (*Logger, bool) {
	l, ok := r.loggers.Load(name)
	if !ok {
		return nil, false
	}
	return l.(*Logger), true
}

// Len returns the number of cached loggers, root included.
func (r *Registry) Len() int {
	n := 0
	r.loggers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Root returns the root logger.
func (r *Registry) Root() *Logger {
	l, _ := r.Cached(logapi.RootLoggerName)
	return l
}

func (r *Registry) newLogger(name, owner string) *Logger {
	return &Logger{name: name, owner: owner, policy: r.policy, sink: r.sink}
}

var _ logapi.Factory = (*Registry)(nil)
