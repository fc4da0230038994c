// Package logapi is the logging API that plugins and host code program against.
//
// Code asks for a Logger by name (usually the fully qualified name of its own
// type, see GetLoggerFor) and emits messages using "{}" placeholders:
//
//	log := logapi.GetLoggerFor(p)
//	log.Info("loaded {} maps in {}", n, took)
//	log.Warn("retrying", err) // a trailing error argument becomes the attached error
//
// The implementation behind the API is installed once per process with Install.
// Until then every logger is a no-op.
package logapi

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
)

// RootLoggerName names the root logger.
const RootLoggerName = "ROOT"

// Marker tags a log call. Markers are accepted for API compatibility and do not
// change how a line is rendered.
type Marker string

type Logger interface {
	Name() string
	Enabled(level Level) bool

	Trace(pattern string, args ...any)
	Debug(pattern string, args ...any)
	Info(pattern string, args ...any)
	Warn(pattern string, args ...any)
	Error(pattern string, args ...any)

	// Log is the general form. err may be nil, in which case a trailing error
	// argument is used instead.
	Log(level Level, marker Marker, err error, pattern string, args ...any)
}

// Factory hands out loggers by name.
type Factory interface {
	GetLogger(name string) Logger
}

// ErrForeignFactory is returned by Install when another factory already owns the slot.
var ErrForeignFactory = errors.New("logapi: a foreign logger factory is installed")

type factoryBox struct{ f Factory }

var provider atomic.Pointer[factoryBox]

// Install makes f the process-wide factory. Installing the same factory twice is
// a no-op; any other occupant yields ErrForeignFactory and is left in place.
func Install(f Factory) error {
	if f == nil {
		return errors.New("logapi: nil factory")
	}
	if provider.CompareAndSwap(nil, &factoryBox{f: f}) {
		return nil
	}
	cur := provider.Load()
	if cur != nil && cur.f == f {
		return nil
	}
	return fmt.Errorf("%w: got %T", ErrForeignFactory, cur.f)
}

// Uninstall releases the slot if f currently owns it.
func Uninstall(f Factory) bool {
	cur := provider.Load()
	if cur == nil || cur.f != f {
		return false
	}
	return provider.CompareAndSwap(cur, nil)
}

// Current returns the installed factory, or a no-op factory.
func Current() Factory {
	if b := provider.Load(); b != nil {
		return b.f
	}
	return nopFactory{}
}

func GetLogger(name string) Logger { return Current().GetLogger(name) }

// GetLoggerFor returns the logger named after the dynamic type of v.
func GetLoggerFor(v any) Logger { return GetLogger(TypeName(reflect.TypeOf(v))) }

// TypeName returns the fully qualified name of t ("import/path.Type"),
// looking through pointers. Unnamed types yield their string form.
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
