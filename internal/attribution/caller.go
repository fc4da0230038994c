package attribution

import (
	"reflect"
	"runtime"
	"strings"

	"modlog/internal/loader"
	"modlog/pkg/logapi"
)

// FrameSource returns the class identifiers of the current call stack,
// innermost first, after dropping skip frames of its own.
type FrameSource func(skip int) []string

const maxFrames = 64

// RuntimeFrames is the FrameSource backed by runtime.Callers.
func RuntimeFrames(skip int) []string {
	pcs := make([]uintptr, maxFrames)
	// +2: runtime.Callers and RuntimeFrames itself.
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		fr, more := frames.Next()
		if fr.Function != "" {
			out = append(out, loader.FrameClass(fr.Function))
		}
		if !more {
			break
		}
	}
	return out
}

// DefaultLoggingPackages are generic logging libraries whose frames never count
// as the caller.
var DefaultLoggingPackages = []string{
	"log",
	"log/slog",
	"github.com/rs/zerolog",
	"github.com/sirupsen/logrus",
	"go.uber.org/zap",
}

// Exclusions lists the frames skipped while searching for the caller.
type Exclusions struct {
	// Dispatch holds exact class identifiers of the facade's own call chain.
	Dispatch []string
	// LoggingPackages holds package paths; a frame matches a package and
	// everything below it.
	LoggingPackages []string
}

// ClassLookup resolves class identifiers.
type ClassLookup interface {
	Lookup(name string) (loader.Class, bool)
}

// CallerResolver decides which class a logger request originates from.
type CallerResolver struct {
	classes  ClassLookup
	frames   FrameSource
	dispatch map[string]struct{}
	logging  []string
}

func NewCallerResolver(classes ClassLookup, frames FrameSource, ex Exclusions) *CallerResolver {
	if frames == nil {
		frames = RuntimeFrames
	}
	r := &CallerResolver{
		classes:  classes,
		frames:   frames,
		dispatch: make(map[string]struct{}, len(ex.Dispatch)+1),
		logging:  append([]string(nil), ex.LoggingPackages...),
	}
	for _, self := range selfClasses() {
		r.dispatch[self] = struct{}{}
	}
	for _, d := range ex.Dispatch {
		r.dispatch[d] = struct{}{}
	}
	return r
}

func selfClasses() []string {
	t := reflect.TypeOf(CallerResolver{})
	return []string{t.PkgPath(), logapi.TypeName(t)}
}

// Resolve returns the origin class for name. cacheable is true only when name
// itself is a known class identifier. ok is false when no origin was found.
func (r *CallerResolver) Resolve(name string) (cls loader.Class, cacheable bool, ok bool) {
	if cls, ok := r.classes.Lookup(name); ok {
		return cls, true, true
	}
	candidate, found := r.caller()
	if !found {
		return loader.Class{}, false, false
	}
	if cls, ok := r.classes.Lookup(candidate); ok {
		return cls, false, true
	}
	if pkg := loader.PackageOf(candidate); pkg != candidate {
		if cls, ok := r.classes.Lookup(pkg); ok {
			return cls, false, true
		}
	}
	return loader.Class{}, false, false
}

func (r *CallerResolver) caller() (string, bool) {
	for _, class := range r.frames(1) {
		if r.excluded(class) {
			continue
		}
		return class, true
	}
	return "", false
}

func (r *CallerResolver) excluded(class string) bool {
	if class == "" {
		return true
	}
	if _, ok := r.dispatch[class]; ok {
		return true
	}
	pkg := loader.PackageOf(class)
	for _, p := range r.logging {
		if pkg == p || strings.HasPrefix(pkg, p+"/") {
			return true
		}
	}
	return false
}
