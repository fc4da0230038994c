// Package level decides which log calls are enabled.
//
// The root threshold follows the host verbosity. Any other logger uses its
// explicit override when one is set (names compare case-insensitively) and the
// root threshold otherwise.
package level

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"modlog/pkg/logapi"
	"modlog/pkg/logx"
)

// ErrRootOverride is returned when an override is requested for the root logger.
var ErrRootOverride = errors.New("cannot modify the root logger level, change the host verbosity instead")

// Verbosity reports the host's current verbosity.
type Verbosity interface {
	Level() logx.HostLevel
}

// Options is a snapshot of the display toggles.
type Options struct {
	ShowOwner bool
	ShowName  bool
	Trace     bool
	Color     bool
}

func DefaultOptions() Options {
	return Options{ShowOwner: true, Color: true}
}

// Policy holds the override table and the option snapshot. Readers never block.
type Policy struct {
	host      Verbosity
	overrides sync.Map // lower-cased name -> logapi.Level
	opts      atomic.Pointer[Options]
}

func NewPolicy(host Verbosity, opts Options) *Policy {
	p := &Policy{host: host}
	p.opts.Store(&opts)
	return p
}

func (p *Policy) Options() Options { return *p.opts.Load() }

func (p *Policy) SetOptions(o Options) { p.opts.Store(&o) }

// UpdateOptions applies fn to the current options atomically.
func (p *Policy) UpdateOptions(fn func(o *Options)) Options {
	for {
		cur := p.opts.Load()
		next := *cur
		fn(&next)
		if p.opts.CompareAndSwap(cur, &next) {
			return next
		}
	}
}

// Root computes the root threshold from the host verbosity.
func (p *Policy) Root() Threshold {
	switch p.host.Level() {
	case logx.HostSilent:
		return Disabled
	case zerolog.TraceLevel, logx.HostDebug:
		if p.Options().Trace {
			return At(logapi.LevelTrace)
		}
		return At(logapi.LevelDebug)
	case logx.HostWarn:
		return At(logapi.LevelWarn)
	case logx.HostError, zerolog.FatalLevel, zerolog.PanicLevel:
		return At(logapi.LevelError)
	default:
		return At(logapi.LevelInfo)
	}
}

func IsRoot(name string) bool { return strings.EqualFold(name, logapi.RootLoggerName) }

func key(name string) string { return strings.ToLower(name) }

// Override returns the explicit override for name. The root never has one.
func (p *Policy) Override(name string) (logapi.Level, bool) {
	if IsRoot(name) {
		return 0, false
	}
	v, ok := p.overrides.Load(key(name))
	if !ok {
		return 0, false
	}
	return v.(logapi.Level), true
}

func (p *Policy) SetOverride(name string, l logapi.Level) error {
	if IsRoot(name) {
		return ErrRootOverride
	}
	if !l.Valid() {
		return errors.New("invalid level " + l.String())
	}
	p.overrides.Store(key(name), l)
	return nil
}

func (p *Policy) ClearOverride(name string) error {
	if IsRoot(name) {
		return ErrRootOverride
	}
	p.overrides.Delete(key(name))
	return nil
}

// Overrides returns a copy of the override table.
func (p *Policy) Overrides() map[string]logapi.Level {
	out := map[string]logapi.Level{}
	p.overrides.Range(func(k, v any) bool {
		out[k.(string)] = v.(logapi.Level)
		return true
	})
	return out
}

// OverrideNames returns the overridden names, sorted.
func (p *Policy) OverrideNames() []string {
	m := p.Overrides()
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ReplaceOverrides makes the table equal to m. Root entries are dropped.
func (p *Policy) ReplaceOverrides(m map[string]logapi.Level) {
	want := make(map[string]logapi.Level, len(m))
	for k, v := range m {
		if IsRoot(k) || !v.Valid() {
			continue
		}
		want[key(k)] = v
	}
	p.overrides.Range(func(k, _ any) bool {
		if _, keep := want[k.(string)]; !keep {
			p.overrides.Delete(k)
		}
		return true
	})
	for k, v := range want {
		p.overrides.Store(k, v)
	}
}

// Effective returns the threshold that applies to name.
func (p *Policy) Effective(name string) Threshold {
	if l, ok := p.Override(name); ok {
		return At(l)
	}
	return p.Root()
}

func (p *Policy) Enabled(name string, l logapi.Level) bool {
	return p.Effective(name).Allows(l)
}
