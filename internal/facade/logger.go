package facade

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"modlog/internal/level"
	"modlog/pkg/logapi"
	"modlog/pkg/logx"
)

// writeMu serializes every write to a sink, process-wide.
var writeMu sync.Mutex

// failures limits reports about lines that failed to render or write.
var failures = rate.NewLimiter(rate.Every(time.Second), 5)

// Logger is an immutable, attributed logger.
type Logger struct {
	name  string
	owner string

	policy *level.Policy
	sink   Sink
}

func (l *Logger) Name() string { return l.name }

// Owner returns the display name of the owning plugin.
func (l *Logger) Owner() (string, bool) { return l.owner, l.owner != "" }

func (l *Logger) Enabled(lv logapi.Level) bool { return l.policy.Enabled(l.name, lv) }

func (l *Logger) Trace(pattern string, args ...any) { l.log(logapi.LevelTrace, nil, pattern, args) }
func (l *Logger) Debug(pattern string, args ...any) { l.log(logapi.LevelDebug, nil, pattern, args) }
func (l *Logger) Info(pattern string, args ...any)  { l.log(logapi.LevelInfo, nil, pattern, args) }
func (l *Logger) Warn(pattern string, args ...any)  { l.log(logapi.LevelWarn, nil, pattern, args) }
func (l *Logger) Error(pattern string, args ...any) { l.log(logapi.LevelError, nil, pattern, args) }

func (l *Logger) Log(lv logapi.Level, _ logapi.Marker, err error, pattern string, args ...any) {
	l.log(lv, err, pattern, args)
}

func (l *Logger) log(lv logapi.Level, err error, pattern string, args []any) {
	if !l.Enabled(lv) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			reportFailure(l.name, r)
		}
	}()

	line := Render(Entry{Name: l.name, Owner: l.owner}, Call{Level: lv, Pattern: pattern, Args: args, Err: err}, l.policy.Options())

	writeMu.Lock()
	defer writeMu.Unlock()
	l.sink.Log(HostLevel(lv), line)
}

// HostLevel maps a log level to the host level it is written at.
func HostLevel(lv logapi.Level) logx.HostLevel {
	switch lv {
	case logapi.LevelTrace, logapi.LevelDebug:
		return logx.HostDebug
	case logapi.LevelWarn:
		return logx.HostWarn
	case logapi.LevelError:
		return logx.HostError
	default:
		return logx.HostInfo
	}
}

func reportFailure(logger string, r any) {
	if !failures.Allow() {
		return
	}
	fmt.Fprintf(logx.Stderr(), "modlog: logger %q failed: %v\n%s\n", logger, r, debug.Stack())
}

var _ logapi.Logger = (*Logger)(nil)
