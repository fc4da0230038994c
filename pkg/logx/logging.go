package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ---- Config ----

type Config struct {
	// Level is the host verbosity: debug, info, warn, error or none.
	Level   string
	NoColor bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ---- Host levels ----

type HostLevel = zerolog.Level

const (
	HostDebug  = zerolog.DebugLevel
	HostInfo   = zerolog.InfoLevel
	HostWarn   = zerolog.WarnLevel
	HostError  = zerolog.ErrorLevel
	HostSilent = zerolog.Disabled
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ---- Service ----

// Service owns the single output writer and the host verbosity.
//
// Log never filters: callers decide whether a line is wanted before rendering it.
// Apply swaps the writer at runtime and is safe to call concurrently with Log.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root  atomic.Value // stores zerolog.Logger
	level atomic.Int32

	console io.Writer
	file    *os.File
}

// New creates the service and applies cfg immediately.
func New(cfg Config) *Service {
	return newService(cfg, Stdout())
}

func newService(cfg Config, console io.Writer) *Service {
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{console: console}
	s.root.Store(newConsoleRoot(console, cfg.NoColor))
	s.Apply(cfg)
	return s
}

func (s *Service) current() zerolog.Logger {
	v := s.root.Load()
	if v == nil {
		return zerolog.Nop()
	}
	zl, ok := v.(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

// Level returns the current host verbosity.
func (s *Service) Level() HostLevel { return HostLevel(s.level.Load()) }

// SetLevel changes the host verbosity. HostSilent silences everything.
func (s *Service) SetLevel(l HostLevel) { s.level.Store(int32(l)) }

// Log writes one fully rendered line at the given host level.
func (s *Service) Log(level HostLevel, line string) {
	zl := s.current()
	zl.WithLevel(level).Msg(line)
}

// Apply swaps the output writer and verbosity.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.SetLevel(ParseLevel(cfg.Level, HostInfo))

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var out io.Writer
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./modlog.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			out = zerolog.SyncWriter(f)
		}
	}
	if out == nil {
		s.root.Store(newConsoleRoot(s.console, cfg.NoColor))
		return
	}
	s.root.Store(zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp().Logger())
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	s.root.Store(newConsoleRoot(s.console, s.cfg.NoColor))
	if f != nil {
		return f.Close()
	}
	return nil
}

func newConsoleRoot(w io.Writer, noColor bool) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: noColor}
	return zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}

// ParseLevel maps a host verbosity name to a HostLevel.
func ParseLevel(s string, def HostLevel) HostLevel {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "TRACE", "DEBUG":
		return HostDebug
	case "INFO":
		return HostInfo
	case "WARN", "WARNING":
		return HostWarn
	case "ERR", "ERROR":
		return HostError
	case "NONE", "SILENT", "OFF":
		return HostSilent
	default:
		return def
	}
}

// Stdout returns the configured stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the configured stderr sink.
func Stderr() io.Writer { return os.Stderr }
