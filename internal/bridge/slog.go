package bridge

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"modlog/internal/loader"
	"modlog/pkg/logapi"
)

// SlogLoggerName is used when a record carries no caller.
const SlogLoggerName = "slog"

// Handler is a slog.Handler writing through the facade. The logger name is
// the class of the code that produced the record.
type Handler struct {
	factory logapi.Factory
	attrs   []slog.Attr
	group   string
}

func NewHandler(factory logapi.Factory) *Handler {
	return &Handler{factory: factory}
}

// Enabled always reports true: the threshold depends on the logger name,
// which is only known from the record.
func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	log := h.factory.GetLogger(recordName(r.PC))
	lv := FromSlog(r.Level)
	if !log.Enabled(lv) {
		return nil
	}

	pattern, args := literal(r.Message)
	var (
		b   strings.Builder
		err error
	)
	b.WriteString(pattern)
	add := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		if e, ok := a.Value.Any().(error); ok && err == nil {
			err = e
			return
		}
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("={}")
		args = append(args, a.Value.String())
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		add(a)
		return true
	})

	log.Log(lv, "", err, b.String(), args...)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

// FromSlog maps a slog level onto the facade's levels.
func FromSlog(l slog.Level) logapi.Level {
	switch {
	case l < slog.LevelDebug:
		return logapi.LevelTrace
	case l < slog.LevelInfo:
		return logapi.LevelDebug
	case l < slog.LevelWarn:
		return logapi.LevelInfo
	case l < slog.LevelError:
		return logapi.LevelWarn
	default:
		return logapi.LevelError
	}
}

func recordName(pc uintptr) string {
	if pc == 0 {
		return SlogLoggerName
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if name := loader.FrameClass(frame.Function); name != "" {
		return name
	}
	return SlogLoggerName
}

var _ slog.Handler = (*Handler)(nil)
