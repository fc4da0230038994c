// Package bridge routes the standard library's log and log/slog output into
// the logging facade.
package bridge

import (
	"bytes"
	"io"
	"log"
	"log/slog"
	"reflect"
	"strings"

	"modlog/pkg/logapi"
)

// StdLoggerName is the logger name used for output of the log package.
const StdLoggerName = "log"

type writer struct {
	factory logapi.Factory
}

func (w writer) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\r\n"))
	pattern, args := literal(msg)
	w.factory.GetLogger(StdLoggerName).Info(pattern, args...)
	return len(p), nil
}

type stdState struct {
	out    io.Writer
	flags  int
	prefix string
}

func saveStd() stdState {
	return stdState{out: log.Writer(), flags: log.Flags(), prefix: log.Prefix()}
}

func (s stdState) restore() {
	log.SetOutput(s.out)
	log.SetFlags(s.flags)
	log.SetPrefix(s.prefix)
}

func redirect(factory logapi.Factory) {
	log.SetOutput(writer{factory: factory})
	log.SetFlags(0)
	log.SetPrefix("")
}

// RedirectStdLog sends the default log.Logger to factory at INFO.
// The returned func restores the previous output, flags and prefix.
func RedirectStdLog(factory logapi.Factory) (restore func()) {
	prev := saveStd()
	redirect(factory)
	return prev.restore
}

// Install redirects both log and log/slog to factory.
func Install(factory logapi.Factory) (restore func()) {
	std := saveStd()
	prev := slog.Default()
	// slog.SetDefault rewires the log package too, so the redirect comes
	// after it and restoring sets log back explicitly.
	slog.SetDefault(slog.New(NewHandler(factory)))
	redirect(factory)
	return func() {
		slog.SetDefault(prev)
		std.restore()
	}
}

// DispatchClasses lists the bridge's own frames, which are skipped when the
// caller of a bridged message is looked up.
func DispatchClasses() []string {
	return []string{
		logapi.TypeName(reflect.TypeOf(writer{})),
		logapi.TypeName(reflect.TypeOf(Handler{})),
		reflect.TypeOf(writer{}).PkgPath(),
	}
}

// literal turns text into a pattern that renders it verbatim.
func literal(text string) (string, []any) {
	if !strings.Contains(text, "{}") {
		return text, nil
	}
	var (
		b    strings.Builder
		args []any
	)
	for {
		i := strings.Index(text, "{}")
		if i < 0 {
			break
		}
		b.WriteString(text[:i])
		b.WriteString(`\{}`)
		if i > 0 && text[i-1] == '\\' {
			// The backslash before it turns the escape into a value slot.
			args = append(args, "{}")
		}
		text = text[i+2:]
	}
	b.WriteString(text)
	return b.String(), args
}
