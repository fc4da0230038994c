package facade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"modlog/internal/level"
	"modlog/pkg/logapi"
)

// Placeholder is replaced by the next argument when a pattern is rendered.
const Placeholder = "{}"

// Entry is the rendering view of a logger.
type Entry struct {
	Name  string
	Owner string
}

// Call carries the data of one log call.
type Call struct {
	Level   logapi.Level
	Pattern string
	Args    []any
	Err     error
}

var (
	valueColor = forced(color.New(color.FgHiBlue, color.Bold))
	levelColor = map[logapi.Level]*color.Color{
		logapi.LevelTrace: forced(color.New(color.FgHiCyan, color.Bold)),
		logapi.LevelDebug: forced(color.New(color.FgHiCyan, color.Bold)),
		logapi.LevelInfo:  forced(color.New(color.FgHiBlue, color.Bold)),
		logapi.LevelWarn:  forced(color.New(color.FgHiYellow, color.Bold)),
		logapi.LevelError: forced(color.New(color.FgHiRed, color.Bold)),
	}
)

// forced makes c emit escapes even when stdout is not a terminal; the sink
// decides what to do with them.
func forced(c *color.Color) *color.Color {
	c.EnableColor()
	return c
}

type painter struct {
	on    bool
	level *color.Color
}

func newPainter(lv logapi.Level, on bool) painter {
	c, ok := levelColor[lv]
	if !ok {
		c = levelColor[logapi.LevelInfo]
	}
	return painter{on: on, level: c}
}

func (p painter) tag(s string) string {
	if !p.on {
		return "[" + s + "] "
	}
	return p.level.Sprint("["+s+"]") + " "
}

func (p painter) value(s string) string {
	if !p.on {
		return s
	}
	return valueColor.Sprint(s)
}

func (p painter) body(s string, lv logapi.Level) string {
	if !p.on || s == "" || lv != logapi.LevelError {
		return s
	}
	return p.level.Sprint(s)
}

// Render builds the final line for call from its inputs alone. A failure while
// rendering yields whatever was rendered up to that point.
func Render(e Entry, call Call, opts level.Options) (line string) {
	var b strings.Builder
	defer func() {
		if r := recover(); r != nil {
			reportFailure(e.Name, r)
			line = b.String()
		}
	}()
	render(&b, e, call, opts)
	return b.String()
}

func render(b *strings.Builder, e Entry, call Call, opts level.Options) {
	p := newPainter(call.Level, opts.Color)

	if !level.IsRoot(e.Name) {
		if e.Owner != "" && opts.ShowOwner {
			b.WriteString(p.tag(e.Owner))
		}
		if opts.ShowName {
			b.WriteString(p.tag(e.Name))
		}
	}

	args, err := absorbError(call.Args, call.Err)

	substitute(call.Pattern, args,
		func(s string) { b.WriteString(p.body(s, call.Level)) },
		func(s string) { b.WriteString(p.value(s)) },
	)

	if err != nil {
		b.WriteString(": ")
		b.WriteString(p.body(FormatError(err), call.Level))
	}
}

// absorbError moves a trailing error argument into the call's error slot
// when no explicit error was given.
func absorbError(args []any, err error) ([]any, error) {
	if err != nil || len(args) == 0 {
		return args, err
	}
	if last, ok := args[len(args)-1].(error); ok && last != nil {
		return args[:len(args)-1], last
	}
	return args, nil
}

// substitute walks pattern and reports literal runs and placeholder values in
// order. `\{}` is a literal "{}"; `\\{}` is a backslash followed by a value.
// Placeholders left without an argument are reported as values reading "{}".
func substitute(pattern string, args []any, lit, val func(string)) {
	next := 0
	start := 0
	i := 0
	for {
		j := strings.Index(pattern[i:], Placeholder)
		if j < 0 {
			break
		}
		j += i
		if j > 0 && pattern[j-1] == '\\' {
			if j < 2 || pattern[j-2] != '\\' {
				lit(pattern[start : j-1])
				lit("{")
				start = j + 1
				i = j + 1
				continue
			}
			lit(pattern[start : j-1])
		} else {
			lit(pattern[start:j])
		}
		if next < len(args) {
			val(fmt.Sprint(args[next]))
			next++
		} else {
			val(Placeholder)
		}
		start = j + len(Placeholder)
		i = start
	}
	lit(pattern[start:])
}

// FormatError renders err with its type and every wrapped cause.
// Errors carrying a stack trace print it through %+v.
func FormatError(err error) string {
	var b strings.Builder
	writeError(&b, err, 0)
	return b.String()
}

const maxCauseDepth = 16

func writeError(b *strings.Builder, err error, depth int) {
	fmt.Fprintf(b, "%T: %+v", err, err)
	if depth >= maxCauseDepth {
		return
	}
	var causes []error
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		causes = u.Unwrap()
	default:
		if c := errors.Unwrap(err); c != nil {
			causes = []error{c}
		}
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		b.WriteString("\nCaused by: ")
		writeError(b, c, depth+1)
	}
}
