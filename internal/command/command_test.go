package command

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"modlog/internal/level"
	"modlog/pkg/logapi"
	"modlog/pkg/logx"
)

type hostAt logx.HostLevel

func (h hostAt) Level() logx.HostLevel { return logx.HostLevel(h) }

type line struct {
	err  bool
	text string
}

type recorder struct{ lines []line }

func expand(pattern string, args []any) string {
	for _, a := range args {
		pattern = strings.Replace(pattern, "{}", fmt.Sprint(a), 1)
	}
	return pattern
}

func (r *recorder) Info(p string, args ...any) {
	r.lines = append(r.lines, line{false, expand(p, args)})
}
func (r *recorder) Error(p string, args ...any) {
	r.lines = append(r.lines, line{true, expand(p, args)})
}

func (r *recorder) last() line {
	if len(r.lines) == 0 {
		return line{}
	}
	return r.lines[len(r.lines)-1]
}

type countingSaver struct {
	n   int
	err error
}

func (s *countingSaver) Save() error {
	s.n++
	return s.err
}

func newCommands(t *testing.T) (*Commands, *level.Policy, *recorder, *countingSaver) {
	t.Helper()
	p := level.NewPolicy(hostAt(logx.HostDebug), level.DefaultOptions())
	out := &recorder{}
	saver := &countingSaver{}
	return New(p, saver, out), p, out, saver
}

func run(t *testing.T, c *Commands, line string) {
	t.Helper()
	if err := c.Line(line); err != nil {
		t.Fatalf("Line(%q): %v", line, err)
	}
}

func TestHelpListsSubcommands(t *testing.T) {
	t.Parallel()
	c, _, out, _ := newCommands(t)
	run(t, c, "")

	if len(out.lines) == 0 || !strings.Contains(out.lines[0].text, "Available SubCommands") {
		t.Fatalf("unexpected help output: %+v", out.lines)
	}
	joined := ""
	for _, l := range out.lines {
		joined += l.text + "\n"
	}
	for _, want := range []string{
		"> log-level <logger> [level|clear]",
		"> log-level-list",
		"> enable-trace [true|false]",
		"> show-mod-name [true|false]",
		"> show-class-name [true|false]",
		"> color [true|false]",
	} {
		if !strings.Contains(joined, want+"\n") {
			t.Fatalf("help is missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "no-help") || strings.Contains(joined, "completion") {
		t.Fatalf("help lists hidden commands:\n%s", joined)
	}
}

func TestUnknownSubcommand(t *testing.T) {
	t.Parallel()
	c, _, out, _ := newCommands(t)
	run(t, c, "modlog frobnicate now")
	if got := out.last(); !got.err || got.text != "Unknown subcommand: frobnicate. Run 'modlog' without arguments for help." {
		t.Fatalf("got %+v", got)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	c, p, out, saver := newCommands(t)

	run(t, c, "log-level")
	if got := out.last(); !got.err || got.text != "Usage: log-level <logger> [level|clear]" {
		t.Fatalf("got %+v", got)
	}

	run(t, c, "log-level Net.Http")
	if got := out.last().text; got != "Logger Net.Http has no explicit level set (inherits from root)." {
		t.Fatalf("got %q", got)
	}

	run(t, c, "log-level Net.Http warn")
	if got := out.last().text; got != "Set log level of Net.Http to WARN." {
		t.Fatalf("got %q", got)
	}
	if lv, ok := p.Override("net.http"); !ok || lv != logapi.LevelWarn {
		t.Fatalf("override = %v %v", lv, ok)
	}

	run(t, c, "log-level net.http")
	if got := out.last().text; got != "Logger net.http has level WARN." {
		t.Fatalf("got %q", got)
	}

	run(t, c, "log-level net.http loud")
	if got := out.last(); !got.err || !strings.Contains(got.text, "[TRACE, DEBUG, INFO, WARN, ERROR]") {
		t.Fatalf("got %+v", got)
	}

	run(t, c, "log-level net.http CLEAR")
	if _, ok := p.Override("net.http"); ok {
		t.Fatal("override not cleared")
	}
	if saver.n != 2 {
		t.Fatalf("Save called %d times, want 2", saver.n)
	}
}

func TestLogLevelRejectsRoot(t *testing.T) {
	t.Parallel()
	c, p, out, saver := newCommands(t)
	for _, cmd := range []string{"log-level root trace", "log-level ROOT clear"} {
		run(t, c, cmd)
		if got := out.last(); !got.err || !strings.HasPrefix(got.text, "Cannot modify the root logger level.") {
			t.Fatalf("%s: got %+v", cmd, got)
		}
	}
	if len(p.Overrides()) != 0 || saver.n != 0 {
		t.Fatal("root commands must not change state")
	}

	run(t, c, "log-level root")
	if got := out.last().text; got != "Logger root has level DEBUG." {
		t.Fatalf("got %q", got)
	}
}

func TestLogLevelList(t *testing.T) {
	t.Parallel()
	c, p, out, _ := newCommands(t)
	run(t, c, "log-level-list")
	if got := out.last().text; got != "No custom log levels have been set." {
		t.Fatalf("got %q", got)
	}

	_ = p.SetOverride("b", logapi.LevelError)
	_ = p.SetOverride("a", logapi.LevelTrace)
	out.lines = nil
	run(t, c, "log-level-list")
	want := []string{">>> modlog >>> Custom Log Levels >>>", "a -> TRACE", "b -> ERROR"}
	if len(out.lines) != len(want) {
		t.Fatalf("got %+v", out.lines)
	}
	for i, w := range want {
		if out.lines[i].text != w {
			t.Fatalf("line %d = %q, want %q", i, out.lines[i].text, w)
		}
	}
}

func TestToggles(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cmd     string
		subject string
		get     func(level.Options) bool
	}{
		{"enable-trace", "Trace logging", func(o level.Options) bool { return o.Trace }},
		{"show-mod-name", "Mod name display", func(o level.Options) bool { return o.ShowOwner }},
		{"show-class-name", "Class name display", func(o level.Options) bool { return o.ShowName }},
		{"color", "Colored output", func(o level.Options) bool { return o.Color }},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			c, p, out, saver := newCommands(t)
			before := tt.get(p.Options())

			run(t, c, tt.cmd)
			if got, want := out.last().text, tt.subject+" is currently "+state(before)+"."; got != want {
				t.Fatalf("got %q, want %q", got, want)
			}

			run(t, c, tt.cmd+" maybe")
			if got := out.last(); !got.err || got.text != "Usage: "+tt.cmd+" [true|false]" {
				t.Fatalf("got %+v", got)
			}
			if saver.n != 0 {
				t.Fatal("invalid value must not persist")
			}

			flip := !before
			run(t, c, fmt.Sprintf("%s %s", tt.cmd, strings.ToUpper(fmt.Sprint(flip))))
			if tt.get(p.Options()) != flip {
				t.Fatal("option not changed")
			}
			if got, want := out.last().text, tt.subject+" is now "+state(flip)+"."; got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
			if saver.n != 1 {
				t.Fatalf("Save called %d times", saver.n)
			}
		})
	}
}

func TestSaveFailureIsReported(t *testing.T) {
	t.Parallel()
	c, _, out, saver := newCommands(t)
	saver.err = errors.New("disk full")
	run(t, c, "enable-trace true")

	var reported bool
	for _, l := range out.lines {
		if l.err && strings.HasPrefix(l.text, "Failed to save settings to disk") {
			reported = true
		}
	}
	if !reported {
		t.Fatalf("save failure not reported: %+v", out.lines)
	}
}
