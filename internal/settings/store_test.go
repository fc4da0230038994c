package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"modlog/internal/level"
	"modlog/pkg/logapi"
	"modlog/pkg/logx"
)

type infoHost struct{}

func (infoHost) Level() logx.HostLevel { return logx.HostInfo }

type captured struct {
	level logapi.Level
	text  string
	err   error
}

// captureLogger records calls without rendering them.
type captureLogger struct {
	mu    sync.Mutex
	calls []captured
}

func (c *captureLogger) Name() string                { return "capture" }
func (c *captureLogger) Enabled(logapi.Level) bool   { return true }
func (c *captureLogger) Trace(p string, args ...any) { c.Log(logapi.LevelTrace, "", nil, p, args...) }
func (c *captureLogger) Debug(p string, args ...any) { c.Log(logapi.LevelDebug, "", nil, p, args...) }
func (c *captureLogger) Info(p string, args ...any)  { c.Log(logapi.LevelInfo, "", nil, p, args...) }
func (c *captureLogger) Warn(p string, args ...any)  { c.Log(logapi.LevelWarn, "", nil, p, args...) }
func (c *captureLogger) Error(p string, args ...any) { c.Log(logapi.LevelError, "", nil, p, args...) }
func (c *captureLogger) Log(lv logapi.Level, _ logapi.Marker, err error, p string, args ...any) {
	if err == nil && len(args) > 0 {
		if e, ok := args[len(args)-1].(error); ok {
			err = e
		}
	}
	c.mu.Lock()
	c.calls = append(c.calls, captured{level: lv, text: p, err: err})
	c.mu.Unlock()
}

func (c *captureLogger) warnings() []captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []captured
	for _, call := range c.calls {
		if call.level == logapi.LevelWarn {
			out = append(out, call)
		}
	}
	return out
}

func newStore(t *testing.T, name, content string) (*Store, *level.Policy, *captureLogger) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	p := level.NewPolicy(infoHost{}, level.DefaultOptions())
	log := &captureLogger{}
	return NewStore(path, p, log), p, log
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	s, p, _ := newStore(t, "settings.json", "")
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Options() != level.DefaultOptions() || len(p.Overrides()) != 0 {
		t.Fatalf("policy changed: %+v %v", p.Options(), p.Overrides())
	}
}

func TestLoadAppliesValues(t *testing.T) {
	t.Parallel()
	s, p, log := newStore(t, "settings.json", `{
  "show-class-name": true,
  "show-mod-name": false,
  "trace-enabled": true,
  "color": false,
  "log-levels": {"Modlog/Plugins/Echo": "debug", "net": "WARNING"}
}`)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := level.Options{ShowName: true, Trace: true}
	if got := p.Options(); got != want {
		t.Fatalf("Options() = %+v, want %+v", got, want)
	}
	if lv, ok := p.Override("modlog/plugins/echo"); !ok || lv != logapi.LevelDebug {
		t.Fatalf("echo override = %v %v", lv, ok)
	}
	if lv, _ := p.Override("NET"); lv != logapi.LevelWarn {
		t.Fatalf("net override = %v", lv)
	}
	if w := log.warnings(); len(w) != 0 {
		t.Fatalf("unexpected warnings: %+v", w)
	}
}

func TestLoadSkipsInvalidValues(t *testing.T) {
	t.Parallel()
	s, p, log := newStore(t, "settings.json", `{
  "show-mod-name": "yes",
  "trace-enabled": true,
  "log-levels": {"kept": "LOUD", "fresh": "error", "root": "trace", "num": 3}
}`)
	if err := p.SetOverride("kept", logapi.LevelInfo); err != nil {
		t.Fatal(err)
	}
	if err := p.SetOverride("dropped", logapi.LevelInfo); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	o := p.Options()
	if !o.ShowOwner || !o.Trace {
		t.Fatalf("Options() = %+v", o)
	}
	got := p.Overrides()
	want := map[string]logapi.Level{"kept": logapi.LevelInfo, "fresh": logapi.LevelError}
	if len(got) != len(want) {
		t.Fatalf("Overrides() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("Overrides()[%q] = %v, want %v", k, got[k], v)
		}
	}

	w := log.warnings()
	if len(w) != 4 {
		t.Fatalf("got %d warnings, want 4: %+v", len(w), w)
	}
	var invalid, root int
	for _, c := range w {
		switch {
		case errors.Is(c.err, ErrInvalidValue):
			invalid++
		case errors.Is(c.err, level.ErrRootOverride):
			root++
		}
	}
	if invalid != 3 || root != 1 {
		t.Fatalf("invalid=%d root=%d", invalid, root)
	}
}

func TestLoadRejectsNullBoolean(t *testing.T) {
	t.Parallel()
	s, p, log := newStore(t, "settings.json", `{"trace-enabled": null, "color": null}`)
	p.UpdateOptions(func(o *level.Options) { o.Color = true })
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if o := p.Options(); o.Trace || !o.Color {
		t.Fatalf("Options() = %+v, null must leave values untouched", o)
	}
	w := log.warnings()
	if len(w) != 2 {
		t.Fatalf("got %d warnings, want 2: %+v", len(w), w)
	}
	for _, c := range w {
		if !errors.Is(c.err, ErrInvalidValue) {
			t.Fatalf("warning %+v is not ErrInvalidValue", c)
		}
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Parallel()
	s, p, _ := newStore(t, "settings.json", `{"color": false`)
	if err := s.Load(); err == nil {
		t.Fatal("expected parse error")
	}
	if !p.Options().Color {
		t.Fatal("malformed file must not change options")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	s, p, _ := newStore(t, "settings.yaml", "show-class-name: true\nlog-levels:\n  app: trace\n")
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.Options().ShowName {
		t.Fatal("show-class-name not applied")
	}
	if lv, _ := p.Override("app"); lv != logapi.LevelTrace {
		t.Fatalf("app override = %v", lv)
	}
}

func TestSaveWritesCurrentState(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"settings.json", "nested/settings.yml"} {
		t.Run(name, func(t *testing.T) {
			s, p, _ := newStore(t, name, "")
			p.UpdateOptions(func(o *level.Options) { o.Trace = true; o.Color = false })
			if err := p.SetOverride("Echo", logapi.LevelWarn); err != nil {
				t.Fatal(err)
			}
			if err := s.Save(); err != nil {
				t.Fatalf("Save: %v", err)
			}

			b, err := os.ReadFile(s.Path())
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(b), "trace-enabled") || !strings.Contains(string(b), "WARN") {
				t.Fatalf("unexpected file content:\n%s", b)
			}
			if s.changed(b) {
				t.Fatal("saved content must not count as a change")
			}

			fresh := level.NewPolicy(infoHost{}, level.DefaultOptions())
			if err := NewStore(s.Path(), fresh, nil).Load(); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if fresh.Options() != p.Options() {
				t.Fatalf("reloaded options = %+v, want %+v", fresh.Options(), p.Options())
			}
			if lv, _ := fresh.Override("echo"); lv != logapi.LevelWarn {
				t.Fatalf("reloaded override = %v", lv)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"FALSE", false, false},
		{"True", true, false},
		{"yes", false, true},
		{"1", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		got, err := ParseBool(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseBool(%q) = %v, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("ParseBool(%q) error %v is not ErrInvalidValue", tt.in, err)
		}
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	s, p, _ := newStore(t, "settings.json", `{"trace-enabled": false}`)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(s.Path(), []byte(`{"trace-enabled": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !p.Options().Trace {
		if time.Now().After(deadline) {
			t.Fatal("settings change was not picked up")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatchCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modlog", "settings.json")
	p := level.NewPolicy(infoHost{}, level.DefaultOptions())
	log := &captureLogger{}
	s := NewStore(path, p, log)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if fi, err := os.Stat(filepath.Dir(path)); err == nil && fi.IsDir() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("settings directory was not created")
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"log-levels": {"net": "error"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	for {
		if lv, ok := p.Override("net"); ok && lv == logapi.LevelError {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("edit in a freshly created directory was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if w := log.warnings(); len(w) != 0 {
		t.Fatalf("unexpected warnings: %+v", w)
	}
}
