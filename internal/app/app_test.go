package app_test

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"modlog/internal/app"
	"modlog/internal/plugin"
	"modlog/pkg/logapi"
	"modlog/pkg/logx"
)

type demo struct {
	plugin.Base
}

func (*demo) Name() string { return "demo" }

func (d *demo) Init(_ context.Context, deps plugin.Deps) error {
	d.InitBase(deps)
	return nil
}

func (d *demo) Start(ctx context.Context) error {
	d.StartBase(ctx)
	d.Log.Info("hello from {}", "demo")
	return nil
}

func (d *demo) Stop(ctx context.Context) error { return d.StopBase(ctx) }

type hostLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func readLines(t *testing.T, path string) []hostLine {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var out []hostLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l hostLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		out = append(out, l)
	}
	return out
}

func contains(lines []hostLine, level, msg string) bool {
	for _, l := range lines {
		if l.Level == level && l.Message == msg {
			return true
		}
	}
	return false
}

func newApp(t *testing.T, bridge bool) (*app.App, string, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "host.log")
	settingsPath := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(settingsPath, []byte(`{"color": false}`), 0o644); err != nil {
		t.Fatal(err)
	}
	a := app.New(app.Config{
		Log:          logx.Config{Level: "debug", File: logx.FileConfig{Enabled: true, Path: logPath}},
		SettingsPath: settingsPath,
		Bridge:       bridge,
	})
	return a, logPath, settingsPath
}

func TestAppLifecycle(t *testing.T) {
	a, logPath, settingsPath := newApp(t, true)
	if err := a.Register(&demo{}, fstest.MapFS{
		"plugin.json": &fstest.MapFile{Data: []byte(`{"name":"demo","displayName":"Demo"}`)},
	}); err != nil {
		t.Fatal(err)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.Installed() || logapi.Current() != logapi.Factory(a.Registry()) {
		t.Fatal("registry not installed as provider")
	}

	log.Print("from the std logger")
	if err := a.Command("modlog log-level Demo.Net warn"); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Installed() || logapi.Current() == logapi.Factory(a.Registry()) {
		t.Fatal("provider slot not released")
	}

	lines := readLines(t, logPath)
	for _, want := range []hostLine{
		{"info", "Initialized modlog"},
		{"debug", "Successfully redirected standard logging to modlog"},
		{"info", "[Demo] hello from demo"},
		{"info", "[Demo] from the std logger"},
		{"info", "Set log level of Demo.Net to WARN."},
	} {
		if !contains(lines, want.Level, want.Message) {
			t.Fatalf("missing %+v in %+v", want, lines)
		}
	}

	b, err := os.ReadFile(settingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"demo.net": "WARN"`) {
		t.Fatalf("settings not persisted:\n%s", b)
	}
}

type foreign struct{}

func (foreign) GetLogger(name string) logapi.Logger { return logapi.Nop(name) }

func TestAppWithForeignProvider(t *testing.T) {
	f := foreign{}
	if err := logapi.Install(f); err != nil {
		t.Fatal(err)
	}
	defer logapi.Uninstall(f)

	a, logPath, _ := newApp(t, true)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.Installed() {
		t.Fatal("must not claim the provider slot")
	}
	if err := a.Command("enable-trace true"); err != nil {
		t.Fatal(err)
	}
	if !a.Policy().Options().Trace {
		t.Fatal("commands must keep working without the provider slot")
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if logapi.Current() != logapi.Factory(f) {
		t.Fatal("foreign provider must stay installed")
	}

	lines := readLines(t, logPath)
	var errs int
	for _, l := range lines {
		if l.Level == "error" {
			errs++
		}
		if l.Message == "Initialized modlog" {
			t.Fatal("must not report initialization")
		}
	}
	if errs != 3 {
		t.Fatalf("got %d error lines, want 3: %+v", errs, lines)
	}
}

func TestAppCachesHostLoggers(t *testing.T) {
	a := app.New(app.Config{Log: logx.Config{Level: "info", NoColor: true}})
	defer a.Stop(context.Background())

	for _, name := range []string{
		"modlog/internal/app.App",
		"modlog/internal/plugin.Manager",
		"modlog/internal/runtime/supervisor.Supervisor",
	} {
		first := a.Registry().Resolve(name)
		if cached, ok := a.Registry().Cached(name); !ok || cached != first {
			t.Fatalf("%s: host class logger not cached", name)
		}
		if again := a.Registry().Resolve(name); again != first {
			t.Fatalf("%s: got a fresh logger on the second request", name)
		}
		if owner, ok := first.Owner(); ok {
			t.Fatalf("%s: host logger owned by %q", name, owner)
		}
	}
}

func TestAppFileSinkWithoutSettingsIsPlain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "host.log")
	a := app.New(app.Config{
		Log: logx.Config{Level: "info", File: logx.FileConfig{Enabled: true, Path: logPath}},
	})
	if a.Policy().Options().Color {
		t.Fatal("colors must start off for a file sink")
	}
	if err := a.Register(&demo{}, fstest.MapFS{
		"plugin.json": &fstest.MapFile{Data: []byte(`{"name":"demo","displayName":"Demo"}`)},
	}); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	lines := readLines(t, logPath)
	if !contains(lines, "info", "[Demo] hello from demo") {
		t.Fatalf("missing plugin line in %+v", lines)
	}
	for _, l := range lines {
		if strings.Contains(l.Message, "\x1b[") {
			t.Fatalf("escape codes in file sink: %q", l.Message)
		}
	}
}

func TestAppConsoleColorFollowsNoColor(t *testing.T) {
	a := app.New(app.Config{Log: logx.Config{Level: "info", NoColor: true}})
	defer a.Stop(context.Background())
	if a.Policy().Options().Color {
		t.Fatal("--no-color must disable rendered colors")
	}
	b := app.New(app.Config{Log: logx.Config{Level: "info"}})
	defer b.Stop(context.Background())
	if !b.Policy().Options().Color {
		t.Fatal("console without --no-color keeps colors on")
	}
}
