// Package echo is a small plugin that logs a heartbeat through every path the
// facade offers: its own logger, a custom logger and log/slog.
package echo

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"time"

	"modlog/internal/plugin"
	"modlog/pkg/logapi"
)

//go:embed plugin.json
var resources embed.FS

// Resources returns the files bundled with the plugin.
func Resources() fs.FS { return resources }

type Plugin struct {
	plugin.Base

	interval time.Duration
	beats    logapi.Logger
}

func New(interval time.Duration) *Plugin {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Plugin{interval: interval}
}

func (p *Plugin) Name() string { return "echo" }

func (p *Plugin) Init(_ context.Context, deps plugin.Deps) error {
	p.InitBase(deps)
	p.beats = p.Logger("echo.heartbeat")
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	p.Log.Info("echo started, beating every {}", p.interval)
	go p.loop(p.Context())
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.Log.Info("echo stopped")
	return p.StopBase(ctx)
}

func (p *Plugin) loop(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n++
			p.beats.Debug("heartbeat {}", n)
			p.beats.Trace("heartbeat {} at {}", n, time.Now().Format(time.RFC3339))
			slog.Info("echo heartbeat", "count", n)
		}
	}
}
