package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"modlog/internal/app"
	"modlog/pkg/logx"
	"modlog/pkg/systemd"
	"modlog/plugins/echo"
)

func main() {
	var (
		settingsPath string
		hostLevel    string
		logFile      string
		noColor      bool
		watch        bool
		bridge       bool
		plugins      []string
		beat         time.Duration
	)
	fs := pflag.NewFlagSet("modlogd", pflag.ExitOnError)
	fs.StringVar(&settingsPath, "settings", "./modlog/settings.json", "settings file (json or yaml)")
	fs.StringVar(&hostLevel, "level", "info", "host log level: debug, info, warn, error or none")
	fs.StringVar(&logFile, "log-file", "", "write JSON lines to this file instead of the console")
	fs.BoolVar(&noColor, "no-color", false, "disable console colors")
	fs.BoolVar(&watch, "watch", true, "reload the settings file when it changes")
	fs.BoolVar(&bridge, "bridge", true, "redirect log and log/slog output")
	fs.StringSliceVar(&plugins, "plugins", []string{"echo"}, "plugins to load")
	fs.DurationVar(&beat, "echo-interval", 30*time.Second, "heartbeat interval of the echo plugin")
	_ = fs.Parse(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := app.New(app.Config{
		Log: logx.Config{
			Level:   hostLevel,
			NoColor: noColor,
			File:    logx.FileConfig{Enabled: logFile != "", Path: logFile},
		},
		SettingsPath: settingsPath,
		Watch:        watch,
		Bridge:       bridge,
	})

	for _, name := range plugins {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "echo":
			if err := a.Register(echo.New(beat), echo.Resources()); err != nil {
				fmt.Fprintln(os.Stderr, "fatal:", err)
				os.Exit(1)
			}
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unknown plugin %q\n", name)
		}
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = systemd.Ready()
	_, _ = systemd.Status("logging")

	go readCommands(ctx, a)

	<-ctx.Done()
	_, _ = systemd.Stopping()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
	}
}

// readCommands executes operator commands typed on stdin, one per line.
func readCommands(ctx context.Context, a *app.App) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := a.Command(line); err != nil {
			fmt.Fprintln(os.Stderr, "command:", err)
		}
	}
}
