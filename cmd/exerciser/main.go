package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/programme-lv/exerciser/internal/environment"
	"github.com/urfave/cli/v3"
)

func main() {
	cfg, err := environment.ReadEnvConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cmd := &cli.Command{
		Name:  "exerciser",
		Usage: "evaluate programming exercise attempts and give feedback",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   cfg.LogLevel,
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "sandbox",
				Usage:   "process or isolate",
				Value:   cfg.Sandbox,
				Sources: cli.EnvVars("EXERCISER_SANDBOX"),
			},
			&cli.DurationFlag{
				Name:    "test-timeout",
				Value:   cfg.TestTimeout,
				Sources: cli.EnvVars("EXERCISER_TEST_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "ready-timeout",
				Value:   cfg.ReadyTimeout,
				Sources: cli.EnvVars("EXERCISER_READY_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "port-range",
				Value:   cfg.PortRange,
				Sources: cli.EnvVars("EXERCISER_PORT_RANGE"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(cfg),
			tryCommand(cfg),
			behaveCommand(cfg),
			healthCommand(cfg),
			exportLogsCommand(cfg),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
	}))
}
