package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/programme-lv/exerciser/internal/environment"
	"github.com/programme-lv/exerciser/internal/usagelog"
	"github.com/urfave/cli/v3"
)

func exportLogsCommand(cfg *environment.EnvConfig) *cli.Command {
	return &cli.Command{
		Name:      "export-logs",
		Usage:     "bundle all usage logs into one archive",
		ArgsUsage: "<out>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-dir", Value: cfg.LogDir, Sources: cli.EnvVars("EXERCISER_LOG_DIR")},
			&cli.StringFlag{Name: "format", Value: "zip", Usage: "zip or tar.zst"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := newLogger(cmd.String("log-level"))
			format, err := usagelog.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}
			out := cmd.Args().First()
			if out == "" {
				out = usagelog.ArchiveName(format)
			}

			rec, err := usagelog.NewRecorder(cmd.String("log-dir"), logger)
			if err != nil {
				return err
			}
			if out == "-" {
				return rec.Export(os.Stdout, format)
			}
			data, err := rec.ExportAll(format)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			logger.Info("exported logs", slog.String("path", out), slog.Int("bytes", len(data)))
			return nil
		},
	}
}
