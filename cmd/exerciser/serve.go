package main

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/environment"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/programme-lv/exerciser/internal/exercise"
	"github.com/programme-lv/exerciser/internal/gatherer/sqsgath"
	"github.com/programme-lv/exerciser/internal/httpapi"
	"github.com/programme-lv/exerciser/internal/metrics"
	"github.com/programme-lv/exerciser/internal/natsapi"
	"github.com/programme-lv/exerciser/internal/usagelog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCommand(cfg *environment.EnvConfig) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the HTTP API and, if configured, the NATS endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: cfg.Addr, Sources: cli.EnvVars("EXERCISER_ADDR")},
			&cli.StringFlag{Name: "data-dir", Value: cfg.DataDir, Sources: cli.EnvVars("EXERCISER_DATA_DIR")},
			&cli.StringFlag{Name: "log-dir", Value: cfg.LogDir, Sources: cli.EnvVars("EXERCISER_LOG_DIR")},
			&cli.IntFlag{Name: "max-concurrent", Value: cfg.MaxConcurrent, Sources: cli.EnvVars("EXERCISER_MAX_CONCURRENT")},
			&cli.FloatFlag{Name: "rate-rps", Value: cfg.RateRPS, Sources: cli.EnvVars("EXERCISER_RATE_RPS")},
			&cli.StringSliceFlag{Name: "cors-origin", Value: cfg.CorsOrigins},
			&cli.StringFlag{Name: "nats-url", Value: cfg.NatsURL, Sources: cli.EnvVars("NATS_URL")},
			&cli.StringFlag{Name: "nats-subject", Value: cfg.NatsSubject, Sources: cli.EnvVars("NATS_SUBJECT")},
			&cli.StringFlag{Name: "events-sqs-url", Value: cfg.EventsSqsURL, Sources: cli.EnvVars("EVENTS_SQS_URL")},
			&cli.StringFlag{Name: "aws-region", Value: cfg.AwsRegion, Sources: cli.EnvVars("AWS_REGION")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, cfg)
		},
	}
}

func serve(ctx context.Context, cmd *cli.Command, cfg *environment.EnvConfig) error {
	p, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	logger := p.logger

	store := exercise.NewStore(filepath.Join(cmd.String("data-dir"), "exercises.json"), p.registry, logger)
	if err := store.Load(); err != nil {
		return err
	}
	store.OnDelete(p.analyzer.Forget)
	metrics.ExercisesStored.Set(float64(len(store.List())))

	logs, err := usagelog.NewRecorder(cmd.String("log-dir"), logger)
	if err != nil {
		return err
	}

	var sinks []evaluator.Sink
	if url := cmd.String("events-sqs-url"); url != "" {
		client, err := sqsgath.NewClient(ctx, cmd.String("aws-region"))
		if err != nil {
			return err
		}
		sinks = append(sinks, func(evalUuid string) internal.ResultGatherer {
			return sqsgath.New(client, url, evalUuid, logger)
		})
		logger.Info("streaming evaluation events to SQS", slog.String("queue_url", url))
	}

	ev := evaluator.New(store, p.runner, cmd.Int("max-concurrent"), logger, sinks...)

	srv := httpapi.NewServer(httpapi.Config{
		Exercises:   store,
		Evaluator:   ev,
		Logs:        logs,
		Logger:      logger,
		CorsOrigins: cmd.StringSlice("cors-origin"),
		RateRPS:     cmd.Float("rate-rps"),
	})

	var endpoint *natsapi.Endpoint
	if url := cmd.String("nats-url"); url != "" {
		nc, err := nats.Connect(url, nats.Name("exerciser"), nats.MaxReconnects(-1))
		if err != nil {
			return err
		}
		defer nc.Close()
		endpoint = natsapi.New(nc, cmd.String("nats-subject"), ev, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cmd.String("addr"))
	})

	if endpoint != nil {
		g.Go(func() error {
			return endpoint.Serve(gctx)
		})
	}

	logger.Info("exerciser started",
		slog.String("addr", cmd.String("addr")),
		slog.String("sandbox", p.boxes.Name()),
		slog.Int("exercises", len(store.List())))

	err = g.Wait()
	logger.Info("exerciser stopped")
	return err
}
