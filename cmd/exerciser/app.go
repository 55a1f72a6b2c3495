package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/programme-lv/exerciser/internal/environment"
	"github.com/programme-lv/exerciser/internal/isolate"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/programme-lv/exerciser/internal/procbox"
	"github.com/programme-lv/exerciser/internal/runner"
	"github.com/programme-lv/exerciser/internal/sandbox"
	"github.com/programme-lv/exerciser/internal/staticcheck"
	"github.com/urfave/cli/v3"
)

// pipeline is everything needed to run attempts, shared by the commands.
type pipeline struct {
	logger   *slog.Logger
	registry *langs.Registry
	boxes    sandbox.Factory
	ports    *sandbox.PortAllocator
	analyzer *staticcheck.Analyzer
	runner   *runner.Runner
	runCfg   runner.Config
}

func newPipeline(cmd *cli.Command, cfg *environment.EnvConfig) (*pipeline, error) {
	logger := newLogger(cmd.String("log-level"))

	boxes, err := newBoxes(cmd.String("sandbox"), cfg, logger)
	if err != nil {
		return nil, err
	}

	lo, hi, err := sandbox.ParsePortRange(cmd.String("port-range"))
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		logger:   logger,
		registry: langs.NewRegistry(),
		boxes:    boxes,
		ports:    sandbox.NewPortAllocator(lo, hi),
		analyzer: staticcheck.NewAnalyzer(),
		runCfg: runner.Config{
			TestTimeout:  cmd.Duration("test-timeout"),
			ReadyTimeout: cmd.Duration("ready-timeout"),
		},
	}
	p.runner = runner.New(p.boxes, p.ports, p.registry, p.analyzer, p.runCfg, logger)
	logger.Debug("pipeline ready",
		slog.String("sandbox", boxes.Name()),
		slog.Int("port_min", lo),
		slog.Int("port_max", hi))
	return p, nil
}

func newBoxes(kind string, cfg *environment.EnvConfig, logger *slog.Logger) (sandbox.Factory, error) {
	switch kind {
	case "process":
		return procbox.NewFactory(cfg.BoxDir, logger), nil
	case "isolate":
		// one box per running attempt plus headroom for boxes still being erased
		return isolate.New(max(cfg.MaxConcurrent*2, runtime.NumCPU()), logger), nil
	}
	return nil, fmt.Errorf("unknown sandbox %q, expected process or isolate", kind)
}
