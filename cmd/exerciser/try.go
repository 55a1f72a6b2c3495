package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/programme-lv/exerciser/internal/behave"
	"github.com/programme-lv/exerciser/internal/environment"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/programme-lv/exerciser/internal/exercise"
	"github.com/programme-lv/exerciser/internal/gatherer/termgath"
	"github.com/urfave/cli/v3"
)

func tryCommand(cfg *environment.EnvConfig) *cli.Command {
	return &cli.Command{
		Name:      "try",
		Usage:     "evaluate an attempt directory against an exercise file and print the feedback",
		ArgsUsage: "<exercise.toml> <attempt-dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "without-static", Usage: "skip static analysis"},
			&cli.StringFlag{Name: "previous", Usage: "file with the feedback of the previous attempt"},
			&cli.IntFlag{Name: "port", Usage: "port the attempt's service should listen on"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return cli.Exit("usage: exerciser try <exercise.toml> <attempt-dir>", 2)
			}
			return try(ctx, cmd, cfg, cmd.Args().Get(0), cmd.Args().Get(1))
		},
	}
}

func try(ctx context.Context, cmd *cli.Command, cfg *environment.EnvConfig, exercisePath, attemptDir string) error {
	p, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(exercisePath)
	if err != nil {
		return err
	}
	req, err := behave.ParseExercise(data)
	if err != nil {
		return err
	}
	files, err := readAttempt(attemptDir)
	if err != nil {
		return err
	}

	var previous json.RawMessage
	if path := cmd.String("previous"); path != "" {
		if previous, err = os.ReadFile(path); err != nil {
			return err
		}
	}

	work, err := os.MkdirTemp("", "exerciser-try-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	store := exercise.NewStore(filepath.Join(work, "exercises.json"), p.registry, p.logger)
	id, err := store.Create(req)
	if err != nil {
		return err
	}

	var port *int
	if cmd.IsSet("port") {
		v := cmd.Int("port")
		port = &v
	}

	ev := evaluator.New(store, p.runner, 1, p.logger)
	fb, err := ev.Evaluate(ctx, evaluator.Request{
		ExerciseID:    id,
		Files:         files,
		Port:          port,
		Previous:      previous,
		WithoutStatic: cmd.Bool("without-static"),
	}, termgath.New(os.Stderr))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(fb, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// readAttempt loads every regular file under dir keyed by its slash separated relative path.
func readAttempt(dir string) (map[string]string, error) {
	files := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt: %w", err)
	}
	return files, nil
}
