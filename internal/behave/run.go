package behave

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/programme-lv/exerciser/internal/exercise"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/programme-lv/exerciser/internal/procbox"
	"github.com/programme-lv/exerciser/internal/runner"
	"github.com/programme-lv/exerciser/internal/sandbox"
	"github.com/programme-lv/exerciser/internal/staticcheck"
)

type Result struct {
	Case       Case
	Feedback   *api.Feedback
	Err        error
	Mismatches []string
}

func (r Result) Passed() bool {
	return len(r.Mismatches) == 0
}

type Options struct {
	// Boxes defaults to process boxes under a temporary directory.
	Boxes  sandbox.Factory
	Ports  *sandbox.PortAllocator
	// Runner defaults to runner.DefaultConfig.
	Runner runner.Config
	Logger *slog.Logger
}

// Run evaluates every case of suite through a fresh exercise store and runner.
func Run(ctx context.Context, suite *Suite, opts Options) ([]Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	work, err := os.MkdirTemp("", "exerciser-behave-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(work)

	registry := langs.NewRegistry()
	for _, l := range suite.Languages {
		registry.Register(l)
	}

	boxes := opts.Boxes
	if boxes == nil {
		boxes = procbox.NewFactory(filepath.Join(work, "boxes"), logger)
	}
	ports := opts.Ports
	if ports == nil {
		ports = sandbox.NewPortAllocator(20000, 20999)
	}

	analyzer := staticcheck.NewAnalyzer()
	store := exercise.NewStore(filepath.Join(work, "exercises.json"), registry, logger)
	store.OnDelete(analyzer.Forget)

	r := runner.New(boxes, ports, registry, analyzer, opts.Runner, logger)
	ev := evaluator.New(store, r, 1, logger)

	results := make([]Result, 0, len(suite.Cases))
	for _, c := range suite.Cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := Result{Case: c}

		id, err := store.Create(c.Exercise)
		if err == nil {
			var fb api.Feedback
			fb, err = ev.Evaluate(ctx, evaluator.Request{
				ExerciseID:    id,
				Files:         c.Files,
				WithoutStatic: c.WithoutStatic,
			})
			if err == nil {
				res.Feedback = &fb
			}
			if derr := store.Delete(id); derr != nil {
				logger.Warn("failed to delete scenario exercise", slog.Any("error", derr))
			}
		}
		res.Err = err
		res.Mismatches = Compare(c.Expect, res.Feedback, err)
		results = append(results, res)
	}
	return results, nil
}

// Compare lists how the outcome of an evaluation differs from exp.
func Compare(exp SpecExpect, fb *api.Feedback, err error) []string {
	var out []string
	if exp.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected error %s, got status %s", exp.Error, fb.Status)}
		}
		if code := errs.Code(err); code != exp.Error {
			out = append(out, fmt.Sprintf("expected error %s, got %s (%v)", exp.Error, code, err))
		}
		return out
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	if exp.Status != "" && string(fb.Status) != exp.Status {
		out = append(out, fmt.Sprintf("expected status %s, got %s", exp.Status, fb.Status))
	}
	if exp.Verdicts != nil {
		if len(exp.Verdicts) != len(fb.Tests) {
			out = append(out, fmt.Sprintf("expected %d test verdicts, got %d", len(exp.Verdicts), len(fb.Tests)))
		} else {
			for i, v := range exp.Verdicts {
				if got := string(fb.Tests[i].Verdict); got != v {
					out = append(out, fmt.Sprintf("test %q: expected %s, got %s", fb.Tests[i].Name, v, got))
				}
			}
		}
	}
	if len(exp.Findings) > 0 {
		reported := mapset.NewThreadUnsafeSet[string]()
		for _, f := range fb.Static {
			reported.Add(f.Rule)
		}
		for _, rule := range exp.Findings {
			if !reported.Contains(rule) {
				out = append(out, fmt.Sprintf("expected finding %s was not reported", rule))
			}
		}
	}
	return out
}
