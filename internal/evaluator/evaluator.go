// Package evaluator ties the exercise store, the runner and the feedback
// synthesizer into one call.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/feedback"
	"github.com/programme-lv/exerciser/internal/gatherer/multi"
	"github.com/programme-lv/exerciser/internal/gatherer/rawbuilder"
	"github.com/programme-lv/exerciser/internal/metrics"
	"github.com/programme-lv/exerciser/internal/runner"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

// ExerciseGetter is the part of the exercise store the evaluator reads.
type ExerciseGetter interface {
	Get(id string) (api.Exercise, error)
}

// AttemptRunner runs one attempt; *runner.Runner in production.
type AttemptRunner interface {
	Run(ctx context.Context, job runner.Job, gath internal.ResultGatherer) error
}

// Sink creates a gatherer that observes every evaluation, e.g. an event queue.
type Sink func(evalUuid string) internal.ResultGatherer

type Evaluator struct {
	exercises ExerciseGetter
	runner    AttemptRunner
	sem       *semaphore.Weighted
	active    *xsync.Counter
	sinks     []Sink
	logger    *slog.Logger
}

func New(exercises ExerciseGetter, r AttemptRunner, maxConcurrent int, logger *slog.Logger, sinks ...Sink) *Evaluator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Evaluator{
		exercises: exercises,
		runner:    r,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		active:    xsync.NewCounter(),
		sinks:     sinks,
		logger:    logger.With(slog.String("component", "evaluator")),
	}
}

type Request struct {
	// EvalUuid identifies the run in logs and event streams. Generated if empty.
	EvalUuid string

	ExerciseID    string
	Files         map[string]string
	Port          *int
	Previous      json.RawMessage
	WithoutStatic bool
}

// Active is the number of attempts running right now.
func (e *Evaluator) Active() int64 {
	return e.active.Value()
}

// Evaluate runs the attempt and returns its feedback. Any error means no
// feedback at all: validation, unknown exercise or a sandbox failure.
func (e *Evaluator) Evaluate(ctx context.Context, req Request, extra ...internal.ResultGatherer) (api.Feedback, error) {
	if req.EvalUuid == "" {
		req.EvalUuid = uuid.NewString()
	}
	log := e.logger.With(slog.String("eval_uuid", req.EvalUuid), slog.String("exercise_id", req.ExerciseID))

	ex, err := e.exercises.Get(req.ExerciseID)
	if err != nil {
		return api.Feedback{}, err
	}

	port := 0
	if req.Port != nil {
		port = *req.Port
	}

	metrics.WaitingEvaluations.Inc()
	err = e.sem.Acquire(ctx, 1)
	metrics.WaitingEvaluations.Dec()
	if err != nil {
		return api.Feedback{}, errs.Sandbox("waiting for a free runner", err)
	}
	defer e.sem.Release(1)

	e.active.Inc()
	metrics.ActiveEvaluations.Inc()
	defer func() {
		e.active.Dec()
		metrics.ActiveEvaluations.Dec()
	}()

	start := time.Now()
	builder := rawbuilder.New(req.EvalUuid)
	gatherers := []internal.ResultGatherer{builder}
	for _, s := range e.sinks {
		gatherers = append(gatherers, s(req.EvalUuid))
	}
	gatherers = append(gatherers, extra...)

	err = e.runner.Run(ctx, runner.Job{
		EvalUuid:      req.EvalUuid,
		Exercise:      ex,
		Files:         req.Files,
		PortHint:      port,
		WithoutStatic: req.WithoutStatic,
	}, multi.New(gatherers...))
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(ex.Language, "error").Inc()
		return api.Feedback{}, err
	}

	prev, err := feedback.ParsePrevious(req.Previous)
	if err != nil && !errors.Is(err, feedback.ErrNoHistory) {
		log.Warn("ignoring malformed previous feedback", slog.Any("error", err))
	}
	fb := feedback.Synthesize(builder.Result(), prev)

	elapsed := time.Since(start)
	metrics.EvaluationsTotal.WithLabelValues(ex.Language, string(fb.Status)).Inc()
	metrics.EvaluationDuration.WithLabelValues(ex.Language).Observe(float64(elapsed.Milliseconds()))
	for _, t := range fb.Tests {
		metrics.TestVerdicts.WithLabelValues(string(t.Verdict)).Inc()
	}

	log.Info("evaluated attempt",
		slog.String("status", string(fb.Status)),
		slog.Int("passed", fb.Passed),
		slog.Int("total", fb.Total),
		slog.Duration("elapsed", elapsed))
	return fb, nil
}
