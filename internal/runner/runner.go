// Package runner executes an attempt against an exercise's tests inside a sandbox box.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/programme-lv/exerciser/internal/sandbox"
	"github.com/programme-lv/exerciser/internal/staticcheck"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// TestTimeout bounds every stdin test process and every request to a service.
	TestTimeout time.Duration
	// ReadyTimeout bounds the wait for a service to accept connections.
	ReadyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TestTimeout:  5 * time.Second,
		ReadyTimeout: 10 * time.Second,
	}
}

type Runner struct {
	boxes    sandbox.Factory
	ports    *sandbox.PortAllocator
	langs    *langs.Registry
	analyzer *staticcheck.Analyzer
	cfg      Config
	logger   *slog.Logger
}

func New(
	boxes sandbox.Factory,
	ports *sandbox.PortAllocator,
	registry *langs.Registry,
	analyzer *staticcheck.Analyzer,
	cfg Config,
	logger *slog.Logger,
) *Runner {
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = DefaultConfig().TestTimeout
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultConfig().ReadyTimeout
	}
	return &Runner{
		boxes:    boxes,
		ports:    ports,
		langs:    registry,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "runner")),
	}
}

// Job is one attempt to run.
type Job struct {
	EvalUuid      string
	Exercise      api.Exercise
	Files         map[string]string
	PortHint      int
	WithoutStatic bool
}

// Run reports the attempt's progress to gath. Compile errors, timeouts and
// crashes are reported as results; the returned error is reserved for
// invalid jobs and sandbox failures.
func (r *Runner) Run(ctx context.Context, job Job, gath internal.ResultGatherer) error {
	log := r.logger.With(slog.String("eval_uuid", job.EvalUuid), slog.String("exercise_id", job.Exercise.ID))

	files, err := cleanFiles(job.Files)
	if err != nil {
		return err
	}
	lang, err := r.langs.Get(job.Exercise.Language)
	if err != nil {
		return errs.Validation("exercise language %q: %v", job.Exercise.Language, err)
	}
	if job.PortHint < 0 || job.PortHint > 65535 {
		return errs.Validation("port %d is out of range", job.PortHint)
	}

	gath.StartJob(job.Exercise.ID, !job.WithoutStatic)

	fail := func(err error) error {
		log.Error("attempt run failed", slog.Any("error", err))
		gath.InternalError(err.Error())
		return err
	}

	box, err := r.boxes.NewBox(ctx)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := box.Close(); err != nil {
			log.Warn("failed to close box", slog.Any("error", err))
		}
	}()

	scrub := boxPathScrubber(box.Path())

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := box.AddFile(name, []byte(files[name])); err != nil {
			return fail(err)
		}
	}

	var (
		findings   []api.Finding
		compile    *internal.RunData
		compileMsg string
	)
	gath.StartCompile()
	g, gctx := errgroup.WithContext(ctx)
	if !job.WithoutStatic {
		g.Go(func() error {
			findings = r.analyzer.Analyze(job.Exercise, lang.CodeFname, files)
			return nil
		})
	}
	g.Go(func() error {
		if !box.HasFile(lang.CodeFname) {
			compileMsg = fmt.Sprintf("entry file %s is missing", lang.CodeFname)
			return nil
		}
		if lang.CompileCmd == nil {
			return nil
		}
		rd, err := box.Run(gctx, *lang.CompileCmd, nil, sandbox.CompileConstraints())
		if err != nil {
			return err
		}
		scrubRun(scrub, rd)
		compile = rd
		compileMsg = compileFailure(rd)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	if !job.WithoutStatic {
		gath.FinishStatic(findings)
	}
	gath.FinishCompile(compile)

	if compileMsg != "" {
		log.Info("attempt failed to compile")
		gath.CompileError(compileMsg)
		for i, t := range job.Exercise.Tests {
			gath.IgnoreTest(i, t.Name)
		}
		return nil
	}

	c := sandbox.DefaultConstraints().WithWall(r.cfg.TestTimeout).WithLimits(job.Exercise.Limits)

	var requestTests []int
	for i, t := range job.Exercise.Tests {
		if t.Request != nil {
			requestTests = append(requestTests, i)
			continue
		}
		gath.ReachTest(i, t.Name)
		run, err := r.runStdinTest(ctx, box, lang, i, t, c, scrub)
		if err != nil {
			return fail(err)
		}
		gath.FinishTest(run)
	}

	if len(requestTests) > 0 {
		if err := r.runService(ctx, box, lang, job, requestTests, c, scrub, gath, log); err != nil {
			return fail(err)
		}
	}

	gath.FinishNoError()
	return nil
}

// cleanFiles rejects paths that leave the box and paths that collide once cleaned.
func cleanFiles(files map[string]string) (map[string]string, error) {
	if len(files) == 0 {
		return nil, errs.Validation("attempt has no files")
	}
	res := make(map[string]string, len(files))
	for name, content := range files {
		clean, err := sandbox.CleanAttemptPath(name)
		if err != nil {
			return nil, err
		}
		if _, dup := res[clean]; dup {
			return nil, errs.Validation("file path %q given twice", clean)
		}
		res[clean] = content
	}
	return res, nil
}

func compileFailure(rd *internal.RunData) string {
	if rd.TimedOut {
		return "compilation timed out"
	}
	if !rd.Crashed() {
		return ""
	}
	for _, out := range [][]byte{rd.Stderr, rd.Stdout} {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("compilation failed with exit code %d", rd.ExitCode)
}

// boxPathScrubber rewrites the box directory to "." in process output so
// that output does not depend on which box ran the attempt.
func boxPathScrubber(dir string) *strings.Replacer {
	if dir == "" {
		return strings.NewReplacer()
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil || resolved == dir {
		return strings.NewReplacer(dir, ".")
	}
	// the longer spelling goes first so its prefix never wins
	if len(resolved) < len(dir) {
		return strings.NewReplacer(dir, ".", resolved, ".")
	}
	return strings.NewReplacer(resolved, ".", dir, ".")
}

func scrubRun(scrub *strings.Replacer, rd *internal.RunData) {
	if rd == nil {
		return
	}
	rd.Stdout = []byte(scrub.Replace(string(rd.Stdout)))
	rd.Stderr = []byte(scrub.Replace(string(rd.Stderr)))
}
