package runner

import (
	"context"
	"strconv"
	"strings"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

func (r *Runner) runStdinTest(
	ctx context.Context,
	box sandbox.Box,
	lang langs.Language,
	idx int,
	t api.Test,
	c sandbox.Constraints,
	scrub *strings.Replacer,
) (internal.TestRun, error) {
	rd, err := box.Run(ctx, lang.ExecCmd, []byte(t.Input), c)
	if err != nil {
		return internal.TestRun{}, err
	}
	scrubRun(scrub, rd)

	run := internal.TestRun{
		Index:    idx,
		Name:     t.Name,
		Observed: string(rd.Stdout),
		Expected: t.Expected,
		Input:    t.Input,
		Hint:     t.Hint,
		Run:      rd,
	}
	switch {
	case rd.TimedOut:
		run.Verdict = api.TimeLimitExceeded
		run.Detail = "time limit exceeded"
	case rd.OomKilled:
		run.Verdict = api.RuntimeError
		run.Detail = "memory limit exceeded"
	case rd.Crashed():
		run.Verdict = api.RuntimeError
		run.Detail = crashDetail(rd)
	case TokensEqual(run.Observed, t.Expected):
		run.Verdict = api.Accepted
	default:
		run.Verdict = api.WrongAnswer
	}
	return run, nil
}

func crashDetail(rd *internal.RunData) string {
	if rd.ExitSignal != nil {
		return "terminated by signal " + strconv.FormatInt(*rd.ExitSignal, 10)
	}
	return "exited with code " + strconv.FormatInt(rd.ExitCode, 10)
}

// TokensEqual compares outputs ignoring differences in whitespace.
func TokensEqual(observed, expected string) bool {
	a := strings.Fields(observed)
	b := strings.Fields(expected)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
