// Package feedback turns a raw attempt result into student facing feedback.
//
// Synthesize is a pure function of its inputs. It never looks at timings
// so evaluating an unchanged attempt twice gives identical feedback.
package feedback

import (
	"fmt"
	"strings"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
)

const (
	maxCompileMsgLines = 40
	maxCompileMsgWidth = 200
	maxStderrLines     = 10
	maxStderrWidth     = 200
)

const compileHint = "Your code does not compile. Fix the first error the compiler reports and try again."

// Synthesize builds feedback for raw. previous is the feedback the student
// got last time, or nil. Unusable history is ignored.
func Synthesize(raw internal.RawResult, previous *api.Feedback) api.Feedback {
	hist := historyFrom(raw.ExerciseID, previous)

	fb := api.Feedback{
		ExerciseID:    raw.ExerciseID,
		Total:         len(raw.Tests),
		Compilation:   api.CompileFeedback{Success: !raw.CompileFailed},
		StaticSkipped: raw.StaticSkipped,
		Static:        []api.Finding{},
		Tests:         make([]api.TestFeedback, 0, len(raw.Tests)),
		Hints:         []string{},
	}
	if !raw.StaticSkipped && raw.Findings != nil {
		fb.Static = raw.Findings
	}
	if raw.CompileFailed {
		fb.Compilation.Message = clip(raw.CompileMsg, maxCompileMsgLines, maxCompileMsgWidth)
		fb.Hints = append(fb.Hints, compileHint)
	}

	for _, run := range raw.Tests {
		tf := testFeedback(run, hist[run.Name])
		if tf.Passed {
			fb.Passed++
		}
		if tf.Hint != nil {
			fb.Hints = append(fb.Hints, fmt.Sprintf("%s: %s", tf.Name, tf.Hint.Text))
		}
		fb.Tests = append(fb.Tests, tf)
	}

	fb.Status = status(raw.CompileFailed, fb.Passed, fb.Total)
	return fb
}

func status(compileFailed bool, passed, total int) api.Status {
	switch {
	case compileFailed:
		return api.StatusCompilationError
	case total > 0 && passed == total:
		return api.StatusAccepted
	case passed > 0:
		return api.StatusPartial
	default:
		return api.StatusWrongAnswer
	}
}

func testFeedback(run internal.TestRun, prev api.TestHistory) api.TestFeedback {
	tf := api.TestFeedback{
		Name:     run.Name,
		Verdict:  run.Verdict,
		Passed:   run.Verdict == api.Accepted,
		Crash:    run.Verdict == api.RuntimeError,
		TimedOut: run.Verdict == api.TimeLimitExceeded,
		Message:  message(run),
	}
	if tf.Crash && run.Run != nil {
		tf.Stderr = clip(lastLines(string(run.Run.Stderr), maxStderrLines), maxStderrLines, maxStderrWidth)
	}

	switch run.Verdict {
	case api.Accepted:
		// a pass resets the ladder
	case api.Ignored:
		// not run, nothing new learned about this test
		tf.History = prev
	default:
		tf.Hint, tf.History = nextHint(run, prev)
	}
	return tf
}

func message(run internal.TestRun) string {
	switch run.Verdict {
	case api.Accepted:
		return "passed"
	case api.Ignored:
		return "not run: compilation failed"
	case api.WrongAnswer:
		if run.ExpectedStatus != 0 && run.StatusCode != 0 && run.StatusCode != run.ExpectedStatus {
			return fmt.Sprintf("wrong status code: expected %d, got %d", run.ExpectedStatus, run.StatusCode)
		}
		if run.Detail != "" {
			return run.Detail
		}
		return "wrong answer"
	default:
		if run.Detail != "" {
			return run.Detail
		}
		return strings.ToLower(string(run.Verdict))
	}
}

// clip bounds s to maxLines lines of maxWidth bytes.
func clip(s string, maxLines, maxWidth int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], "...")
	}
	for i, l := range lines {
		if len(l) > maxWidth {
			lines[i] = l[:maxWidth] + "..."
		}
	}
	return strings.Join(lines, "\n")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
