package termgath

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

type TerminalGatherer struct {
	out       io.Writer
	StartedAt time.Time
}

var _ internal.ResultGatherer = (*TerminalGatherer)(nil)

func New(out io.Writer) *TerminalGatherer {
	return &TerminalGatherer{out: out, StartedAt: time.Now()}
}

func (t *TerminalGatherer) StartJob(exerciseID string, withStatic bool) {
	fmt.Fprintf(t.out, "== Evaluation of %s started ==\n", exerciseID)
	if !withStatic {
		dimColor.Fprintln(t.out, "static analysis skipped")
	}
}

func (t *TerminalGatherer) FinishStatic(findings []api.Finding) {
	fmt.Fprintf(t.out, "-- Static analysis: %d finding(s) --\n", len(findings))
	for _, f := range findings {
		c := dimColor
		switch f.Severity {
		case api.SeverityError:
			c = failColor
		case api.SeverityWarning:
			c = warnColor
		}
		loc := f.File
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		c.Fprintf(t.out, "  %s [%s] %s\n", loc, f.Rule, f.Message)
	}
}

func (t *TerminalGatherer) StartCompile() {
	fmt.Fprintln(t.out, "-- Compilation started --")
}

func (t *TerminalGatherer) FinishCompile(data *internal.RunData) {
	fmt.Fprintln(t.out, "-- Compilation finished --")
	if data != nil {
		fmt.Fprintf(t.out, "exit=%d cpu=%dms wall=%dms mem=%dKiB\n", data.ExitCode, data.CpuMs, data.WallMs, data.MemKiB)
		if len(data.Stderr) > 0 {
			fmt.Fprintf(t.out, "stderr:\n%s\n", string(data.Stderr))
		}
	}
}

func (t *TerminalGatherer) StartService(port int) {
	fmt.Fprintf(t.out, "-- Service starting on port %d --\n", port)
}

func (t *TerminalGatherer) ReachTest(idx int, name string) {
	fmt.Fprintf(t.out, "-> Test %d %q reached\n", idx+1, name)
}

func (t *TerminalGatherer) IgnoreTest(idx int, name string) {
	dimColor.Fprintf(t.out, "-> Test %d %q ignored\n", idx+1, name)
}

func (t *TerminalGatherer) FinishTest(run internal.TestRun) {
	c := failColor
	if run.Verdict == api.Accepted {
		c = okColor
	}
	c.Fprintf(t.out, "<- Test %d %q %s\n", run.Index+1, run.Name, run.Verdict)
	if run.Run != nil {
		fmt.Fprintf(t.out, "  exit=%d cpu=%dms wall=%dms mem=%dKiB\n", run.Run.ExitCode, run.Run.CpuMs, run.Run.WallMs, run.Run.MemKiB)
	}
	if run.Detail != "" {
		fmt.Fprintf(t.out, "  %s\n", run.Detail)
	}
	if run.Verdict == api.WrongAnswer {
		fmt.Fprintf(t.out, "  expected: %s\n  observed: %s\n", oneLine(run.Expected), oneLine(run.Observed))
	}
}

func (t *TerminalGatherer) CompileError(msg string) {
	failColor.Fprintf(t.out, "== Compilation error: %s ==\n", msg)
}

func (t *TerminalGatherer) InternalError(msg string) {
	failColor.Fprintf(t.out, "== Internal error: %s ==\n", msg)
}

func (t *TerminalGatherer) FinishNoError() {
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(t.out, "== Evaluation finished in %s ==\n", dur)
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > 80 {
		return s[:80] + "[...]"
	}
	return s
}
