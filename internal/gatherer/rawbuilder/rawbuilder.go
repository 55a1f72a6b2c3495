package rawbuilder

import (
	"sort"
	"time"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
)

// Builder gathers execution events and builds a complete internal.RawResult.
type Builder struct {
	res internal.RawResult

	internalErr *string
	finished    bool
}

var _ internal.ResultGatherer = (*Builder)(nil)

func New(evalUuid string) *Builder {
	return &Builder{
		res: internal.RawResult{
			EvalUuid:      evalUuid,
			StaticSkipped: true,
			StartedMs:     time.Now().UnixMilli(),
		},
	}
}

// StartJob implements ResultGatherer.
func (b *Builder) StartJob(exerciseID string, withStatic bool) {
	b.res.ExerciseID = exerciseID
	b.res.StaticSkipped = !withStatic
}

// FinishStatic implements ResultGatherer.
func (b *Builder) FinishStatic(findings []api.Finding) {
	b.res.Findings = findings
}

// StartCompile implements ResultGatherer.
func (b *Builder) StartCompile() {}

// FinishCompile implements ResultGatherer.
func (b *Builder) FinishCompile(data *internal.RunData) {
	b.res.Compile = data
}

// StartService implements ResultGatherer.
func (b *Builder) StartService(port int) {}

// ReachTest implements ResultGatherer.
func (b *Builder) ReachTest(idx int, name string) {}

// IgnoreTest implements ResultGatherer.
func (b *Builder) IgnoreTest(idx int, name string) {
	b.res.Tests = append(b.res.Tests, internal.TestRun{
		Index:   idx,
		Name:    name,
		Verdict: api.Ignored,
	})
}

// FinishTest implements ResultGatherer.
func (b *Builder) FinishTest(run internal.TestRun) {
	b.res.Tests = append(b.res.Tests, run)
}

// CompileError implements ResultGatherer.
func (b *Builder) CompileError(msg string) {
	b.res.CompileFailed = true
	b.res.CompileMsg = msg
	b.finish()
}

// InternalError implements ResultGatherer.
func (b *Builder) InternalError(msg string) {
	b.internalErr = &msg
	b.finish()
}

// FinishNoError implements ResultGatherer.
func (b *Builder) FinishNoError() {
	b.finish()
}

func (b *Builder) finish() {
	b.finished = true
	b.res.FinishedMs = time.Now().UnixMilli()
}

// InternalErr is the message of a failed run, nil otherwise.
func (b *Builder) InternalErr() *string {
	return b.internalErr
}

// Result returns the gathered result with tests in exercise order.
func (b *Builder) Result() internal.RawResult {
	res := b.res
	res.Tests = append([]internal.TestRun(nil), b.res.Tests...)
	sort.SliceStable(res.Tests, func(i, j int) bool {
		return res.Tests[i].Index < res.Tests[j].Index
	})
	if !b.finished {
		res.FinishedMs = time.Now().UnixMilli()
	}
	return res
}
