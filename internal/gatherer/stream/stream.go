// Package stream turns runner progress into api stream messages for
// message brokers. Outputs are trimmed so messages stay small.
package stream

import (
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
)

// Gatherer hands every message to send. Delivery failures are the sender's
// concern and never affect the evaluation.
type Gatherer struct {
	evalUuid string
	send     func(msg any)
}

var _ internal.ResultGatherer = (*Gatherer)(nil)

func New(evalUuid string, send func(msg any)) *Gatherer {
	return &Gatherer{evalUuid: evalUuid, send: send}
}

func (s *Gatherer) StartJob(exerciseID string, withStatic bool) {
	s.send(api.NewStartJob(s.evalUuid, exerciseID))
}

func (s *Gatherer) FinishStatic(findings []api.Finding) {
	s.send(api.NewFinishStatic(s.evalUuid, findings))
}

func (s *Gatherer) StartCompile() {
	s.send(api.NewStartCompile(s.evalUuid))
}

func (s *Gatherer) FinishCompile(data *internal.RunData) {
	s.send(api.NewFinishCompile(s.evalUuid, TrimRuntimeData(data)))
}

func (s *Gatherer) StartService(port int) {
	s.send(api.NewStartService(s.evalUuid, port))
}

func (s *Gatherer) ReachTest(idx int, name string) {
	s.send(api.NewReachTest(s.evalUuid, idx, name))
}

func (s *Gatherer) IgnoreTest(idx int, name string) {
	s.send(api.NewFinishTest(s.evalUuid, idx, name, api.Ignored, nil))
}

func (s *Gatherer) FinishTest(run internal.TestRun) {
	s.send(api.NewFinishTest(s.evalUuid, run.Index, run.Name, run.Verdict, TrimRuntimeData(run.Run)))
}

func (s *Gatherer) CompileError(msg string) {
	s.send(api.NewFinishJob(s.evalUuid, &msg, true, false))
}

func (s *Gatherer) InternalError(msg string) {
	s.send(api.NewFinishJob(s.evalUuid, &msg, false, true))
}

func (s *Gatherer) FinishNoError() {
	s.send(api.NewFinishJob(s.evalUuid, nil, false, false))
}

// TrimRuntimeData converts run data to its stream form, cutting outputs to
// api.MaxRuntimeDataHeight lines of api.MaxRuntimeDataWidth characters.
func TrimRuntimeData(data *internal.RunData) *api.RuntimeData {
	if data == nil {
		return nil
	}
	h, w := api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth
	return &api.RuntimeData{
		Stdin:         trimStrToRect(string(data.Stdin), h, w),
		Stdout:        trimStrToRect(string(data.Stdout), h, w),
		Stderr:        trimStrToRect(string(data.Stderr), h, w),
		ExitCode:      data.ExitCode,
		CpuMillis:     data.CpuMs,
		WallMillis:    data.WallMs,
		RamKiBytes:    data.MemKiB,
		ExitSignal:    data.ExitSignal,
		TimedOut:      data.TimedOut,
		CgOomKilled:   data.OomKilled,
		IsolateStatus: data.IsolateStatus,
		IsolateMsg:    data.IsolateMsg,
	}
}
