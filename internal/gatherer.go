package internal

import "github.com/programme-lv/exerciser/api"

// ResultGatherer receives the progress of one attempt run, in order.
// FinishStatic is skipped when static analysis is disabled and the
// service calls are skipped when no test needs a running service.
type ResultGatherer interface {
	StartJob(exerciseID string, withStatic bool)
	FinishStatic(findings []api.Finding)

	StartCompile()
	FinishCompile(data *RunData)

	StartService(port int)

	ReachTest(idx int, name string)
	IgnoreTest(idx int, name string)
	FinishTest(run TestRun)

	CompileError(msg string)
	InternalError(msg string)
	FinishNoError()
}
