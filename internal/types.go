package internal

import "github.com/programme-lv/exerciser/api"

// RunData is what a sandbox reports about one finished process.
type RunData struct {
	Stdin    []byte `json:"stdin"`
	Stdout   []byte `json:"stdout"`
	Stderr   []byte `json:"stderr"`
	ExitCode int64  `json:"exit_code"`

	CpuMs  int64 `json:"cpu_ms"`
	WallMs int64 `json:"wall_ms"`
	MemKiB int64 `json:"mem_kib"`

	ExitSignal *int64 `json:"exit_signal"`
	TimedOut   bool   `json:"timed_out"`
	OomKilled  bool   `json:"oom_killed"`

	// set only by the isolate backend
	IsolateStatus *string `json:"isolate_status"`
	IsolateMsg    *string `json:"isolate_msg"`
}

// Crashed reports a non-zero exit or a signal that was not caused by a timeout.
func (r *RunData) Crashed() bool {
	if r == nil || r.TimedOut {
		return false
	}
	return r.ExitCode != 0 || r.ExitSignal != nil || r.OomKilled
}

// TestRun is the raw outcome of one exercise test.
type TestRun struct {
	Index int    `json:"index"`
	Name  string `json:"name"`

	Verdict api.Verdict `json:"verdict"`

	// Observed is the stdout of a stdin test or the response body of a request test.
	Observed string `json:"observed"`
	Expected string `json:"expected"`
	Input    string `json:"input"`

	// Request marks a test sent to the attempt's service over HTTP.
	Request bool `json:"request"`
	// StatusCode is the HTTP status of a request test, 0 otherwise.
	StatusCode     int    `json:"status_code"`
	ExpectedStatus int    `json:"expected_status"`
	Detail         string `json:"detail"`

	// Hint is the exercise author's hint for this test.
	Hint string `json:"hint,omitempty"`

	Run *RunData `json:"run"`
}

// RawResult is everything a single attempt run produced, before feedback synthesis.
type RawResult struct {
	EvalUuid   string `json:"eval_uuid"`
	ExerciseID string `json:"exercise_id"`

	StaticSkipped bool          `json:"static_skipped"`
	Findings      []api.Finding `json:"findings"`

	Compile       *RunData `json:"compile"`
	CompileFailed bool     `json:"compile_failed"`
	CompileMsg    string   `json:"compile_msg"`

	Tests []TestRun `json:"tests"`

	StartedMs  int64 `json:"started_ms"`
	FinishedMs int64 `json:"finished_ms"`
}
