package api

import "time"

// MsgType is a message type for streaming evaluation events
type MsgType string

// Streaming message type constants
const (
	StartJobMsg      MsgType = "job_start"
	FinishStaticMsg  MsgType = "static_finish"
	StartCompileMsg  MsgType = "compile_start"
	FinishCompileMsg MsgType = "compile_finish"
	StartServiceMsg  MsgType = "service_start"
	ReachTestMsg     MsgType = "test_reach"
	FinishTestMsg    MsgType = "test_finish"
	FinishJobMsg     MsgType = "job_finish"
)

// Runtime data size constraints for streaming
const (
	MaxRuntimeDataHeight = 40
	MaxRuntimeDataWidth  = 80
)

// Header is the common header for all streaming messages
type Header struct {
	EvalUuid string  `json:"eval_uuid"`
	MsgType  MsgType `json:"msg_type"`
}

// RuntimeData contains execution information for a process (streaming version)
type RuntimeData struct {
	Stdin    string `json:"in"`
	Stdout   string `json:"out"`
	Stderr   string `json:"err"`
	ExitCode int64  `json:"exit"`

	CpuMillis  int64 `json:"cpu_ms"`
	WallMillis int64 `json:"wall_ms"`
	RamKiBytes int64 `json:"ram_kib"`

	ExitSignal  *int64 `json:"signal"`
	TimedOut    bool   `json:"timed_out"`
	CgOomKilled bool   `json:"cg_oom_killed"`

	IsolateStatus *string `json:"isolate_status"`
	IsolateMsg    *string `json:"isolate_msg"`
}

// StartJob message sent when evaluation begins
type StartJob struct {
	Header
	ExerciseID  string `json:"exercise_id"`
	StartedTime string `json:"started_time"`
}

// FinishStatic message sent when static analysis of the attempt completes
type FinishStatic struct {
	Header
	Findings []Finding `json:"findings"`
}

// StartCompile message sent when compilation or the syntax check begins
type StartCompile struct {
	Header
}

// FinishCompile message sent when compilation completes
type FinishCompile struct {
	Header
	RuntimeData *RuntimeData `json:"runtime_data"`
}

// StartService message sent when the attempt is started as a service on Port
type StartService struct {
	Header
	Port int `json:"port"`
}

// ReachTest message sent when a test is reached
type ReachTest struct {
	Header
	TestIdx int    `json:"test_idx"`
	Name    string `json:"name"`
}

// FinishTest message sent when a test completes
type FinishTest struct {
	Header
	TestIdx     int          `json:"test_idx"`
	Name        string       `json:"name"`
	Verdict     Verdict      `json:"verdict"`
	RuntimeData *RuntimeData `json:"runtime_data"`
}

// FinishJob message sent when evaluation completes
type FinishJob struct {
	Header
	ErrorMessage  *string `json:"error_message"`
	CompileError  bool    `json:"compile_error"`
	InternalError bool    `json:"internal_error"`
}

// Helper function to create a header
func NewHeader(evalUuid string, msgType MsgType) Header {
	return Header{
		EvalUuid: evalUuid,
		MsgType:  msgType,
	}
}

// Helper functions to create specific streaming message types
func NewStartJob(evalUuid, exerciseID string) StartJob {
	return StartJob{
		Header:      NewHeader(evalUuid, StartJobMsg),
		ExerciseID:  exerciseID,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewFinishStatic(evalUuid string, findings []Finding) FinishStatic {
	return FinishStatic{
		Header:   NewHeader(evalUuid, FinishStaticMsg),
		Findings: findings,
	}
}

func NewStartCompile(evalUuid string) StartCompile {
	return StartCompile{
		Header: NewHeader(evalUuid, StartCompileMsg),
	}
}

func NewFinishCompile(evalUuid string, runtimeData *RuntimeData) FinishCompile {
	return FinishCompile{
		Header:      NewHeader(evalUuid, FinishCompileMsg),
		RuntimeData: runtimeData,
	}
}

func NewStartService(evalUuid string, port int) StartService {
	return StartService{
		Header: NewHeader(evalUuid, StartServiceMsg),
		Port:   port,
	}
}

func NewReachTest(evalUuid string, idx int, name string) ReachTest {
	return ReachTest{
		Header:  NewHeader(evalUuid, ReachTestMsg),
		TestIdx: idx,
		Name:    name,
	}
}

func NewFinishTest(evalUuid string, idx int, name string, verdict Verdict, rd *RuntimeData) FinishTest {
	return FinishTest{
		Header:      NewHeader(evalUuid, FinishTestMsg),
		TestIdx:     idx,
		Name:        name,
		Verdict:     verdict,
		RuntimeData: rd,
	}
}

func NewFinishJob(evalUuid string, errorMessage *string, compileError, internalError bool) FinishJob {
	return FinishJob{
		Header:        NewHeader(evalUuid, FinishJobMsg),
		ErrorMessage:  errorMessage,
		CompileError:  compileError,
		InternalError: internalError,
	}
}
