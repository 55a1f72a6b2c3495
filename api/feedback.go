package api

import "encoding/json"

// Verdict is the outcome of one test.
type Verdict string

const (
	Accepted          Verdict = "AC"
	WrongAnswer       Verdict = "WA"
	TimeLimitExceeded Verdict = "TLE"
	RuntimeError      Verdict = "RE"
	CompilationError  Verdict = "CE"
	Ignored           Verdict = "IG"
)

// Status is the outcome of a whole attempt.
type Status string

const (
	StatusAccepted         Status = "AC"
	StatusPartial          Status = "PT"
	StatusWrongAnswer      Status = "WA"
	StatusCompilationError Status = "CE"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is one static analysis result.
type Finding struct {
	File     string   `json:"file"`
	Line     int      `json:"line,omitempty"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Feedback is returned to the student after an evaluation.
// It carries no timing information so equal attempts produce equal feedback.
type Feedback struct {
	ExerciseID string `json:"exercise_id"`
	Status     Status `json:"status"`
	Passed     int    `json:"passed"`
	Total      int    `json:"total"`

	Compilation CompileFeedback `json:"compilation"`

	StaticSkipped bool      `json:"static_skipped"`
	Static        []Finding `json:"static"`

	Tests []TestFeedback `json:"tests"`
	Hints []string       `json:"hints"`
}

type CompileFeedback struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type TestFeedback struct {
	Name     string  `json:"name"`
	Passed   bool    `json:"passed"`
	Verdict  Verdict `json:"verdict"`
	Crash    bool    `json:"crash"`
	TimedOut bool    `json:"timed_out"`
	Message  string  `json:"message,omitempty"`
	Stderr   string  `json:"stderr,omitempty"`

	Hint    *Hint       `json:"hint,omitempty"`
	History TestHistory `json:"history"`
}

// Hint levels, from a vague category up to the author's own hint.
const (
	HintCategory = iota
	HintObserved
	HintDiff
	HintAuthor
)

type Hint struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// TestHistory lets the next evaluation diff against this one.
type TestHistory struct {
	FailStreak int      `json:"fail_streak"`
	HintLevel  int      `json:"hint_level"`
	HintsGiven []string `json:"hints_given,omitempty"`
}

// EvaluateRequest is the body of POST /evaluateExercise and its without-static twin.
type EvaluateRequest struct {
	ID           string            `json:"id" binding:"required"`
	AttemptFiles map[string]string `json:"attemptFiles" binding:"required"`
	Port         *int              `json:"port"`
	// PreviousFeedback is kept raw: a malformed value must not fail the evaluation.
	PreviousFeedback json.RawMessage `json:"previousFeedback"`
}

// NatsEvaluateRequest is the payload of the NATS evaluation subject.
type NatsEvaluateRequest struct {
	EvaluateRequest
	WithoutStatic bool   `json:"without_static"`
	EventsInbox   string `json:"events_inbox"`
}

type EvaluateResponse struct {
	Feedback  *Feedback `json:"feedback,omitempty"`
	Error     *string   `json:"error,omitempty"`
	ErrorCode *string   `json:"error_code,omitempty"`
}
