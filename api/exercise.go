package api

import "time"

// Exercise is a stored programming assignment.
type Exercise struct {
	ID string `json:"id"`

	// Code is the reference solution.
	Code       string `json:"code"`
	Tests      []Test `json:"tests"`
	Assignment string `json:"assignment"`

	Language    string       `json:"language"`
	StaticRules []StaticRule `json:"static_rules,omitempty"`
	Limits      Limits       `json:"limits"`

	CreatedAt time.Time `json:"created_at"`
}

// Test is a single check an attempt has to pass.
type Test struct {
	Name string `json:"name" toml:"name"`

	// Input is fed to stdin for stdin tests and ignored for request tests.
	Input string `json:"input,omitempty" toml:"input"`
	// Expected is compared token-wise to stdout or to the response body.
	Expected string `json:"expected" toml:"expected"`

	Request *HTTPRequest `json:"request,omitempty" toml:"request"`

	// Hint is shown once the generic hints for this test are exhausted.
	Hint string `json:"hint,omitempty" toml:"hint"`
}

// HTTPRequest turns a test into a request against the attempt's service.
type HTTPRequest struct {
	Method  string            `json:"method" toml:"method"`
	Path    string            `json:"path" toml:"path"`
	Body    string            `json:"body,omitempty" toml:"body"`
	Headers map[string]string `json:"headers,omitempty" toml:"headers"`
	// Status is the expected response status, 0 accepts any.
	Status int `json:"status,omitempty" toml:"status"`
}

// StaticRule is an exercise specific static check.
type StaticRule struct {
	ID      string `json:"id" toml:"id"`
	Pattern string `json:"pattern" toml:"pattern"`
	// Files is a path.Match glob, empty matches every file.
	Files   string `json:"files,omitempty" toml:"files"`
	Forbid  bool   `json:"forbid" toml:"forbid"`
	Message string `json:"message" toml:"message"`
}

// Limits bound a single process of an attempt. Zero means the sandbox default.
type Limits struct {
	CpuMs  int64 `json:"cpu_ms,omitempty" toml:"cpu_ms"`
	WallMs int64 `json:"wall_ms,omitempty" toml:"wall_ms"`
	MemKiB int64 `json:"mem_kib,omitempty" toml:"mem_kib"`
}

// CreateExerciseRequest is the body of POST /createExercise.
type CreateExerciseRequest struct {
	Code        string       `json:"code" binding:"required"`
	Tests       []Test       `json:"tests" binding:"required"`
	Assignment  string       `json:"assignment"`
	Language    string       `json:"language"`
	StaticRules []StaticRule `json:"static_rules"`
	Limits      *Limits      `json:"limits"`
}

type CreateExerciseResponse struct {
	ID string `json:"id"`
}

// ExerciseIDRequest is the body of the id-only endpoints.
type ExerciseIDRequest struct {
	ID string `json:"id" binding:"required"`
}

// ExerciseSummary is an element of GET /getAllExercises.
type ExerciseSummary struct {
	ID         string    `json:"id"`
	Assignment string    `json:"assignment"`
	Language   string    `json:"language"`
	TestCount  int       `json:"test_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e Exercise) Summary() ExerciseSummary {
	return ExerciseSummary{
		ID:         e.ID,
		Assignment: e.Assignment,
		Language:   e.Language,
		TestCount:  len(e.Tests),
		CreatedAt:  e.CreatedAt,
	}
}

type DeleteExerciseResponse struct {
	Status string `json:"status"`
}
