// Package behave runs end to end scenarios described in TOML: an exercise,
// an attempt and the feedback the attempt is expected to get.
package behave

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/langs"
)

// SpecLanguage registers an extra language for the scenarios of a file.
type SpecLanguage struct {
	ID            string `toml:"id"`
	LangName      string `toml:"lang_name"`
	CodeFname     string `toml:"code_fname"`
	CompileCmd    string `toml:"compile_cmd"`
	CompiledFname string `toml:"compiled_fname"`
	ExecCmd       string `toml:"exec_cmd"`
}

// SpecExercise is the exercise a scenario evaluates against.
type SpecExercise struct {
	Language    string           `toml:"language"`
	Code        string           `toml:"code"`
	Assignment  string           `toml:"assignment"`
	Tests       []api.Test       `toml:"tests"`
	StaticRules []api.StaticRule `toml:"static_rules"`
	Limits      *api.Limits      `toml:"limits"`
}

func (e SpecExercise) request() api.CreateExerciseRequest {
	return api.CreateExerciseRequest{
		Code:        e.Code,
		Tests:       e.Tests,
		Assignment:  e.Assignment,
		Language:    e.Language,
		StaticRules: e.StaticRules,
		Limits:      e.Limits,
	}
}

// ParseExercise reads a standalone exercise file, laid out like the
// exercise table of a scenario.
func ParseExercise(data []byte) (api.CreateExerciseRequest, error) {
	var e SpecExercise
	if err := toml.Unmarshal(data, &e); err != nil {
		return api.CreateExerciseRequest{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return e.request(), nil
}

// SpecAttempt is what the student submits.
type SpecAttempt struct {
	Files         map[string]string `toml:"files"`
	WithoutStatic bool              `toml:"without_static"`
}

// SpecExpect describes the expected overall status and per test verdicts.
type SpecExpect struct {
	Status   string   `toml:"status"`
	Verdicts []string `toml:"verdicts"`
	// Findings lists static rule ids that must be reported.
	Findings []string `toml:"findings"`
	// Error is the expected error code when the evaluation itself must fail.
	Error    string   `toml:"error"`
}

type specScenario struct {
	Description string       `toml:"description"`
	Exercise    SpecExercise `toml:"exercise"`
	Attempt     SpecAttempt  `toml:"attempt"`
	Expect      SpecExpect   `toml:"expect"`
}

type specRoot struct {
	Languages []SpecLanguage `toml:"languages"`
	Scenarios []specScenario `toml:"scenarios"`
}

// Case is a runnable scenario converted from TOML.
type Case struct {
	Name          string
	Exercise      api.CreateExerciseRequest
	Files         map[string]string
	WithoutStatic bool
	Expect        SpecExpect
}

type Suite struct {
	Languages []langs.Language
	Cases     []Case
}

// Parse reads a behaviour TOML file.
func Parse(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behaviour file: %w", err)
	}
	return ParseBytes(data)
}

func ParseBytes(data []byte) (*Suite, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	suite := &Suite{}
	for _, l := range root.Languages {
		if l.ID == "" || l.CodeFname == "" || l.ExecCmd == "" {
			return nil, fmt.Errorf("language specification incomplete; require id, code_fname, exec_cmd (id=%q)", l.ID)
		}
		lang := langs.Language{
			ID:        l.ID,
			Name:      l.LangName,
			CodeFname: l.CodeFname,
			ExecCmd:   l.ExecCmd,
		}
		if l.CompileCmd != "" {
			cc := l.CompileCmd
			lang.CompileCmd = &cc
		}
		if l.CompiledFname != "" {
			cf := l.CompiledFname
			lang.CompiledFname = &cf
		}
		suite.Languages = append(suite.Languages, lang)
	}

	for i, s := range root.Scenarios {
		name := strings.TrimSpace(s.Description)
		if name == "" {
			name = fmt.Sprintf("scenario %d", i+1)
		}
		if len(s.Attempt.Files) == 0 {
			return nil, fmt.Errorf("%s: attempt has no files", name)
		}
		if s.Expect.Status == "" && s.Expect.Error == "" {
			return nil, fmt.Errorf("%s: expect needs a status or an error", name)
		}
		suite.Cases = append(suite.Cases, Case{
			Name: name,
			Exercise:      s.Exercise.request(),
			Files:         s.Attempt.Files,
			WithoutStatic: s.Attempt.WithoutStatic,
			Expect:        s.Expect,
		})
	}
	return suite, nil
}
