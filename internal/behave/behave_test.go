package behave

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/runner"
	"github.com/programme-lv/exerciser/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	suite, err := Parse("testdata/sh.toml")
	require.NoError(t, err)

	require.Len(t, suite.Languages, 1)
	assert.Equal(t, "sh-e", suite.Languages[0].ID)
	require.NotNil(t, suite.Languages[0].CompileCmd)
	assert.Nil(t, suite.Languages[0].CompiledFname)

	require.Len(t, suite.Cases, 9)
	first := suite.Cases[0]
	assert.Equal(t, "correct sum is accepted", first.Name)
	assert.Equal(t, "sh", first.Exercise.Language)
	require.Len(t, first.Exercise.Tests, 2)
	assert.Equal(t, "10 -4\n", first.Exercise.Tests[1].Input)
	assert.Equal(t, "read a b\necho $((a + b))\n", first.Files["main.sh"])
	assert.Equal(t, []string{"AC", "AC"}, first.Expect.Verdicts)

	limited := suite.Cases[4]
	require.NotNil(t, limited.Exercise.Limits)
	assert.EqualValues(t, 300, limited.Exercise.Limits.WallMs)

	ruled := suite.Cases[5]
	require.Len(t, ruled.Exercise.StaticRules, 1)
	assert.Equal(t, `\beval\b`, ruled.Exercise.StaticRules[0].Pattern)
	assert.True(t, ruled.Exercise.StaticRules[0].Forbid)
}

func TestParseRejectsIncompleteFiles(t *testing.T) {
	cases := map[string]string{
		"no files": `
[[scenarios]]
description = "x"
[scenarios.expect]
status = "AC"
`,
		"no expectation": `
[[scenarios]]
[scenarios.attempt.files]
"main.sh" = "echo"
`,
		"bad language": `
[[languages]]
id = "x"
`,
		"not toml": `[[scenarios`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBytes([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestCompare(t *testing.T) {
	fb := &api.Feedback{
		Status: api.StatusPartial,
		Tests: []api.TestFeedback{
			{Name: "a", Verdict: api.Accepted},
			{Name: "b", Verdict: api.WrongAnswer},
		},
		Static: []api.Finding{{Rule: "line-length"}},
	}

	assert.Empty(t, Compare(SpecExpect{Status: "PT", Verdicts: []string{"AC", "WA"}, Findings: []string{"line-length"}}, fb, nil))
	assert.Len(t, Compare(SpecExpect{Status: "AC"}, fb, nil), 1)
	assert.Len(t, Compare(SpecExpect{Status: "PT", Verdicts: []string{"AC", "AC"}}, fb, nil), 1)
	assert.Len(t, Compare(SpecExpect{Status: "PT", Verdicts: []string{"AC"}}, fb, nil), 1)
	assert.Len(t, Compare(SpecExpect{Status: "PT", Findings: []string{"no-eval"}}, fb, nil), 1)

	assert.Empty(t, Compare(SpecExpect{Error: "not_found"}, nil, errs.NotFound("x")))
	assert.Len(t, Compare(SpecExpect{Error: "validation_error"}, nil, errs.NotFound("x")), 1)
	assert.Len(t, Compare(SpecExpect{Error: "validation_error"}, fb, nil), 1)
	assert.Len(t, Compare(SpecExpect{Status: "AC"}, nil, errors.New("boom")), 1)
}

func TestRunShellScenarios(t *testing.T) {
	suite, err := Parse("testdata/sh.toml")
	require.NoError(t, err)

	results, err := Run(context.Background(), suite, Options{
		Ports:  sandbox.NewPortAllocator(32000, 32099),
		Runner: runner.Config{TestTimeout: 2 * time.Second, ReadyTimeout: 2 * time.Second},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.Len(t, results, len(suite.Cases))

	for _, r := range results {
		assert.True(t, r.Passed(), "%s: %v", r.Case.Name, r.Mismatches)
	}
}

func TestParseExercise(t *testing.T) {
	req, err := ParseExercise([]byte(`
language = "python3"
code = "print(sum(map(int, input().split())))"
assignment = "Sum two numbers."

[[tests]]
name = "small"
input = "1 2"
expected = "3"

[[tests]]
name = "api"
expected = "pong"
hint = "Answer on the path /ping."
[tests.request]
method = "GET"
path = "/ping"
status = 200
`))
	require.NoError(t, err)
	assert.Equal(t, "python3", req.Language)
	require.Len(t, req.Tests, 2)
	require.NotNil(t, req.Tests[1].Request)
	assert.Equal(t, "/ping", req.Tests[1].Request.Path)
	assert.Equal(t, 200, req.Tests[1].Request.Status)
	assert.Nil(t, req.Limits)
}
