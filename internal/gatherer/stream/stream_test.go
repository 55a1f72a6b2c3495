package stream

import (
	"strings"
	"testing"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimStrToRect(t *testing.T) {
	assert.Equal(t, "", trimStrToRect("", 2, 3))
	assert.Equal(t, "abc[...]\nde", trimStrToRect("abcdef\nde", 2, 3))
	assert.Equal(t, "a\nb\n[...]", trimStrToRect("a\nb\nc\nd", 2, 3))
}

func TestMessagesInOrder(t *testing.T) {
	var msgs []any
	g := New("uuid", func(msg any) { msgs = append(msgs, msg) })

	g.StartJob("ex", true)
	g.StartCompile()
	g.FinishCompile(&internal.RunData{Stdout: []byte(strings.Repeat("x", 200))})
	g.ReachTest(0, "a")
	g.FinishTest(internal.TestRun{Index: 0, Name: "a", Verdict: api.Accepted})
	g.CompileError("nope")

	require.Len(t, msgs, 6)
	start := msgs[0].(api.StartJob)
	assert.Equal(t, "uuid", start.EvalUuid)
	assert.Equal(t, api.StartJobMsg, start.MsgType)
	assert.Equal(t, "ex", start.ExerciseID)

	fc := msgs[2].(api.FinishCompile)
	assert.Len(t, fc.RuntimeData.Stdout, api.MaxRuntimeDataWidth+len("[...]"))

	ft := msgs[4].(api.FinishTest)
	assert.Nil(t, ft.RuntimeData)
	assert.Equal(t, api.Accepted, ft.Verdict)

	fj := msgs[5].(api.FinishJob)
	assert.True(t, fj.CompileError)
	assert.Equal(t, "nope", *fj.ErrorMessage)
}
