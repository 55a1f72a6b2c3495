package httpapi_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/programme-lv/exerciser/internal/exercise"
	"github.com/programme-lv/exerciser/internal/httpapi"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/programme-lv/exerciser/internal/usagelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	got []evaluator.Request
	fb  api.Feedback
	err error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, req evaluator.Request, _ ...internal.ResultGatherer) (api.Feedback, error) {
	f.got = append(f.got, req)
	return f.fb, f.err
}

type env struct {
	srv   *httpapi.Server
	store *exercise.Store
	eval  *fakeEvaluator
}

func newEnv(t *testing.T, rps float64) env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	store := exercise.NewStore(filepath.Join(dir, "exercises.json"), langs.NewRegistry(), logger)
	require.NoError(t, store.Load())
	logs, err := usagelog.NewRecorder(filepath.Join(dir, "logs"), logger)
	require.NoError(t, err)

	ev := &fakeEvaluator{fb: api.Feedback{ExerciseID: "x", Status: api.StatusAccepted, Passed: 1, Total: 1}}
	srv := httpapi.NewServer(httpapi.Config{
		Exercises: store,
		Evaluator: ev,
		Logs:      logs,
		Logger:    logger,
		RateRPS:   rps,
	})
	return env{srv: srv, store: store, eval: ev}
}

func (e env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

const createBody = `{
	"code": "console.log(1)",
	"assignment": "print one",
	"tests": [{"name": "one", "input": "", "expected": "1"}]
}`

func TestHealth(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestExerciseLifecycle(t *testing.T) {
	e := newEnv(t, 0)

	w := e.do(t, http.MethodPost, "/createExercise", createBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created api.CreateExerciseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	w = e.do(t, http.MethodPost, "/getFullExercise", `{"id":"`+created.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var ex api.Exercise
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ex))
	assert.Equal(t, "console.log(1)", ex.Code)
	assert.Equal(t, "node", ex.Language)

	w = e.do(t, http.MethodGet, "/getAllExercises", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all []api.ExerciseSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].TestCount)

	for range 2 {
		w = e.do(t, http.MethodPost, "/deleteExercise", `{"id":"`+created.ID+`"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w = e.do(t, http.MethodPost, "/getFullExercise", `{"id":"`+created.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestGetAllExercisesEmptyIsArray(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, http.MethodGet, "/getAllExercises", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateExerciseValidation(t *testing.T) {
	e := newEnv(t, 0)
	cases := map[string]string{
		"empty tests":   `{"code":"x","tests":[]}`,
		"no tests":      `{"code":"x"}`,
		"unknown field": `{"code":"x","tests":[{"name":"a","expected":"1"}],"colour":"red"}`,
		"not json":      `{"code":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/createExercise", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_error", errorCode(t, w))
		})
	}
	assert.Empty(t, e.store.List())
}

func TestEvaluatePassesRequestThrough(t *testing.T) {
	e := newEnv(t, 0)
	body := `{
		"id": "ex1",
		"attemptFiles": {"index.js": "console.log(1)"},
		"port": 21001,
		"previousFeedback": "{\"tests\":[]}"
	}`

	w := e.do(t, http.MethodPost, "/evaluateExercise", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fb api.Feedback
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fb))
	assert.Equal(t, api.StatusAccepted, fb.Status)

	w = e.do(t, http.MethodPost, "/evaluateExerciseWithoutStatic", body)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, e.eval.got, 2)
	first := e.eval.got[0]
	assert.Equal(t, "ex1", first.ExerciseID)
	assert.Equal(t, "console.log(1)", first.Files["index.js"])
	require.NotNil(t, first.Port)
	assert.Equal(t, 21001, *first.Port)
	assert.False(t, first.WithoutStatic)
	assert.JSONEq(t, `"{\"tests\":[]}"`, string(first.Previous))
	assert.True(t, e.eval.got[1].WithoutStatic)
}

func TestEvaluateErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errs.NotFound("exercise %q", "x"), http.StatusNotFound, "not_found"},
		{errs.Validation("path escapes the box"), http.StatusBadRequest, "validation_error"},
		{errs.Sandbox("no free port", nil), http.StatusInternalServerError, "sandbox_error"},
	}
	for _, tc := range cases {
		e := newEnv(t, 0)
		e.eval.err = tc.err
		w := e.do(t, http.MethodPost, "/evaluateExercise", `{"id":"x","attemptFiles":{"a.js":""}}`)
		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, tc.code, errorCode(t, w))
	}
}

func TestEvaluateRateLimited(t *testing.T) {
	e := newEnv(t, 1)
	body := `{"id":"x","attemptFiles":{"a.js":""}}`

	w := e.do(t, http.MethodPost, "/evaluateExercise", body)
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/evaluateExercise", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", errorCode(t, w))

	// other routes are not limited
	w = e.do(t, http.MethodGet, "/getAllExercises", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogAndDownload(t *testing.T) {
	e := newEnv(t, 0)

	w := e.do(t, http.MethodPost, "/log", `{
		"userId": "student-1",
		"logContent": {"studentID": "s1", "exerciseID": "e1", "timestamp": 1700000000000, "withFeedback": true, "feedback": {"status":"AC"}}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/log", `{"userId": "../etc/passwd", "logContent": {}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/downloadLogs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="logsWebpal.zip"`, w.Header().Get("Content-Disposition"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "student-1.tsv", zr.File[0].Name)

	f, err := zr.File[0].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t,
		"studentID\texerciseID\ttimestamp\twithFeedback\tfeedback\n"+
			"s1\te1\t1700000000000\ttrue\t{\"status\":\"AC\"}\n",
		string(content))

	w = e.do(t, http.MethodGet, "/downloadLogs?format=tar.zst", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="logsWebpal.tar.zst"`, w.Header().Get("Content-Disposition"))

	w = e.do(t, http.MethodGet, "/downloadLogs?format=rar", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCorsPreflight(t *testing.T) {
	e := newEnv(t, 0)
	req := httptest.NewRequest(http.MethodOptions, "/evaluateExercise", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	e.srv.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, 0)
	e.do(t, http.MethodPost, "/createExercise", createBody)

	w := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exerciser_exercises")
}
