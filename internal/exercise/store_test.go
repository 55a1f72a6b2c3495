package exercise_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/exercise"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, path string) *exercise.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := exercise.NewStore(path, langs.NewRegistry(), logger)
	require.NoError(t, s.Load())
	return s
}

func addTwo() api.CreateExerciseRequest {
	return api.CreateExerciseRequest{
		Code:       "read a b; echo $((a+b))",
		Assignment: "print the sum of two numbers",
		Language:   "sh",
		Tests: []api.Test{
			{Name: "returns 4 when given 2+2", Input: "2 2\n", Expected: "4"},
			{Name: "service sum", Request: &api.HTTPRequest{Method: "post", Path: "/sum", Body: "1 2"}, Expected: "3"},
		},
		StaticRules: []api.StaticRule{{Pattern: `eval`, Forbid: true}},
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))

	req := addTwo()
	id, err := s.Create(req)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ex, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, ex.ID)
	assert.Equal(t, req.Code, ex.Code)
	assert.Equal(t, req.Assignment, ex.Assignment)
	assert.Equal(t, "sh", ex.Language)
	require.Len(t, ex.Tests, 2)
	assert.Equal(t, req.Tests[0], ex.Tests[0])
	assert.Equal(t, "POST", ex.Tests[1].Request.Method)
	assert.Equal(t, "rule-1", ex.StaticRules[0].ID)
	assert.False(t, ex.CreatedAt.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))
	id, err := s.Create(addTwo())
	require.NoError(t, err)

	ex, err := s.Get(id)
	require.NoError(t, err)
	ex.Tests[0].Expected = "tampered"
	ex.Tests[1].Request.Path = "/tampered"

	again, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "4", again.Tests[0].Expected)
	assert.Equal(t, "/sum", again.Tests[1].Request.Path)
}

func TestCreateValidation(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))

	cases := map[string]func(r *api.CreateExerciseRequest){
		"no tests":        func(r *api.CreateExerciseRequest) { r.Tests = nil },
		"empty code":      func(r *api.CreateExerciseRequest) { r.Code = "  " },
		"unnamed test":    func(r *api.CreateExerciseRequest) { r.Tests[0].Name = "" },
		"duplicate names": func(r *api.CreateExerciseRequest) { r.Tests[1].Name = r.Tests[0].Name },
		"relative path":   func(r *api.CreateExerciseRequest) { r.Tests[1].Request.Path = "sum" },
		"bad method":      func(r *api.CreateExerciseRequest) { r.Tests[1].Request.Method = "FETCH" },
		"bad language":    func(r *api.CreateExerciseRequest) { r.Language = "cobol" },
		"bad regex":       func(r *api.CreateExerciseRequest) { r.StaticRules[0].Pattern = "(" },
		"negative limits": func(r *api.CreateExerciseRequest) { r.Limits = &api.Limits{CpuMs: -1} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := addTwo()
			mutate(&req)
			_, err := s.Create(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrValidation), err.Error())
		})
	}
	assert.Empty(t, s.List())
}

func TestDefaultLanguage(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))
	req := addTwo()
	req.Language = ""
	id, err := s.Create(req)
	require.NoError(t, err)
	ex, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, exercise.DefaultLanguage, ex.Language)
}

func TestGetUnknown(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))
	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))
	id, err := s.Create(addTwo())
	require.NoError(t, err)

	var deleted []string
	s.OnDelete(func(id string) { deleted = append(deleted, id) })

	require.NoError(t, s.Delete(id))
	require.NoError(t, s.Delete(id))
	require.NoError(t, s.Delete("never-existed"))

	_, err = s.Get(id)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, []string{id}, deleted)
}

func TestPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exercises.json")
	s := newStore(t, path)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Create(addTwo())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.Delete(ids[1]))

	reopened := newStore(t, path)
	list := reopened.List()
	require.Len(t, list, 2)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, ids[2], list[1].ID)

	orig, err := s.Get(ids[2])
	require.NoError(t, err)
	loaded, err := reopened.Get(ids[2])
	require.NoError(t, err)
	assert.Equal(t, orig.Tests, loaded.Tests)
	assert.True(t, orig.CreatedAt.Equal(loaded.CreatedAt))
}

func TestListKeepsInsertionOrder(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Create(addTwo())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	var got []string
	for _, e := range s.List() {
		got = append(got, e.ID)
	}
	assert.Equal(t, ids, got)
}

func TestConcurrentCreateDelete(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "exercises.json"))

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Create(addTwo())
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	var all []string
	for id := range ids {
		all = append(all, id)
	}
	for _, id := range all[:10] {
		wg.Add(2)
		go func(id string) { defer wg.Done(); assert.NoError(t, s.Delete(id)) }(id)
		go func(id string) { defer wg.Done(); assert.NoError(t, s.Delete(id)) }(id)
	}
	wg.Wait()
	assert.Len(t, s.List(), 10)
}

func TestWriteFailureLeavesStoreUnchanged(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := exercise.NewStore(filepath.Join(blocker, "exercises.json"), langs.NewRegistry(), logger)

	_, err := s.Create(addTwo())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrStore))
	assert.Empty(t, s.List())
}

func TestLoadRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exercises.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := exercise.NewStore(path, langs.NewRegistry(), logger)
	err := s.Load()
	assert.True(t, errors.Is(err, errs.ErrStore))
}
