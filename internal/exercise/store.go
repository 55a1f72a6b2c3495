// Package exercise keeps exercise definitions and persists them as a single JSON snapshot.
package exercise

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/langs"
)

const snapshotVersion = 1

type snapshot struct {
	Version   int            `json:"version"`
	Exercises []api.Exercise `json:"exercises"`
}

// Store is the only owner of exercise records. Reads are served from memory,
// every mutation rewrites the snapshot before it becomes visible.
type Store struct {
	path     string
	registry *langs.Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	exercises map[string]api.Exercise
	order     []string

	hooksMu  sync.Mutex
	onDelete []func(id string)

	now func() time.Time
}

func NewStore(path string, registry *langs.Registry, logger *slog.Logger) *Store {
	return &Store{
		path:      path,
		registry:  registry,
		logger:    logger.With(slog.String("component", "exercise-store")),
		exercises: make(map[string]api.Exercise),
		now:       time.Now,
	}
}

// Load replaces the in-memory state with the snapshot on disk.
// A missing snapshot is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.exercises = make(map[string]api.Exercise)
		s.order = nil
		s.logger.Info("no exercise snapshot yet", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return errs.Store("read snapshot", err)
	}

	var snap snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return errs.Store("decode snapshot", err)
	}
	if snap.Version != snapshotVersion {
		return errs.Store(fmt.Sprintf("unsupported snapshot version %d", snap.Version), nil)
	}

	exercises := make(map[string]api.Exercise, len(snap.Exercises))
	order := make([]string, 0, len(snap.Exercises))
	for _, e := range snap.Exercises {
		if e.ID == "" {
			return errs.Store("snapshot contains an exercise without id", nil)
		}
		if _, dup := exercises[e.ID]; dup {
			return errs.Store(fmt.Sprintf("snapshot contains duplicate id %s", e.ID), nil)
		}
		exercises[e.ID] = e
		order = append(order, e.ID)
	}
	s.exercises = exercises
	s.order = order

	s.logger.Info("loaded exercises", slog.Int("count", len(order)), slog.String("path", s.path))
	return nil
}

func (s *Store) Create(req api.CreateExerciseRequest) (string, error) {
	ex, err := normalize(req, s.registry)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	for {
		if _, taken := s.exercises[id]; !taken {
			break
		}
		id = uuid.NewString()
	}
	ex.ID = id
	ex.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	s.exercises[id] = ex
	s.order = append(s.order, id)
	if err := s.persistLocked(); err != nil {
		delete(s.exercises, id)
		s.order = s.order[:len(s.order)-1]
		return "", err
	}

	s.logger.Info("created exercise", slog.String("id", id), slog.Int("tests", len(ex.Tests)))
	return id, nil
}

func (s *Store) Get(id string) (api.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.exercises[id]
	if !ok {
		return api.Exercise{}, errs.NotFound("exercise %q", id)
	}
	return clone(ex), nil
}

// List returns exercises in creation order.
func (s *Store) List() []api.Exercise {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]api.Exercise, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, clone(s.exercises[id]))
	}
	return res
}

// Delete removes the exercise. Deleting an absent id succeeds.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	ex, ok := s.exercises[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}

	pos := -1
	for i, oid := range s.order {
		if oid == id {
			pos = i
			break
		}
	}
	prevOrder := append([]string(nil), s.order...)
	delete(s.exercises, id)
	if pos >= 0 {
		s.order = append(s.order[:pos], s.order[pos+1:]...)
	}
	if err := s.persistLocked(); err != nil {
		s.exercises[id] = ex
		s.order = prevOrder
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.logger.Info("deleted exercise", slog.String("id", id))

	s.hooksMu.Lock()
	hooks := append([]func(string){}, s.onDelete...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

// OnDelete registers fn to be called after an exercise is removed.
// Caches keyed by exercise id use it to drop their entries.
func (s *Store) OnDelete(fn func(id string)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

func (s *Store) persistLocked() error {
	snap := snapshot{Version: snapshotVersion, Exercises: make([]api.Exercise, 0, len(s.order))}
	for _, id := range s.order {
		snap.Exercises = append(snap.Exercises, s.exercises[id])
	}
	content, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errs.Store("encode snapshot", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Store("create snapshot dir", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errs.Store("create temp snapshot", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return errs.Store("write snapshot", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Store("sync snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Store("close snapshot", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errs.Store("replace snapshot", err)
	}
	return nil
}

func clone(e api.Exercise) api.Exercise {
	tests := make([]api.Test, len(e.Tests))
	for i, t := range e.Tests {
		if t.Request != nil {
			r := *t.Request
			if r.Headers != nil {
				h := make(map[string]string, len(r.Headers))
				for k, v := range r.Headers {
					h[k] = v
				}
				r.Headers = h
			}
			t.Request = &r
		}
		tests[i] = t
	}
	e.Tests = tests
	if e.StaticRules != nil {
		e.StaticRules = append([]api.StaticRule(nil), e.StaticRules...)
	}
	return e
}
