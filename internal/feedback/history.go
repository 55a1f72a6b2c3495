package feedback

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/programme-lv/exerciser/api"
)

var ErrNoHistory = errors.New("no previous feedback")

// ParsePrevious decodes previous feedback as sent by a client. Clients send
// it either as a JSON object or as a string holding one.
func ParsePrevious(raw json.RawMessage) (*api.Feedback, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoHistory
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		if strings.TrimSpace(inner) == "" {
			return nil, ErrNoHistory
		}
		raw = json.RawMessage(inner)
	}
	var fb api.Feedback
	if err := json.Unmarshal(raw, &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}

// historyFrom indexes the per test history of previous by test name.
// History of another exercise is ignored.
func historyFrom(exerciseID string, previous *api.Feedback) map[string]api.TestHistory {
	hist := map[string]api.TestHistory{}
	if previous == nil {
		return hist
	}
	if previous.ExerciseID != "" && previous.ExerciseID != exerciseID {
		return hist
	}
	for _, t := range previous.Tests {
		if t.Name == "" {
			continue
		}
		h := t.History
		if h.FailStreak < 0 || h.HintLevel < 0 || h.HintLevel > api.HintAuthor {
			continue
		}
		hist[t.Name] = h
	}
	return hist
}
