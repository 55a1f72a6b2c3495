package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LogHeader is the first row of every per-user log file.
var LogHeader = []string{"studentID", "exerciseID", "timestamp", "withFeedback", "feedback"}

// LogRequest is the body of POST /log.
type LogRequest struct {
	UserID     string     `json:"userId" binding:"required"`
	LogContent LogContent `json:"logContent"`
}

type LogContent struct {
	StudentID    LooseString     `json:"studentID"`
	ExerciseID   LooseString     `json:"exerciseID"`
	Timestamp    LooseString     `json:"timestamp"`
	WithFeedback LooseString     `json:"withFeedback"`
	Feedback     json.RawMessage `json:"feedback"`
}

// Row renders the content in LogHeader column order.
func (c LogContent) Row() []string {
	return []string{
		string(c.StudentID),
		string(c.ExerciseID),
		string(c.Timestamp),
		string(c.WithFeedback),
		feedbackCell(c.Feedback),
	}
}

func feedbackCell(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// LooseString accepts a JSON string, number or boolean.
// Clients send timestamps both as epoch millis and as ISO strings.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case json.Number:
		*s = LooseString(t.String())
	case bool:
		*s = LooseString(fmt.Sprint(t))
	default:
		return fmt.Errorf("expected a string, number or boolean, got %s", string(b))
	}
	return nil
}

type ExportFormat string

const (
	ExportZip    ExportFormat = "zip"
	ExportTarZst ExportFormat = "tar.zst"
)
