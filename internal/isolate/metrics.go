package isolate

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/programme-lv/exerciser/internal"
)

// Metrics is the content of an isolate --meta file.
type Metrics struct {
	TimeSec      float64
	TimeWallSec  float64
	MaxRssKb     int64
	CswVoluntary int64
	CswForced    int64
	CgMemKb      int64
	ExitCode     int64
	ExitSig      *int64
	Killed       bool
	CgOomKilled  bool
	Status       string
	Message      string
}

func parseMetaFile(content []byte) (*Metrics, error) {
	m := &Metrics{}
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed meta line %q", line)
		}
		var err error
		switch key {
		case "time":
			m.TimeSec, err = strconv.ParseFloat(value, 64)
		case "time-wall":
			m.TimeWallSec, err = strconv.ParseFloat(value, 64)
		case "max-rss":
			m.MaxRssKb, err = strconv.ParseInt(value, 10, 64)
		case "csw-voluntary":
			m.CswVoluntary, err = strconv.ParseInt(value, 10, 64)
		case "csw-forced":
			m.CswForced, err = strconv.ParseInt(value, 10, 64)
		case "cg-mem":
			m.CgMemKb, err = strconv.ParseInt(value, 10, 64)
		case "exitcode":
			m.ExitCode, err = strconv.ParseInt(value, 10, 64)
		case "exitsig":
			var sig int64
			sig, err = strconv.ParseInt(value, 10, 64)
			m.ExitSig = &sig
		case "killed":
			m.Killed = value == "1"
		case "cg-oom-killed":
			m.CgOomKilled = value == "1"
		case "status":
			m.Status = value
		case "message":
			m.Message = value
		}
		if err != nil {
			return nil, fmt.Errorf("meta key %s: %w", key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// runData converts metrics into the shape shared with the other backends.
// Stdout and stderr are filled in by the caller.
func (m *Metrics) runData() *internal.RunData {
	rd := &internal.RunData{
		ExitCode:   m.ExitCode,
		CpuMs:      int64(m.TimeSec * 1000),
		WallMs:     int64(m.TimeWallSec * 1000),
		MemKiB:     m.MaxRssKb,
		ExitSignal: m.ExitSig,
		TimedOut:   m.Status == "TO",
		OomKilled:  m.CgOomKilled,
	}
	if m.CgMemKb > 0 {
		rd.MemKiB = m.CgMemKb
	}
	if m.Status != "" {
		status := m.Status
		rd.IsolateStatus = &status
	}
	if m.Message != "" {
		msg := m.Message
		rd.IsolateMsg = &msg
	}
	return rd
}
