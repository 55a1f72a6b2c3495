// Package usagelog appends evaluation events to one tab separated file per
// user and bundles all of them into an archive on request.
package usagelog

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/puzpuzpuz/xsync/v3"
)

const fileExt = ".tsv"

var userIDRe = regexp.MustCompile(`^[A-Za-z0-9_@-][A-Za-z0-9._@-]{0,127}$`)

// Recorder owns the log directory. Writes to one user's file are serialized
// by a per user lock; different users never wait for each other.
type Recorder struct {
	dir    string
	locks  *xsync.MapOf[string, *sync.Mutex]
	logger *slog.Logger
}

func NewRecorder(dir string, logger *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Store("create log dir", err)
	}
	return &Recorder{
		dir:    dir,
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
		logger: logger.With(slog.String("component", "usagelog")),
	}, nil
}

func (r *Recorder) Dir() string { return r.dir }

func (r *Recorder) lock(userID string) func() {
	mu, _ := r.locks.LoadOrCompute(userID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

// ValidUserID reports whether id can be used as a log file name.
func ValidUserID(id string) bool {
	return userIDRe.MatchString(id)
}

// Append writes one row to the user's log, creating the file with the
// header row first if it does not exist yet.
func (r *Recorder) Append(userID string, content api.LogContent) error {
	if !ValidUserID(userID) {
		return errs.Validation("user id %q is not a valid file name", userID)
	}

	var buf bytes.Buffer
	writeRow(&buf, content.Row())

	unlock := r.lock(userID)
	defer unlock()

	path := filepath.Join(r.dir, userID+fileExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errs.Store("open log", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return errs.Store("stat log", err)
	}

	var out bytes.Buffer
	if st.Size() == 0 {
		writeRow(&out, api.LogHeader)
	}
	out.Write(buf.Bytes())

	if _, err := f.Write(out.Bytes()); err != nil {
		f.Close()
		return errs.Store("append log", err)
	}
	if err := f.Close(); err != nil {
		return errs.Store("close log", err)
	}

	r.logger.Debug("appended log row", slog.String("user_id", userID))
	return nil
}

func writeRow(buf *bytes.Buffer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			buf.WriteByte('\t')
		}
		buf.WriteString(sanitize(c))
	}
	buf.WriteByte('\n')
}

var cellReplacer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// sanitize keeps a cell on one line and inside its column.
func sanitize(s string) string {
	return cellReplacer.Replace(s)
}

type logFile struct {
	name    string
	content []byte
	mode    os.FileMode
	modTime int64
}

// snapshot reads every log file, each under its user's lock so no file is
// caught half written.
func (r *Recorder) snapshot() ([]logFile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, errs.Store("list logs", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), fileExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]logFile, 0, len(names))
	for _, name := range names {
		f, err := r.readLocked(name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errs.Store(fmt.Sprintf("read log %s", name), err)
		}
		files = append(files, f)
	}
	return files, nil
}

func (r *Recorder) readLocked(name string) (logFile, error) {
	unlock := r.lock(strings.TrimSuffix(name, fileExt))
	defer unlock()

	path := filepath.Join(r.dir, name)
	st, err := os.Stat(path)
	if err != nil {
		return logFile{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return logFile{}, err
	}
	return logFile{name: name, content: content, mode: st.Mode().Perm(), modTime: st.ModTime().Unix()}, nil
}
