package usagelog

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = strings.Join(api.LogHeader, "\t")

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(filepath.Join(t.TempDir(), "logsWebpal"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return r
}

func entry(student, exercise string) api.LogContent {
	return api.LogContent{
		StudentID:    api.LooseString(student),
		ExerciseID:   api.LooseString(exercise),
		Timestamp:    "1700000000000",
		WithFeedback: "true",
		Feedback:     json.RawMessage(`{"status": "AC",  "passed": 1}`),
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	r := newRecorder(t)
	require.NoError(t, r.Append("alice", entry("alice", "ex1")))
	require.NoError(t, r.Append("alice", entry("alice", "ex2")))

	lines := readLines(t, filepath.Join(r.Dir(), "alice.tsv"))
	require.Len(t, lines, 3)
	assert.Equal(t, header, lines[0])
	assert.Equal(t, "alice\tex1\t1700000000000\ttrue\t{\"status\":\"AC\",\"passed\":1}", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "alice\tex2\t"))
}

func TestCellsStayInTheirColumn(t *testing.T) {
	r := newRecorder(t)
	c := entry("a\tb", "ex\n1")
	c.Feedback = json.RawMessage(`"line one\nline two"`)
	require.NoError(t, r.Append("bob", c))

	lines := readLines(t, filepath.Join(r.Dir(), "bob.tsv"))
	require.Len(t, lines, 2)
	assert.Len(t, strings.Split(lines[1], "\t"), len(api.LogHeader))
	assert.Equal(t, "line one line two", strings.Split(lines[1], "\t")[4])
}

func TestUnsafeUserIDRejected(t *testing.T) {
	r := newRecorder(t)
	for _, id := range []string{"", "..", "../x", "a/b", ".hidden", "a b", strings.Repeat("x", 129)} {
		err := r.Append(id, entry("s", "e"))
		assert.True(t, errors.Is(err, errs.ErrValidation), id)
	}
	entries, err := os.ReadDir(r.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentAppends(t *testing.T) {
	r := newRecorder(t)
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Append("carol", entry("carol", fmt.Sprintf("ex%d", i))))
		}(i)
	}
	wg.Wait()

	lines := readLines(t, filepath.Join(r.Dir(), "carol.tsv"))
	require.Len(t, lines, n+1)
	assert.Equal(t, header, lines[0])

	seen := map[string]bool{}
	for _, l := range lines[1:] {
		cols := strings.Split(l, "\t")
		require.Len(t, cols, len(api.LogHeader))
		assert.False(t, seen[cols[1]], "duplicate row %s", cols[1])
		seen[cols[1]] = true
	}
	assert.Len(t, seen, n)
}

func TestExportZip(t *testing.T) {
	r := newRecorder(t)
	require.NoError(t, r.Append("alice", entry("alice", "ex1")))
	require.NoError(t, r.Append("bob", entry("bob", "ex1")))
	require.NoError(t, r.Append("bob", entry("bob", "ex2")))

	b, err := r.ExportAll(api.ExportZip)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "alice.tsv", zr.File[0].Name)
	assert.Equal(t, "bob.tsv", zr.File[1].Name)
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.True(t, strings.HasPrefix(string(content), header+"\n"), f.Name)
	}
}

func TestExportTarZst(t *testing.T) {
	r := newRecorder(t)
	require.NoError(t, r.Append("alice", entry("alice", "ex1")))
	require.NoError(t, r.Append("bob", entry("bob", "ex1")))

	b, err := r.ExportAll(api.ExportTarZst)
	require.NoError(t, err)

	dec, err := zstd.NewReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer dec.Close()

	tr := tar.NewReader(dec)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(content), header+"\n"))
	}
	assert.Equal(t, []string{"alice.tsv", "bob.tsv"}, names)
}

func TestExportEmpty(t *testing.T) {
	r := newRecorder(t)
	b, err := r.ExportAll(api.ExportZip)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, api.ExportZip, f)
	f, err = ParseFormat("tar.zst")
	require.NoError(t, err)
	assert.Equal(t, api.ExportTarZst, f)
	_, err = ParseFormat("rar")
	assert.True(t, errors.Is(err, errs.ErrValidation))
	assert.Equal(t, "logsWebpal.zip", ArchiveName(api.ExportZip))
}
