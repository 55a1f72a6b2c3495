package isolate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

const boxPathEnv = "PATH=/usr/local/bin:/usr/bin:/bin"

type Box struct {
	id      int
	path    string
	isolate *Isolate

	mu       sync.Mutex
	services []*service
	closed   bool
}

var _ sandbox.Box = (*Box)(nil)

func newIsolateBox(isolate *Isolate, id int, path string) *Box {
	return &Box{
		id:      id,
		path:    path,
		isolate: isolate,
	}
}

func (box *Box) Id() int {
	return box.id
}

func (box *Box) Path() string {
	return box.path
}

func (box *Box) Close() error {
	box.mu.Lock()
	if box.closed {
		box.mu.Unlock()
		return nil
	}
	box.closed = true
	services := box.services
	box.services = nil
	box.mu.Unlock()

	for _, s := range services {
		_, _ = s.Stop()
	}
	return box.isolate.eraseBox(box.id)
}

func (box *Box) AddFile(path string, content []byte) error {
	clean, err := sandbox.CleanAttemptPath(path)
	if err != nil {
		return err
	}
	full := filepath.Join(box.path, "box", filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.Sandbox("create parent dir", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errs.Sandbox("write file", err)
	}
	return nil
}

func (box *Box) HasFile(path string) bool {
	clean, err := sandbox.CleanAttemptPath(path)
	if err != nil {
		return false
	}
	st, err := os.Stat(filepath.Join(box.path, "box", filepath.FromSlash(clean)))
	return err == nil && st.Mode().IsRegular()
}

func (box *Box) args(metaFilePath string, c sandbox.Constraints, env []string, shareNet bool) []string {
	args := []string{
		"--cg",
		fmt.Sprintf("--box-id=%d", box.id),
		"--env=HOME=/box",
		"--env=" + boxPathEnv,
		"--meta=" + metaFilePath,
	}
	for _, e := range env {
		args = append(args, "--env="+e)
	}
	if shareNet {
		args = append(args, "--share-net")
	}
	args = append(args, toArgs(c)...)
	return args
}

func (box *Box) Run(ctx context.Context, command string, stdin []byte, c sandbox.Constraints) (*internal.RunData, error) {
	box.mu.Lock()
	closed := box.closed
	box.mu.Unlock()
	if closed {
		return nil, errs.Sandbox("run", sandbox.ErrBoxClosed)
	}

	metaFilePath, err := newTempIsolateFilePath()
	if err != nil {
		return nil, errs.Sandbox("create meta file", err)
	}
	defer os.Remove(metaFilePath)

	args := box.args(metaFilePath, c, nil, false)
	args = append(args, "--run", "--", "/bin/sh", "-c", command)

	stdout := &sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}
	stderr := &sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}
	cmd := exec.CommandContext(ctx, "isolate", args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	if ctx.Err() != nil {
		return nil, errs.Sandbox("run cancelled", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errs.Sandbox("run isolate", err)
		}
	}

	rd, err := readMeta(metaFilePath)
	if err != nil {
		return nil, err
	}
	rd.Stdin = stdin
	rd.Stdout = stdout.Bytes()
	rd.Stderr = stderr.Bytes()

	box.isolate.logger.Debug("process finished",
		slog.Int("box_id", box.id),
		slog.String("cmd", command),
		slog.Int64("exit", rd.ExitCode),
		slog.Bool("timed_out", rd.TimedOut))
	return rd, nil
}

func readMeta(metaFilePath string) (*internal.RunData, error) {
	content, err := os.ReadFile(metaFilePath)
	if err != nil {
		return nil, errs.Sandbox("read meta file", err)
	}
	metrics, err := parseMetaFile(content)
	if err != nil {
		return nil, errs.Sandbox("parse meta file", err)
	}
	if metrics.Status == "XX" {
		return nil, errs.Sandbox("isolate internal error: "+strings.TrimSpace(metrics.Message), nil)
	}
	return metrics.runData(), nil
}

func newTempIsolateFilePath() (string, error) {
	file, err := os.CreateTemp("", "isolate.*.txt")
	if err != nil {
		return "", err
	}
	err = file.Close()
	if err != nil {
		return "", err
	}
	return file.Name(), nil
}
