package isolate

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf sandbox.LimitedBuffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

type service struct {
	cmd          *exec.Cmd
	cancel       context.CancelFunc
	metaFilePath string

	stdout *syncBuffer
	stderr *syncBuffer
	done   chan struct{}

	stopOnce sync.Once
	result   *internal.RunData
	stopErr  error
}

// Start runs command with the network shared so the runner can reach it.
func (box *Box) Start(ctx context.Context, command string, env []string, c sandbox.Constraints) (sandbox.Service, error) {
	box.mu.Lock()
	defer box.mu.Unlock()
	if box.closed {
		return nil, errs.Sandbox("start service", sandbox.ErrBoxClosed)
	}

	metaFilePath, err := newTempIsolateFilePath()
	if err != nil {
		return nil, errs.Sandbox("create meta file", err)
	}

	c.WallTimeLimInSec = 0
	args := box.args(metaFilePath, c, env, true)
	args = append(args, "--run", "--", "/bin/sh", "-c", command)

	svcCtx, cancel := context.WithCancel(ctx)
	s := &service{
		cancel:       cancel,
		metaFilePath: metaFilePath,
		stdout:       &syncBuffer{buf: sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}},
		stderr:       &syncBuffer{buf: sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}},
		done:         make(chan struct{}),
	}
	s.cmd = exec.CommandContext(svcCtx, "isolate", args...)
	s.cmd.Stdout = s.stdout
	s.cmd.Stderr = s.stderr
	// isolate kills the sandboxed program when it receives SIGTERM itself
	s.cmd.Cancel = func() error { return s.cmd.Process.Signal(syscall.SIGTERM) }
	s.cmd.WaitDelay = time.Second

	if err := s.cmd.Start(); err != nil {
		cancel()
		os.Remove(metaFilePath)
		return nil, errs.Sandbox("start isolate", err)
	}
	go func() {
		_ = s.cmd.Wait()
		close(s.done)
	}()

	box.services = append(box.services, s)
	return s, nil
}

func (s *service) Done() <-chan struct{} { return s.done }

func (s *service) Stderr() []byte { return s.stderr.Bytes() }

func (s *service) Stop() (*internal.RunData, error) {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
		defer os.Remove(s.metaFilePath)

		rd, err := readMeta(s.metaFilePath)
		if err != nil {
			s.stopErr = err
			return
		}
		rd.Stdout = s.stdout.Bytes()
		rd.Stderr = s.stderr.Bytes()
		s.result = rd
	})
	return s.result, s.stopErr
}
