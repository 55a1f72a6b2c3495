package procbox

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf sandbox.LimitedBuffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) Bytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.buf.Bytes()...)
}

type service struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	start  time.Time
	c      sandbox.Constraints

	stdout *lockedBuffer
	stderr *lockedBuffer

	done    chan struct{}
	waitErr error
	wall    time.Duration

	stopOnce sync.Once
	result   *internal.RunData
	stopErr  error
}

func (b *Box) Start(ctx context.Context, command string, env []string, c sandbox.Constraints) (sandbox.Service, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errs.Sandbox("start service", sandbox.ErrBoxClosed)
	}

	svcCtx, cancel := context.WithCancel(ctx)
	// services live for the whole test phase; only cpu and memory limits apply
	c.WallTimeLimInSec = 0

	s := &service{
		cancel: cancel,
		c:      c,
		stdout: &lockedBuffer{buf: sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}},
		stderr: &lockedBuffer{buf: sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}},
		done:   make(chan struct{}),
	}
	s.cmd = b.command(svcCtx, command, env, c)
	s.cmd.Stdout = s.stdout
	s.cmd.Stderr = s.stderr

	s.start = time.Now()
	if err := s.cmd.Start(); err != nil {
		cancel()
		return nil, errs.Sandbox("start service", err)
	}
	go func() {
		s.waitErr = s.cmd.Wait()
		s.wall = time.Since(s.start)
		close(s.done)
	}()

	b.services = append(b.services, s)
	b.logger.Debug("started service", slog.String("cmd", command), slog.Int("pid", s.cmd.Process.Pid))
	return s, nil
}

func (s *service) Done() <-chan struct{} { return s.done }

func (s *service) Stderr() []byte { return s.stderr.Bytes() }

func (s *service) Stop() (*internal.RunData, error) {
	s.stopOnce.Do(func() {
		_ = killGroup(s.cmd)
		s.cancel()
		<-s.done

		if s.cmd.ProcessState == nil {
			s.stopErr = errs.Sandbox("wait for service", s.waitErr)
			return
		}
		rd := collect(s.cmd, s.wall, s.c)
		rd.Stdout = s.stdout.Bytes()
		rd.Stderr = s.stderr.Bytes()
		s.result = rd
	})
	return s.result, s.stopErr
}
