package procbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

const waitDelay = 500 * time.Millisecond

func (b *Box) command(ctx context.Context, command string, env []string, c sandbox.Constraints) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", limitsPrefix(c)+"exec "+command)
	cmd.Dir = b.dir
	cmd.Env = b.env(env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (b *Box) Run(ctx context.Context, command string, stdin []byte, c sandbox.Constraints) (*internal.RunData, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, errs.Sandbox("run", sandbox.ErrBoxClosed)
	}

	wall := c.Wall()
	if wall <= 0 {
		wall = sandbox.DefaultConstraints().Wall()
	}
	runCtx, cancel := context.WithTimeout(ctx, wall)
	defer cancel()

	stdout := &sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}
	stderr := &sandbox.LimitedBuffer{Max: sandbox.MaxOutputBytes}

	cmd := b.command(runCtx, command, nil, c)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errs.Sandbox("start process", err)
	}
	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	// background children of a process that exited on its own
	_ = killGroup(cmd)

	if ctx.Err() != nil {
		return nil, errs.Sandbox("run cancelled", ctx.Err())
	}
	if waitErr != nil && cmd.ProcessState == nil {
		return nil, errs.Sandbox("wait for process", waitErr)
	}

	rd := collect(cmd, elapsed, c)
	rd.Stdin = stdin
	rd.Stdout = stdout.Bytes()
	rd.Stderr = stderr.Bytes()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		rd.TimedOut = true
	}

	b.logger.Debug("process finished",
		slog.String("cmd", command),
		slog.Int64("exit", rd.ExitCode),
		slog.Int64("wall_ms", rd.WallMs),
		slog.Bool("timed_out", rd.TimedOut))
	return rd, nil
}

// collect reads exit status and resource usage off a waited command.
func collect(cmd *exec.Cmd, wall time.Duration, c sandbox.Constraints) *internal.RunData {
	st := cmd.ProcessState
	rd := &internal.RunData{
		ExitCode: int64(st.ExitCode()),
		WallMs:   wall.Milliseconds(),
		CpuMs:    (st.UserTime() + st.SystemTime()).Milliseconds(),
	}
	if ru, ok := st.SysUsage().(*syscall.Rusage); ok && ru != nil {
		// linux reports ru_maxrss in KiB
		rd.MemKiB = ru.Maxrss
	}
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := int64(ws.Signal())
		rd.ExitSignal = &sig
		if ws.Signal() == syscall.SIGXCPU {
			rd.TimedOut = true
		}
	}
	if c.CpuTimeLimInSec > 0 && float64(rd.CpuMs) > c.CpuTimeLimInSec*1000 {
		rd.TimedOut = true
	}
	if c.MemoryLimitInKB > 0 && rd.MemKiB > c.MemoryLimitInKB {
		rd.OomKilled = true
	}
	return rd
}
