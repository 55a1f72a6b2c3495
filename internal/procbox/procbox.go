// Package procbox runs attempts as plain processes in a temporary directory.
// Each command gets its own process group so a timeout can take down
// everything it spawned. Limits are applied with ulimit.
package procbox

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

type Factory struct {
	root   string
	logger *slog.Logger
}

// NewFactory creates boxes under root, or under the system temp dir if root is empty.
func NewFactory(root string, logger *slog.Logger) *Factory {
	return &Factory{
		root:   root,
		logger: logger.With(slog.String("component", "procbox")),
	}
}

func (f *Factory) Name() string { return "process" }

func (f *Factory) NewBox(ctx context.Context) (sandbox.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Sandbox("create box", err)
	}
	if f.root != "" {
		if err := os.MkdirAll(f.root, 0o755); err != nil {
			return nil, errs.Sandbox("create box root", err)
		}
	}
	dir, err := os.MkdirTemp(f.root, "box-*")
	if err != nil {
		return nil, errs.Sandbox("create box dir", err)
	}
	f.logger.Debug("created box", slog.String("path", dir))
	return &Box{dir: dir, logger: f.logger}, nil
}

type Box struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	services []*service
	closed   bool
}

var _ sandbox.Box = (*Box)(nil)

func (b *Box) Path() string { return b.dir }

func (b *Box) AddFile(path string, content []byte) error {
	clean, err := sandbox.CleanAttemptPath(path)
	if err != nil {
		return err
	}
	full := filepath.Join(b.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.Sandbox("create parent dir", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errs.Sandbox("write file", err)
	}
	return nil
}

func (b *Box) HasFile(path string) bool {
	clean, err := sandbox.CleanAttemptPath(path)
	if err != nil {
		return false
	}
	st, err := os.Stat(filepath.Join(b.dir, filepath.FromSlash(clean)))
	return err == nil && st.Mode().IsRegular()
}

func (b *Box) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	services := b.services
	b.services = nil
	b.mu.Unlock()

	for _, s := range services {
		_, _ = s.Stop()
	}
	if err := os.RemoveAll(b.dir); err != nil {
		return errs.Sandbox("remove box dir", err)
	}
	b.logger.Debug("removed box", slog.String("path", b.dir))
	return nil
}

// limitsPrefix turns constraints into shell ulimit calls.
//
// The address space limit is kept well above the memory limit since
// runtimes like node and go reserve far more virtual memory than they use.
// The real memory limit is checked against max rss after the run.
func limitsPrefix(c sandbox.Constraints) string {
	prefix := ""
	if c.CpuTimeLimInSec > 0 {
		// +1 so that the wall clock limit usually fires first and reports a clean timeout
		prefix += fmt.Sprintf("ulimit -t %d 2>/dev/null; ", int64(math.Ceil(c.CpuTimeLimInSec))+1)
	}
	if c.MaxFileSizeInKB > 0 {
		// ulimit -f counts 512 byte blocks in POSIX sh
		prefix += fmt.Sprintf("ulimit -f %d 2>/dev/null; ", c.MaxFileSizeInKB*2)
	}
	if c.MaxOpenFiles > 0 {
		prefix += fmt.Sprintf("ulimit -n %d 2>/dev/null; ", c.MaxOpenFiles)
	}
	if c.MemoryLimitInKB > 0 {
		as := c.MemoryLimitInKB * 4
		if as < 4*1024*1024 {
			as = 4 * 1024 * 1024
		}
		prefix += fmt.Sprintf("ulimit -v %d 2>/dev/null; ", as)
	}
	return prefix
}

func (b *Box) env(extra []string) []string {
	env := []string{
		"HOME=" + b.dir,
		"TMPDIR=" + b.dir,
		"PATH=" + os.Getenv("PATH"),
		"LANG=C.UTF-8",
	}
	return append(env, extra...)
}
