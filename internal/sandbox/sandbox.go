// Package sandbox defines the boxes attempts run in. Backends live in
// internal/procbox and internal/isolate.
package sandbox

import (
	"context"
	"errors"
	"io"

	"github.com/programme-lv/exerciser/internal"
)

// MaxOutputBytes caps what is kept of a process's stdout and stderr.
const MaxOutputBytes = 1 << 20

var ErrBoxClosed = errors.New("box is closed")

// Factory creates boxes. Every box has its own working directory.
type Factory interface {
	NewBox(ctx context.Context) (Box, error)
	Name() string
}

// Box is a working directory plus the means to run commands inside it.
// A non-nil error from Run or Start is an infrastructure failure; the
// process misbehaving is reported through RunData.
type Box interface {
	AddFile(path string, content []byte) error
	HasFile(path string) bool
	Path() string

	// Run blocks until the command exits, the constraints are exceeded or ctx is done.
	Run(ctx context.Context, command string, stdin []byte, c Constraints) (*internal.RunData, error)
	// Start launches a long running command, e.g. an HTTP service under test.
	Start(ctx context.Context, command string, env []string, c Constraints) (Service, error)

	// Close kills whatever still runs in the box and removes its directory.
	Close() error
}

// Service is a process started with Box.Start.
type Service interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Stop kills the process group and waits for it. Safe to call more than once.
	Stop() (*internal.RunData, error)
	// Stderr returns what the service has written to stderr so far.
	Stderr() []byte
}

// LimitedBuffer keeps the first Max bytes written to it and silently drops the rest.
type LimitedBuffer struct {
	Max       int
	buf       []byte
	truncated bool
}

var _ io.Writer = (*LimitedBuffer)(nil)

func (b *LimitedBuffer) Write(p []byte) (int, error) {
	room := b.Max - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *LimitedBuffer) Bytes() []byte { return b.buf }

func (b *LimitedBuffer) Truncated() bool { return b.truncated }
