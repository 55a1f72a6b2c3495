package sandbox

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/programme-lv/exerciser/internal/errs"
)

// PortAllocator hands out TCP ports to runs. A port stays taken until
// Release is called, even if the process that bound it is long gone.
type PortAllocator struct {
	min, max int

	mu   sync.Mutex
	held map[int]chan struct{}
	next int

	// probe reports whether the OS lets us bind port right now
	probe func(port int) error
}

func NewPortAllocator(min, max int) *PortAllocator {
	return &PortAllocator{
		min:   min,
		max:   max,
		held:  make(map[int]chan struct{}),
		next:  min,
		probe: probeTCP,
	}
}

// ParsePortRange parses "20000-20999".
func ParsePortRange(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, 0, fmt.Errorf("port range %q is not of the form min-max", s)
	}
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("port range %q: %w", s, err)
	}
	max, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("port range %q: %w", s, err)
	}
	if min < 1 || max > 65535 || min > max {
		return 0, 0, fmt.Errorf("port range %q is out of bounds", s)
	}
	return min, max, nil
}

// Acquire reserves a port. A non-zero hint asks for that exact port and waits
// while another run holds it. A hint that some foreign process has bound is a
// sandbox error.
func (a *PortAllocator) Acquire(ctx context.Context, hint int) (int, error) {
	if hint < 0 || hint > 65535 {
		return 0, errs.Validation("port %d is out of range", hint)
	}
	if hint == 0 {
		return a.acquireAny()
	}

	for {
		a.mu.Lock()
		released, taken := a.held[hint]
		if !taken {
			if err := a.probe(hint); err != nil {
				a.mu.Unlock()
				return 0, errs.Sandbox(fmt.Sprintf("port %d is unavailable", hint), err)
			}
			a.held[hint] = make(chan struct{})
			a.mu.Unlock()
			return hint, nil
		}
		a.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return 0, errs.Sandbox(fmt.Sprintf("waiting for port %d", hint), ctx.Err())
		}
	}
}

func (a *PortAllocator) acquireAny() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.max - a.min + 1
	for i := 0; i < size; i++ {
		port := a.min + (a.next-a.min+i)%size
		if _, taken := a.held[port]; taken {
			continue
		}
		if a.probe(port) != nil {
			continue
		}
		a.held[port] = make(chan struct{})
		a.next = port + 1
		if a.next > a.max {
			a.next = a.min
		}
		return port, nil
	}
	return 0, errs.Sandbox(fmt.Sprintf("no free port in %d-%d", a.min, a.max), nil)
}

// Release returns port to the pool and wakes runs waiting for it.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch, ok := a.held[port]; ok {
		delete(a.held, port)
		close(ch)
	}
}

// InUse is the number of ports currently handed out.
func (a *PortAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.held)
}

func probeTCP(port int) error {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return l.Close()
}
