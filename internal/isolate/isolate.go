// Package isolate runs attempts inside isolate(1) sandboxes with cgroup limits.
package isolate

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

type Isolate struct {
	idsInUse []int
	mutex    sync.Mutex
	maxBoxes int
	logger   *slog.Logger
}

var _ sandbox.Factory = (*Isolate)(nil)

// New manages box ids 0..maxBoxes-1. isolate's default config allows 1000.
func New(maxBoxes int, logger *slog.Logger) *Isolate {
	if maxBoxes <= 0 {
		maxBoxes = 1000
	}
	return &Isolate{
		maxBoxes: maxBoxes,
		logger:   logger.With(slog.String("component", "isolate")),
	}
}

func (i *Isolate) Name() string { return "isolate" }

func (i *Isolate) NewBox(ctx context.Context) (sandbox.Box, error) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	id := 0
	for i.isIdInUse(id) {
		id++
	}
	if id >= i.maxBoxes {
		return nil, errs.Sandbox(fmt.Sprintf("all %d isolate boxes are in use", i.maxBoxes), nil)
	}

	if err := i.cleanupBox(ctx, id); err != nil {
		return nil, errs.Sandbox(fmt.Sprintf("cleanup box %d", id), err)
	}

	path, err := i.initBox(ctx, id)
	if err != nil {
		return nil, errs.Sandbox(fmt.Sprintf("init box %d", id), err)
	}

	i.idsInUse = append(i.idsInUse, id)
	i.logger.Debug("initialized box", slog.Int("box_id", id), slog.String("path", path))

	return newIsolateBox(i, id, path), nil
}

func (i *Isolate) isIdInUse(id int) bool {
	for _, usedId := range i.idsInUse {
		if usedId == id {
			return true
		}
	}
	return false
}

func (i *Isolate) eraseBox(id int) error {
	err := i.cleanupBox(context.Background(), id)

	i.mutex.Lock()
	defer i.mutex.Unlock()
	for k, usedId := range i.idsInUse {
		if usedId == id {
			i.idsInUse = append(i.idsInUse[:k], i.idsInUse[k+1:]...)
			break
		}
	}
	return err
}

func (i *Isolate) cleanupBox(ctx context.Context, boxId int) error {
	cmd := exec.CommandContext(ctx, "isolate", "--cg", "--cleanup", fmt.Sprintf("--box-id=%d", boxId))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// initBox initializes a new box with the given id and returns the path to the box
func (i *Isolate) initBox(ctx context.Context, boxId int) (string, error) {
	cmd := exec.CommandContext(ctx, "isolate", "--cg", "--init", fmt.Sprintf("--box-id=%d", boxId))
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}
