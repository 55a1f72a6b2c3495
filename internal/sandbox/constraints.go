package sandbox

import (
	"time"

	"github.com/programme-lv/exerciser/api"
)

type Constraints struct {
	CpuTimeLimInSec  float64
	WallTimeLimInSec float64
	MemoryLimitInKB  int64
	MaxProcesses     int
	MaxOpenFiles     int
	MaxFileSizeInKB  int64
}

func DefaultConstraints() Constraints {
	return Constraints{
		CpuTimeLimInSec:  5.0,
		WallTimeLimInSec: 5.0,
		MemoryLimitInKB:  512 * 1024,
		MaxProcesses:     128,
		MaxOpenFiles:     128,
		MaxFileSizeInKB:  64 * 1024,
	}
}

// CompileConstraints are looser: compilers are trusted more than the programs they build.
func CompileConstraints() Constraints {
	c := DefaultConstraints()
	c.CpuTimeLimInSec = 30.0
	c.WallTimeLimInSec = 30.0
	c.MemoryLimitInKB = 2 * 1024 * 1024
	return c
}

// WithLimits applies an exercise's limits on top of c. Zero fields keep c's values.
func (c Constraints) WithLimits(l api.Limits) Constraints {
	if l.CpuMs > 0 {
		c.CpuTimeLimInSec = float64(l.CpuMs) / 1000.0
	}
	if l.WallMs > 0 {
		c.WallTimeLimInSec = float64(l.WallMs) / 1000.0
	}
	if l.MemKiB > 0 {
		c.MemoryLimitInKB = l.MemKiB
	}
	return c
}

// WithWall overrides the wall clock limit, used for the per test timeout.
func (c Constraints) WithWall(d time.Duration) Constraints {
	if d > 0 {
		c.WallTimeLimInSec = d.Seconds()
	}
	return c
}

func (c Constraints) Wall() time.Duration {
	return time.Duration(c.WallTimeLimInSec * float64(time.Second))
}
