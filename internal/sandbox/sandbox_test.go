package sandbox

import (
	"errors"
	"testing"
	"time"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedBuffer(t *testing.T) {
	b := &LimitedBuffer{Max: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde", string(b.Bytes()))
	assert.True(t, b.Truncated())
}

func TestCleanAttemptPath(t *testing.T) {
	ok := map[string]string{
		"main.js":         "main.js",
		"src/./util.js":   "src/util.js",
		"src\\lib\\a.txt": "src/lib/a.txt",
	}
	for in, want := range ok {
		got, err := CleanAttemptPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "/etc/passwd", "../x", "a/../../x", "a/..", ".", "a\x00b", "..\\x"} {
		_, err := CleanAttemptPath(bad)
		assert.True(t, errors.Is(err, errs.ErrValidation), bad)
	}
}

func TestConstraintsWithLimits(t *testing.T) {
	c := DefaultConstraints().WithLimits(api.Limits{CpuMs: 1500, MemKiB: 1024})
	assert.Equal(t, 1.5, c.CpuTimeLimInSec)
	assert.Equal(t, int64(1024), c.MemoryLimitInKB)
	assert.Equal(t, DefaultConstraints().WallTimeLimInSec, c.WallTimeLimInSec)
	assert.Equal(t, 2*time.Second, c.WithWall(2*time.Second).Wall())
}
