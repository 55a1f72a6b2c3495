package isolate

import (
	"testing"

	"github.com/programme-lv/exerciser/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetaFile(t *testing.T) {
	content := `time:0.012
time-wall:0.034
max-rss:3456
csw-voluntary:3
csw-forced:1
cg-mem:4096
exitcode:1
status:RE
message:Exited with error status 1
`
	m, err := parseMetaFile([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, 0.012, m.TimeSec)
	assert.Equal(t, int64(3456), m.MaxRssKb)
	assert.Equal(t, int64(1), m.ExitCode)
	assert.Equal(t, "RE", m.Status)

	rd := m.runData()
	assert.Equal(t, int64(12), rd.CpuMs)
	assert.Equal(t, int64(34), rd.WallMs)
	assert.Equal(t, int64(4096), rd.MemKiB)
	assert.False(t, rd.TimedOut)
	assert.True(t, rd.Crashed())
	require.NotNil(t, rd.IsolateMsg)
	assert.Equal(t, "Exited with error status 1", *rd.IsolateMsg)
}

func TestParseMetaFileTimeoutAndSignal(t *testing.T) {
	m, err := parseMetaFile([]byte("status:TO\nexitsig:9\nkilled:1\ncg-oom-killed:1\n"))
	require.NoError(t, err)
	rd := m.runData()
	assert.True(t, rd.TimedOut)
	assert.True(t, rd.OomKilled)
	require.NotNil(t, rd.ExitSignal)
	assert.Equal(t, int64(9), *rd.ExitSignal)
	assert.False(t, rd.Crashed())
}

func TestParseMetaFileRejectsGarbage(t *testing.T) {
	_, err := parseMetaFile([]byte("time:abc\n"))
	assert.Error(t, err)
	_, err = parseMetaFile([]byte("no separator\n"))
	assert.Error(t, err)
}

func TestConstraintArgs(t *testing.T) {
	c := sandbox.DefaultConstraints()
	args := toArgs(c)
	assert.Contains(t, args, "--cg-mem=524288")
	assert.Contains(t, args, "--time=5.000000")
	assert.Contains(t, args, "--wall-time=5.000000")
	assert.Contains(t, args, "--processes=128")

	c.WallTimeLimInSec = 0
	for _, a := range toArgs(c) {
		assert.NotContains(t, a, "--wall-time")
	}
}
