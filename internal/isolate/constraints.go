package isolate

import (
	"fmt"

	"github.com/programme-lv/exerciser/internal/sandbox"
)

const extraCpuTimeInSec = 0.5

func toArgs(c sandbox.Constraints) []string {
	args := []string{
		memLimArg(c),
		cpuTimeLimArg(c),
		fmt.Sprintf("--extra-time=%f", extraCpuTimeInSec),
		maxProcessesArg(c),
		maxOpenFilesArg(c),
	}
	if c.WallTimeLimInSec > 0 {
		args = append(args, fmt.Sprintf("--wall-time=%f", c.WallTimeLimInSec))
	}
	if c.MaxFileSizeInKB > 0 {
		args = append(args, fmt.Sprintf("--fsize=%d", c.MaxFileSizeInKB))
	}
	return args
}

func memLimArg(c sandbox.Constraints) string {
	return fmt.Sprintf("--cg-mem=%d", c.MemoryLimitInKB)
}

func cpuTimeLimArg(c sandbox.Constraints) string {
	return fmt.Sprintf("--time=%f", c.CpuTimeLimInSec)
}

func maxProcessesArg(c sandbox.Constraints) string {
	return fmt.Sprintf("--processes=%d", c.MaxProcesses)
}

func maxOpenFilesArg(c sandbox.Constraints) string {
	return fmt.Sprintf("--open-files=%d", c.MaxOpenFiles)
}
