package copyengine

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// availableMemory returns the kernel's estimate of free-for-allocation
// memory in bytes, read from /proc/meminfo's MemAvailable line. There is no
// library in the dependency set for this (no pack repo queries host memory),
// so it is read directly; callers fall back to BufferBaseBytes on error.
func availableMemory() (uint64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("copyengine: malformed MemAvailable line %q", line)
		}
		kib, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kib * 1024, nil
	}
	return 0, fmt.Errorf("copyengine: MemAvailable not found in /proc/meminfo")
}

// chunkSizeFor computes the adaptive chunk size for a file of the given
// size: base chunk size scaled by available memory relative to an 8GiB
// reference, clamped to [BufferMinBytes, BufferMaxBytes], and additionally
// capped at size/4 for files under the small-file threshold.
func chunkSizeFor(cfg Config, fileSize int64) int64 {
	size := cfg.BufferBaseBytes
	if avail, err := availableMemory(); err == nil {
		const reference = 8 * gib
		size = int64(float64(cfg.BufferBaseBytes) * float64(avail) / float64(reference))
	}

	if fileSize <= cfg.SmallFileThreshold {
		if capped := fileSize / 4; capped > 0 && size > capped {
			size = capped
		}
	}

	if size < cfg.BufferMinBytes {
		size = cfg.BufferMinBytes
	}
	if size > cfg.BufferMaxBytes {
		size = cfg.BufferMaxBytes
	}
	return size
}
