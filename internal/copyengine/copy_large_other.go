//go:build !unix

package copyengine

import (
	"os"
	"sync/atomic"
)

// copyLarge falls back to the chunked streaming path on platforms without
// the unix mmap syscalls; correctness is identical, only the read path
// differs.
func copyLarge(src *os.File, dst *os.File, size int64, chunk int64, cancelled *atomic.Bool, onProgress func(transferred int64)) error {
	return copyChunked(src, dst, chunk, cancelled, onProgress)
}
