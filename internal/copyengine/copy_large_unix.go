//go:build unix

package copyengine

import (
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ivoronin/ingestd/internal/types"
)

// copyLarge memory-maps the source file read-only and writes it to dst in
// chunk-sized slices of the mapping, avoiding a double buffer copy for
// large sequential transfers.
func copyLarge(src *os.File, dst *os.File, size int64, chunk int64, cancelled *atomic.Bool, onProgress func(transferred int64)) error {
	if size == 0 {
		return nil
	}

	data, err := unix.Mmap(int(src.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return types.NewIoError(types.IoSiteMmap, err)
	}
	defer func() { _ = unix.Munmap(data) }()

	var transferred int64
	for transferred < size {
		if cancelled.Load() {
			return errCancelled
		}
		end := transferred + chunk
		if end > size {
			end = size
		}
		if _, err := dst.Write(data[transferred:end]); err != nil {
			return types.NewIoError(types.IoSiteWrite, err)
		}
		transferred = end
		onProgress(transferred)
	}
	return nil
}
