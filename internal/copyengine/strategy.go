package copyengine

import (
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/ivoronin/ingestd/internal/types"
)

// errCancelled is returned internally by the copy loops when the
// cooperative cancel flag is observed set; the caller translates it into a
// FailureCancelled outcome.
var errCancelled = errors.New("copyengine: cancelled")

// strategyFor selects the copy code path based on source file size.
func strategyFor(cfg Config, size int64) types.Strategy {
	switch {
	case size <= cfg.SmallFileThreshold:
		return types.StrategySmall
	case size <= cfg.MediumFileThreshold:
		return types.StrategyMedium
	default:
		return types.StrategyLarge
	}
}

// copySmall does a single read and single write, suitable for files small
// enough that chunking only adds overhead.
func copySmall(src *os.File, dst *os.File, size int64, cancelled *atomic.Bool) error {
	if cancelled.Load() {
		return errCancelled
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(src, buf); err != nil {
			return types.NewIoError(types.IoSiteRead, err)
		}
	}
	if _, err := dst.Write(buf); err != nil {
		return types.NewIoError(types.IoSiteWrite, err)
	}
	return nil
}

// copyChunked streams src to dst in chunk-sized reads, invoking onProgress
// after each successful write and checking the cancel flag at every chunk
// boundary.
func copyChunked(src *os.File, dst *os.File, chunk int64, cancelled *atomic.Bool, onProgress func(transferred int64)) error {
	buf := make([]byte, chunk)
	var transferred int64
	for {
		if cancelled.Load() {
			return errCancelled
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return types.NewIoError(types.IoSiteWrite, werr)
			}
			transferred += int64(n)
			onProgress(transferred)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return types.NewIoError(types.IoSiteRead, rerr)
		}
	}
}
