package copyengine

import (
	"os"
	"path/filepath"

	"github.com/ivoronin/ingestd/internal/types"
)

const tmpSuffix = ".tmp"

// tmpPathFor returns the in-progress path a transfer writes to before the
// final atomic rename. A stale .tmp left behind by a prior crashed run at
// the same target path is simply overwritten by os.Create.
func tmpPathFor(target string) string {
	return target + tmpSuffix
}

// prepareTarget creates the target's parent directory tree if missing. The
// raw error is returned (not wrapped) so the caller can classify
// permission failures distinctly from other I/O failures.
func prepareTarget(target string) error {
	return os.MkdirAll(filepath.Dir(target), 0o755)
}

// finalize renames tmpPath to target. If target already exists, it is
// removed and the rename retried once; os.Rename itself already replaces
// an existing regular file on POSIX, but the explicit remove-and-retry
// keeps behavior consistent if the target is a directory or otherwise
// unrenameable-over.
func finalize(tmpPath, target string) error {
	err := os.Rename(tmpPath, target)
	if err == nil {
		return nil
	}
	if _, statErr := os.Lstat(target); statErr == nil {
		if rmErr := os.RemoveAll(target); rmErr == nil {
			if err2 := os.Rename(tmpPath, target); err2 == nil {
				return nil
			}
		}
	}
	return types.NewIoError(types.IoSiteRename, err)
}

// cleanupTmp best-effort removes a leftover tmp file after a failed or
// cancelled transfer. Errors are ignored: there is nothing useful to do
// with a failed cleanup, and a future run will overwrite the same path.
func cleanupTmp(tmpPath string) {
	_ = os.Remove(tmpPath)
}
