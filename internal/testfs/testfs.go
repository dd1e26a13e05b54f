// Package testfs provides fixture helpers for building and asserting on small
// file trees in tests, in the style of a temp-dir harness rather than a live
// filesystem mock.
package testfs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dustin/go-humanize"
)

// File describes one file to materialize under a Harness root.
type File struct {
	// Path is relative to the harness root; intermediate directories are
	// created automatically.
	Path string
	// Size in IEC units ("1KiB", "10MiB") or plain byte count ("4096").
	Size string
	// Pattern is the fill byte for content. Defaults to 'A' if zero.
	Pattern byte
}

// Harness materializes a small file tree under t.TempDir() and offers
// assertions against the resulting state.
type Harness struct {
	t    *testing.T
	root string
}

// New creates a Harness and writes the given files under a fresh temp dir.
func New(t *testing.T, files ...File) *Harness {
	t.Helper()

	h := &Harness{t: t, root: t.TempDir()}
	for _, f := range files {
		if err := h.writeFile(f); err != nil {
			t.Fatalf("testfs: write %s: %v", f.Path, err)
		}
	}
	return h
}

// Root returns the harness's temporary directory.
func (h *Harness) Root() string { return h.root }

// Path resolves a path relative to the harness root.
func (h *Harness) Path(rel string) string { return filepath.Join(h.root, rel) }

func (h *Harness) writeFile(f File) error {
	full := h.Path(f.Path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	size, err := humanize.ParseBytes(f.Size)
	if err != nil {
		return err
	}

	pattern := f.Pattern
	if pattern == 0 {
		pattern = 'A'
	}

	out, err := os.Create(full)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	const maxBuf = 1 << 20
	bufSize := int(size)
	if bufSize > maxBuf || bufSize == 0 {
		bufSize = maxBuf
	}
	buf := bytes.Repeat([]byte{pattern}, bufSize)

	remaining := int64(size)
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

// AssertExists fails the test unless path exists with the given size.
func (h *Harness) AssertExists(path string, size int64) {
	h.t.Helper()
	info, err := os.Stat(h.Path(path))
	if err != nil {
		h.t.Errorf("expected %s to exist: %v", path, err)
		return
	}
	if info.Size() != size {
		h.t.Errorf("%s: got size %d, want %d", path, info.Size(), size)
	}
}

// AssertAbsent fails the test if path exists.
func (h *Harness) AssertAbsent(path string) {
	h.t.Helper()
	if _, err := os.Stat(h.Path(path)); err == nil {
		h.t.Errorf("expected %s to not exist", path)
	} else if !os.IsNotExist(err) {
		h.t.Errorf("stat %s: %v", path, err)
	}
}
