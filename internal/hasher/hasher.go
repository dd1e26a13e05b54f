// Package hasher provides the two fingerprinting primitives used by the
// ingest pipeline: a fast 64-bit identity fingerprint for duplicate/rename
// detection, and a full cryptographic hash for post-copy verification.
//
// Neither operation holds any I/O state between calls - both open, read,
// and close the file within a single call.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/ivoronin/ingestd/internal/types"
)

// probeSize is the number of bytes sampled from the head and tail of a file
// for QuickFingerprint. QuickHashRange uses its own 8KiB window.
const probeSize = 65536

// blockSize is the streaming read buffer for VerificationHash.
const blockSize = 8192

// emptyFingerprint is the literal value returned for a zero-byte file.
const emptyFingerprint = "empty"

// QuickFingerprint returns a 16-hex-digit 64-bit identity fingerprint over
// (file size, first N bytes, last N bytes) with N = 65536. An empty file
// returns the literal "empty". Files no larger than N use the whole file as
// the head sample and an empty tail sample.
//
// The fingerprint is deterministic and cheap: it is meant for fast
// duplicate pre-filtering, not as an integrity guarantee.
func QuickFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", types.NewIoError(types.IoSiteRead, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", types.NewIoError(types.IoSiteStat, err)
	}
	size := info.Size()
	if size == 0 {
		return emptyFingerprint, nil
	}

	head := make([]byte, min64(probeSize, size))
	if _, err := io.ReadFull(f, head); err != nil {
		return "", types.NewIoError(types.IoSiteRead, err)
	}

	var tail []byte
	if size > probeSize {
		tail = make([]byte, probeSize)
		if _, err := f.Seek(-probeSize, io.SeekEnd); err != nil {
			return "", types.NewIoError(types.IoSiteRead, err)
		}
		if _, err := io.ReadFull(f, tail); err != nil {
			return "", types.NewIoError(types.IoSiteRead, err)
		}
	}

	h := xxhash.New()
	_ = writeInt64(h, size)
	_, _ = h.Write(head)
	_, _ = h.Write(tail)

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// VerificationHash returns the full SHA-256 hex digest of a file, streamed
// in 8KiB windows. It takes no algorithm parameter; the digest is always
// SHA-256.
func VerificationHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", types.NewIoError(types.IoSiteRead, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", types.NewIoError(types.IoSiteRead, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// QuickHashRange hashes the first 8KiB and last 8KiB of a file of the given
// size, used by the CopyEngine's VerifyQuickHash mode to cheaply compare
// source and target without a full re-read.
func QuickHashRange(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", types.NewIoError(types.IoSiteRead, err)
	}
	defer func() { _ = f.Close() }()

	const half = 8192
	head := make([]byte, min64(half, size))
	if _, err := io.ReadFull(f, head); err != nil {
		return "", types.NewIoError(types.IoSiteRead, err)
	}

	var tail []byte
	if size > half {
		tail = make([]byte, half)
		if _, err := f.Seek(-half, io.SeekEnd); err != nil {
			return "", types.NewIoError(types.IoSiteRead, err)
		}
		if _, err := io.ReadFull(f, tail); err != nil {
			return "", types.NewIoError(types.IoSiteRead, err)
		}
	}

	h := sha256.New()
	h.Write(head)
	h.Write(tail)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeInt64(w io.Writer, v int64) error {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	_, err := w.Write(buf[:])
	return err
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
