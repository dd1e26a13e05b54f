package hasher

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, size int, fill byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.bin")
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = fill
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestQuickFingerprintEmptyFile(t *testing.T) {
	path := writeFile(t, 0, 0)
	got, err := QuickFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "empty" {
		t.Errorf("got %q, want %q", got, "empty")
	}
}

func TestQuickFingerprintDeterministic(t *testing.T) {
	path := writeFile(t, 1000, 'a')
	a, err := QuickFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := QuickFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("fingerprint not deterministic: %q != %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex digits, got %d (%q)", len(a), a)
	}
}

func TestQuickFingerprintDiffersOnContentChange(t *testing.T) {
	a, err := QuickFingerprint(writeFile(t, 1000, 'a'))
	if err != nil {
		t.Fatal(err)
	}
	b, err := QuickFingerprint(writeFile(t, 1000, 'b'))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("expected different fingerprints for different content")
	}
}

func TestQuickFingerprintDiffersOnSize(t *testing.T) {
	a, err := QuickFingerprint(writeFile(t, 1000, 'a'))
	if err != nil {
		t.Fatal(err)
	}
	b, err := QuickFingerprint(writeFile(t, 1001, 'a'))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("expected different fingerprints for different sizes")
	}
}

func TestQuickFingerprintSmallFileUsesWholeFileAsHead(t *testing.T) {
	// A 1-byte file should not error reading a "tail" sample.
	path := writeFile(t, 1, 'z')
	got, err := QuickFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if got == "" || got == "empty" {
		t.Errorf("unexpected fingerprint %q", got)
	}
}

func TestQuickFingerprintLargerThanProbe(t *testing.T) {
	path := writeFile(t, probeSize*2+7, 'x')
	got, err := QuickFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 16 {
		t.Errorf("expected 16 hex digits, got %q", got)
	}
}

func TestVerificationHashMatchesIdenticalContent(t *testing.T) {
	a := writeFile(t, 20000, 'q')
	b := writeFile(t, 20000, 'q')

	ha, err := VerificationHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := VerificationHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("expected equal hashes for identical content, got %q != %q", ha, hb)
	}
	if len(ha) != 64 {
		t.Errorf("expected 64 hex chars (sha256), got %d", len(ha))
	}
}

func TestVerificationHashDiffersOnByteFlip(t *testing.T) {
	path := writeFile(t, 20000, 'q')
	original, err := VerificationHash(path)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[10000] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	flipped, err := VerificationHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if flipped == original {
		t.Errorf("expected hash to change after byte flip")
	}
}

func TestQuickFingerprintUnreadableFile(t *testing.T) {
	_, err := QuickFingerprint(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
