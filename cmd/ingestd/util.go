package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/ingestd/internal/types"
)

// parseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func parseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// parseVerifyMode maps a --verify flag value to a VerifyMode.
func parseVerifyMode(s string) (types.VerifyMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return types.VerifyNone, nil
	case "quick", "quick-hash":
		return types.VerifyQuickHash, nil
	case "sha256":
		return types.VerifySha256, nil
	default:
		return 0, fmt.Errorf("unknown verify mode %q, want none, quick-hash, or sha256", s)
	}
}
