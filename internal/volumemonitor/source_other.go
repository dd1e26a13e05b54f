//go:build !linux

package volumemonitor

import "github.com/ivoronin/ingestd/internal/types"

// noopSource reports no volumes on platforms without a /proc/mounts-style
// enumeration point wired up. A real build would add a source_darwin.go/
// source_windows.go backed by the platform's native APIs; out of scope for
// this core, which only needs the Source seam to exist.
type noopSource struct{}

// NewDefaultSource returns the platform's default volume Source.
func NewDefaultSource() Source { return noopSource{} }

func (noopSource) Enumerate() ([]VolumeInfo, error) { return nil, nil }

func (noopSource) Classify(identifier string) (types.VolumeKind, string, error) {
	return types.VolumeUnknown, identifier, nil
}
