package volumemonitor

import "github.com/ivoronin/ingestd/internal/types"

// VolumeInfo is the cheap, per-tick description of a currently mounted
// volume: just enough to diff against the previous enumeration and report
// live capacity. Classification (kind, human label) is considered the
// expensive half of the query and is fetched separately, through Classify,
// so the Monitor's cache can amortise it.
type VolumeInfo struct {
	Identifier string
	TotalBytes uint64
	FreeBytes  uint64
}

// Source abstracts platform volume enumeration so the polling algorithm can
// be tested without touching real mounts, and so a given OS's enumeration
// strategy can be swapped in independently of the Monitor's diffing logic.
type Source interface {
	// Enumerate lists every currently mounted volume's cheap info.
	Enumerate() ([]VolumeInfo, error)
	// Classify performs the expensive kind/label lookup for one volume.
	Classify(identifier string) (kind types.VolumeKind, label string, err error)
}
