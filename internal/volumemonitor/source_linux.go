//go:build linux

package volumemonitor

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ivoronin/ingestd/internal/types"
)

// procMountsSource enumerates mounted volumes from /proc/mounts. It is the
// default Source on Linux; real removable-media detection in production
// would additionally consult /sys/block/*/removable, which is out of scope
// for this core (see the Source interface in source.go).
type procMountsSource struct{}

// NewDefaultSource returns the platform's default volume Source.
func NewDefaultSource() Source { return procMountsSource{} }

// skipFsTypes are pseudo-filesystems never worth surfacing as a volume.
var skipFsTypes = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true,
	"tmpfs": true, "cgroup": true, "cgroup2": true, "overlay": true,
	"mqueue": true, "securityfs": true, "debugfs": true, "tracefs": true,
	"pstore": true, "bpf": true, "autofs": true, "hugetlbfs": true,
	"configfs": true, "fusectl": true, "binfmt_misc": true,
}

func (procMountsSource) Enumerate() ([]VolumeInfo, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []VolumeInfo
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mountpoint, fstype := fields[1], fields[2]
		if skipFsTypes[fstype] {
			continue
		}

		var stat unix.Statfs_t
		if err := unix.Statfs(mountpoint, &stat); err != nil {
			continue
		}
		total := stat.Blocks * uint64(stat.Bsize)
		free := stat.Bavail * uint64(stat.Bsize)

		out = append(out, VolumeInfo{Identifier: mountpoint, TotalBytes: total, FreeBytes: free})
	}
	return out, scanner.Err()
}

func (procMountsSource) Classify(identifier string) (types.VolumeKind, string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return types.VolumeUnknown, "", err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[1] != identifier {
			continue
		}
		return classifyFsType(fields[2]), identifier, nil
	}
	return types.VolumeUnknown, identifier, nil
}

func classifyFsType(fstype string) types.VolumeKind {
	switch fstype {
	case "nfs", "nfs4", "cifs", "smbfs", "9p":
		return types.VolumeNetwork
	case "iso9660", "udf":
		return types.VolumeOptical
	case "vfat", "exfat", "ntfs", "ntfs3":
		return types.VolumeRemovable
	case "tmpfs", "ramfs":
		return types.VolumeRamDisk
	case "ext2", "ext3", "ext4", "xfs", "btrfs":
		return types.VolumeFixed
	default:
		return types.VolumeUnknown
	}
}
