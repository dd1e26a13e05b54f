package main

import (
	"fmt"
	"strings"
)

// RoutingTable maps a file extension to a destination directory. It is a
// pure CLI concern: VolumeMonitor and the CopyEngine never import it, they
// only ever see the resolved TargetPath once this package has decided one.
type RoutingTable interface {
	Destination(ext string) (dir string, ok bool)
}

type mapRoutingTable map[string]string

func (m mapRoutingTable) Destination(ext string) (string, bool) {
	dir, ok := m[normalizeExt(ext)]
	return dir, ok
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// parseRoutes turns a list of "ext=dir" flags into a routing table.
func parseRoutes(routes []string) (mapRoutingTable, error) {
	table := make(mapRoutingTable, len(routes))
	for _, r := range routes {
		ext, dir, ok := strings.Cut(r, "=")
		if !ok || ext == "" || dir == "" {
			return nil, fmt.Errorf("invalid --route %q, want ext=dir", r)
		}
		table[normalizeExt(ext)] = dir
	}
	return table, nil
}
