package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "ingestd",
		Short:   "Watch volumes and copy new media files to a destination",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newWatchCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
