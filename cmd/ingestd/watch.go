package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivoronin/ingestd/internal/coordinator"
	"github.com/ivoronin/ingestd/internal/copyengine"
	"github.com/ivoronin/ingestd/internal/types"
	"github.com/ivoronin/ingestd/internal/volumemonitor"
)

// watchOptions holds CLI flags for the watch command.
type watchOptions struct {
	routes        []string
	excludes      []string
	workers       int
	verifyStr     string
	maxSizeStr    string
	maxAgeSeconds int64
	pollInterval  time.Duration
	noProgress    bool
}

// newWatchCmd creates the watch subcommand.
func newWatchCmd() *cobra.Command {
	opts := &watchOptions{
		workers:      runtime.NumCPU(),
		verifyStr:    "none",
		pollInterval: volumemonitor.DefaultConfig().PollInterval,
	}

	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "Watch volumes and copy new files matching --route to their destination",
		Long: `Starts a volume monitor over the given roots and, for every new file whose
extension matches a --route, copies it to the routed destination directory.

Example:
  ingestd watch /media/card --route mp4=/library/video --route jpg=/library/photo

Runs until interrupted (Ctrl-C), then waits for in-flight transfers to drain.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runWatch(args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.routes, "route", "r", nil, "Extension to destination mapping, ext=dir (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Path prefixes to exclude from discovery")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel transfers")
	cmd.Flags().StringVar(&opts.verifyStr, "verify", opts.verifyStr, "Post-copy verification: none, quick-hash, or sha256")
	cmd.Flags().StringVar(&opts.maxSizeStr, "max-size", "", "Skip files larger than this (e.g. 2GiB)")
	cmd.Flags().Int64Var(&opts.maxAgeSeconds, "max-age", 0, "Skip files older than this many seconds (0 disables)")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", opts.pollInterval, "Volume and file poll interval")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress bars")

	return cmd
}

func runWatch(roots []string, opts *watchOptions) error {
	routes, err := parseRoutes(opts.routes)
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		return fmt.Errorf("at least one --route is required")
	}

	verifyMode, err := parseVerifyMode(opts.verifyStr)
	if err != nil {
		return fmt.Errorf("invalid --verify: %w", err)
	}

	var maxSize int64
	if opts.maxSizeStr != "" {
		maxSize, err = parseSize(opts.maxSizeStr)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
	}

	showProgress := !opts.noProgress

	engine := copyengine.New(copyengine.DefaultConfig())
	sink := newCliSink(showProgress)
	coord := coordinator.New(engine, sink.subscriber(), coordinator.Config{ParallelTransfers: opts.workers})
	defer coord.Close()

	mon := volumemonitor.New(nil, watchSubscriber(routes, coord, verifyMode), volumemonitor.Config{PollInterval: opts.pollInterval})
	for _, root := range roots {
		mon.AddWatch(root)
	}
	for _, ex := range opts.excludes {
		mon.AddExclude(ex)
	}
	for ext := range routes {
		mon.AddExtensionFilter(ext)
	}
	if maxSize > 0 {
		mon.SetSizeLimit(maxSize)
	}
	if opts.maxAgeSeconds > 0 {
		mon.SetAgeLimit(opts.maxAgeSeconds)
	}

	mon.Start()
	defer mon.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Fprintln(os.Stderr, "\nshutting down, waiting for in-flight transfers...")
	return nil
}

// watchSubscriber bridges VolumeMonitor events to the coordinator, routing
// every newly discovered file through the routing table and submitting a
// transfer for whatever matches.
func watchSubscriber(routes mapRoutingTable, coord *coordinator.Coordinator, verifyMode types.VerifyMode) volumemonitor.SubscriberFuncs {
	return volumemonitor.SubscriberFuncs{
		Volume: func(e types.VolumeEvent) {
			switch e.NewStatus {
			case types.VolumeReady:
				fmt.Fprintf(os.Stderr, "volume attached: %s\n", e.MountIdentifier)
			case types.VolumeUnavailable:
				fmt.Fprintf(os.Stderr, "volume detached: %s\n", e.MountIdentifier)
			case types.VolumeError:
				fmt.Fprintf(os.Stderr, "volume error: %s\n", e.ErrorMessage)
			}
		},
		File: func(fe types.FileEvent) {
			if fe.Kind != types.FileNew {
				return
			}
			dir, ok := routes.Destination(filepath.Ext(fe.Path))
			if !ok {
				return
			}
			coord.StartTransfer(types.TransferRequest{
				SourcePath: fe.Path,
				TargetPath: filepath.Join(dir, filepath.Base(fe.Path)),
				VerifyMode: verifyMode,
				Priority:   types.PriorityNormal,
			})
		},
	}
}
