package copyengine

import (
	"os"
	"sync"
	"testing"

	"github.com/ivoronin/ingestd/internal/testfs"
	"github.com/ivoronin/ingestd/internal/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Small chunk size so medium/large tests actually iterate more than once
	// without needing multi-megabyte fixtures.
	cfg.BufferBaseBytes = 4096
	cfg.BufferMinBytes = 4096
	cfg.BufferMaxBytes = 4096
	cfg.SmallFileThreshold = 1024
	cfg.MediumFileThreshold = 10 * mib
	return cfg
}

type recordingSink struct {
	mu     sync.Mutex
	events []types.TransferProgressEvent
}

func (r *recordingSink) OnProgress(e types.TransferProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) snapshot() []types.TransferProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TransferProgressEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestSmallFileCopySucceeds(t *testing.T) {
	h := testfs.New(t, testfs.File{Path: "src/a.bin", Size: "5MiB", Pattern: 'z'})
	target := h.Path("dst/a.bin")

	e := New(DefaultConfig())
	outcome := e.Submit("t1", types.TransferRequest{
		SourcePath: h.Path("src/a.bin"),
		TargetPath: target,
		VerifyMode: types.VerifyNone,
	}).Wait()

	if outcome.State != types.TransferCompleted {
		t.Fatalf("got state %v, want Completed (failure=%v)", outcome.State, outcome.Failure)
	}
	h.AssertExists("dst/a.bin", 5*mib)
	h.AssertAbsent("dst/a.bin.tmp")
}

func TestMissingParentDirIsCreated(t *testing.T) {
	h := testfs.New(t, testfs.File{Path: "src/b.bin", Size: "1KiB"})
	target := h.Path("deeply/nested/missing/dirs/b.bin")

	e := New(DefaultConfig())
	outcome := e.Submit("t2", types.TransferRequest{
		SourcePath: h.Path("src/b.bin"),
		TargetPath: target,
	}).Wait()

	if outcome.State != types.TransferCompleted {
		t.Fatalf("got state %v, failure=%v", outcome.State, outcome.Failure)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("expected target to exist: %v", err)
	}
}

func TestExistingTargetIsAtomicallyReplaced(t *testing.T) {
	h := testfs.New(t,
		testfs.File{Path: "src/c.bin", Size: "2KiB", Pattern: 'n'},
		testfs.File{Path: "dst/c.bin", Size: "9KiB", Pattern: 'o'},
	)

	e := New(DefaultConfig())
	outcome := e.Submit("t3", types.TransferRequest{
		SourcePath: h.Path("src/c.bin"),
		TargetPath: h.Path("dst/c.bin"),
	}).Wait()

	if outcome.State != types.TransferCompleted {
		t.Fatalf("got state %v, failure=%v", outcome.State, outcome.Failure)
	}
	h.AssertExists("dst/c.bin", 2*1024)
}

func TestStaleTmpFromPriorRunIsOverwritten(t *testing.T) {
	h := testfs.New(t,
		testfs.File{Path: "src/d.bin", Size: "3KiB", Pattern: 'd'},
		testfs.File{Path: "dst/d.bin.tmp", Size: "500KiB", Pattern: 'x'},
	)

	e := New(DefaultConfig())
	outcome := e.Submit("t4", types.TransferRequest{
		SourcePath: h.Path("src/d.bin"),
		TargetPath: h.Path("dst/d.bin"),
	}).Wait()

	if outcome.State != types.TransferCompleted {
		t.Fatalf("got state %v, failure=%v", outcome.State, outcome.Failure)
	}
	h.AssertExists("dst/d.bin", 3*1024)
}

func TestCancelAfterFirstProgressUpdateLeavesNoTmp(t *testing.T) {
	h := testfs.New(t, testfs.File{Path: "src/e.bin", Size: "256KiB", Pattern: 'e'})
	target := h.Path("dst/e.bin")

	e := New(testConfig())

	// The first progress update is the mandatory 0% event, emitted before
	// the first chunk is copied. Later chunk updates are throttled to one
	// per 100ms, a window this 256KiB copy finishes well inside.
	var once sync.Once
	sink := ProgressSinkFunc(func(ev types.TransferProgressEvent) {
		once.Do(func() { e.Cancel("t5") })
	})
	e.SetProgressSink(sink)

	outcome := e.Submit("t5", types.TransferRequest{
		SourcePath: h.Path("src/e.bin"),
		TargetPath: target,
	}).Wait()

	if outcome.State != types.TransferCancelled {
		t.Fatalf("got state %v, want Cancelled", outcome.State)
	}
	if outcome.Failure == nil || outcome.Failure.Kind != types.FailureCancelled {
		t.Errorf("got failure %v, want FailureCancelled", outcome.Failure)
	}
	h.AssertAbsent("dst/e.bin")
	h.AssertAbsent("dst/e.bin.tmp")
}

func TestSourceNotFoundFails(t *testing.T) {
	h := testfs.New(t)
	e := New(DefaultConfig())
	outcome := e.Submit("t6", types.TransferRequest{
		SourcePath: h.Path("nope.bin"),
		TargetPath: h.Path("dst/nope.bin"),
	}).Wait()

	if outcome.State != types.TransferFailed {
		t.Fatalf("got state %v, want Failed", outcome.State)
	}
	if outcome.Failure.Kind != types.FailureSourceNotFound {
		t.Errorf("got kind %v, want SourceNotFound", outcome.Failure.Kind)
	}
}

func TestVerifyReportsMismatchForDifferentContent(t *testing.T) {
	// Exercises the verify() helper directly: two on-disk files with
	// different content must be reported as a mismatch for both supported
	// verify modes. This is the logic the engine's post-copy verification
	// step relies on.
	h := testfs.New(t,
		testfs.File{Path: "a.bin", Size: "4KiB", Pattern: 'a'},
		testfs.File{Path: "b.bin", Size: "4KiB", Pattern: 'b'},
	)

	_, verr := verify(types.VerifySha256, h.Path("a.bin"), h.Path("b.bin"), 4096)
	if verr == nil || verr.kind != types.FailureVerificationMismatch {
		t.Fatalf("sha256: got %v, want VerificationMismatch", verr)
	}

	_, verr = verify(types.VerifyQuickHash, h.Path("a.bin"), h.Path("b.bin"), 4096)
	if verr == nil || verr.kind != types.FailureVerificationMismatch {
		t.Fatalf("quick-hash: got %v, want VerificationMismatch", verr)
	}
}

func TestVerifySha256SucceedsOnIdenticalCopy(t *testing.T) {
	h := testfs.New(t, testfs.File{Path: "src/f.bin", Size: "64KiB", Pattern: 'f'})

	e := New(DefaultConfig())
	outcome := e.Submit("t7", types.TransferRequest{
		SourcePath: h.Path("src/f.bin"),
		TargetPath: h.Path("dst/f.bin"),
		VerifyMode: types.VerifySha256,
	}).Wait()

	if outcome.State != types.TransferCompleted {
		t.Fatalf("got state %v, failure=%v", outcome.State, outcome.Failure)
	}
	if outcome.Stats.Checksum == "" {
		t.Errorf("expected a non-empty checksum to be recorded")
	}
}

func TestMediumStrategyEmitsMandatory0And100PercentEvents(t *testing.T) {
	h := testfs.New(t, testfs.File{Path: "src/g.bin", Size: "64KiB", Pattern: 'g'})

	e := New(testConfig())
	sink := &recordingSink{}
	e.SetProgressSink(sink)

	outcome := e.Submit("t8", types.TransferRequest{
		SourcePath: h.Path("src/g.bin"),
		TargetPath: h.Path("dst/g.bin"),
	}).Wait()

	if outcome.State != types.TransferCompleted {
		t.Fatalf("got state %v, failure=%v", outcome.State, outcome.Failure)
	}

	events := sink.snapshot()
	if len(events) == 0 {
		t.Fatal("expected at least the mandatory 0%% and 100%% events")
	}
	if events[0].Percent != 0 {
		t.Errorf("first event percent = %v, want 0", events[0].Percent)
	}
	if last := events[len(events)-1]; last.Percent != 100 {
		t.Errorf("last event percent = %v, want 100", last.Percent)
	}
}

func TestStrategySelectionBySize(t *testing.T) {
	cfg := testConfig()
	if got := strategyFor(cfg, 512); got != types.StrategySmall {
		t.Errorf("512 bytes: got %v, want Small", got)
	}
	if got := strategyFor(cfg, 2048); got != types.StrategyMedium {
		t.Errorf("2048 bytes: got %v, want Medium", got)
	}
	if got := strategyFor(cfg, cfg.MediumFileThreshold+1); got != types.StrategyLarge {
		t.Errorf("over medium threshold: got %v, want Large", got)
	}
}

func TestChunkSizeClampedToConfiguredBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferMinBytes = 2 * mib
	cfg.BufferMaxBytes = 2 * mib
	got := chunkSizeFor(cfg, 100*mib)
	if got != 2*mib {
		t.Errorf("got %d, want clamp to %d", got, 2*mib)
	}
}

func TestSmallFileChunkCappedAtQuarterSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferMinBytes = 1
	cfg.BufferMaxBytes = cfg.BufferBaseBytes
	got := chunkSizeFor(cfg, 40)
	if got > 10 {
		t.Errorf("got %d, want <= size/4 = 10", got)
	}
}
