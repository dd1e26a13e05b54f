// Package copyengine implements the adaptive file-copy core of the ingest
// pipeline: strategy selection by file size, chunk-size adaptation to
// available memory, throttled progress reporting, optional post-copy
// verification, and atomic temp-file-then-rename finalization.
//
// Grounded on the teacher's verifier/scanner worker shape (bounded
// concurrency, atomic counters, channel-based result delivery) and on
// original_source/core/optimized_copy_engine.py for the strategy
// thresholds and finalize semantics.
package copyengine

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivoronin/ingestd/internal/hasher"
	"github.com/ivoronin/ingestd/internal/progress"
	"github.com/ivoronin/ingestd/internal/types"
)

// ProgressSink receives throttled TransferProgressEvent updates.
type ProgressSink interface {
	OnProgress(types.TransferProgressEvent)
}

// ProgressSinkFunc adapts a plain function to ProgressSink.
type ProgressSinkFunc func(types.TransferProgressEvent)

func (f ProgressSinkFunc) OnProgress(e types.TransferProgressEvent) { f(e) }

// Engine runs individual file transfers. It holds no queue of its own -
// callers (the TransferCoordinator) are responsible for scheduling; the
// Engine only knows how to execute one transfer and how to cancel one
// in-flight transfer by id.
type Engine struct {
	cfg Config

	mu          sync.Mutex
	sink        ProgressSink
	cancelFlags map[types.TransferId]*atomic.Bool
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, cancelFlags: make(map[types.TransferId]*atomic.Bool)}
}

// SetProgressSink installs the sink that receives progress events. Passing
// nil disables progress reporting.
func (e *Engine) SetProgressSink(sink ProgressSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// Cancel requests cancellation of an in-flight transfer. It is a no-op if
// the id is unknown or already terminal.
func (e *Engine) Cancel(id types.TransferId) {
	e.mu.Lock()
	flag := e.cancelFlags[id]
	e.mu.Unlock()
	if flag != nil {
		flag.Store(true)
	}
}

// Handle is returned by Submit and resolves to the transfer's terminal
// outcome.
type Handle struct {
	id      types.TransferId
	done    chan struct{}
	outcome types.TransferOutcome
}

// Id returns the transfer id this handle tracks.
func (h *Handle) Id() types.TransferId { return h.id }

// Wait blocks until the transfer reaches a terminal state and returns its
// outcome. Safe to call from multiple goroutines.
func (h *Handle) Wait() types.TransferOutcome {
	<-h.done
	return h.outcome
}

// Submit starts a transfer in its own goroutine and returns immediately
// with a handle to its eventual outcome.
func (e *Engine) Submit(id types.TransferId, req types.TransferRequest) *Handle {
	flag := &atomic.Bool{}
	e.mu.Lock()
	e.cancelFlags[id] = flag
	e.mu.Unlock()

	h := &Handle{id: id, done: make(chan struct{})}
	go func() {
		h.outcome = e.run(id, req, flag)
		close(h.done)
		e.mu.Lock()
		delete(e.cancelFlags, id)
		e.mu.Unlock()
	}()
	return h
}

func (e *Engine) emit(ev types.TransferProgressEvent) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink.OnProgress(ev)
	}
}

func (e *Engine) run(id types.TransferId, req types.TransferRequest, cancelled *atomic.Bool) types.TransferOutcome {
	stats := types.TransferStats{StartTime: time.Now()}

	fail := func(kind types.FailureKind, err error) types.TransferOutcome {
		stats.LastUpdate = time.Now()
		var terr *types.TransferError
		switch v := err.(type) {
		case *types.TransferError:
			terr = v
		case nil:
			terr = &types.TransferError{Kind: kind}
		default:
			terr = &types.TransferError{Kind: kind, Message: v.Error(), Cause: v}
		}
		return types.TransferOutcome{Id: id, State: types.TransferFailed, Stats: stats, Failure: terr}
	}

	srcInfo, err := os.Stat(req.SourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(types.FailureSourceNotFound, err)
		}
		if os.IsPermission(err) {
			return fail(types.FailurePermissionDenied, err)
		}
		return fail(types.FailureIoError, types.NewIoError(types.IoSiteStat, err))
	}

	size := srcInfo.Size()
	strategy := strategyFor(e.cfg, size)
	chunk := chunkSizeFor(e.cfg, size)
	stats.BytesTotal = size
	stats.Strategy = strategy
	stats.ChunkSize = chunk

	if err := prepareTarget(req.TargetPath); err != nil {
		if os.IsPermission(err) {
			return fail(types.FailurePermissionDenied, err)
		}
		return fail(types.FailureIoError, types.NewIoError(types.IoSiteWrite, err))
	}

	tmpPath := tmpPathFor(req.TargetPath)

	srcFile, err := os.Open(req.SourcePath)
	if err != nil {
		if os.IsPermission(err) {
			return fail(types.FailurePermissionDenied, err)
		}
		return fail(types.FailureIoError, types.NewIoError(types.IoSiteRead, err))
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(tmpPath)
	if err != nil {
		if os.IsPermission(err) {
			return fail(types.FailurePermissionDenied, err)
		}
		return fail(types.FailureIoError, types.NewIoError(types.IoSiteWrite, err))
	}

	smoother := progress.NewSmoother()
	e.emit(types.TransferProgressEvent{Id: id, Percent: 0, Unbounded: true, TotalBytes: size})

	onProgress := func(transferred int64) {
		stats.BytesTransferred = transferred
		bps, accepted := smoother.Update(transferred, size, false)
		if !accepted {
			return
		}
		var pct float64
		if size > 0 {
			pct = float64(transferred) / float64(size) * 100
		}
		eta, unbounded := smoother.ETA()
		e.emit(types.TransferProgressEvent{
			Id: id, Percent: pct, SmoothedBps: bps, ETA: eta, Unbounded: unbounded,
			TotalBytes: size, TransferredBytes: transferred,
		})
	}

	var copyErr error
	switch strategy {
	case types.StrategySmall:
		copyErr = copySmall(srcFile, dstFile, size, cancelled)
		if copyErr == nil {
			onProgress(size)
		}
	case types.StrategyMedium:
		copyErr = copyChunked(srcFile, dstFile, chunk, cancelled, onProgress)
	case types.StrategyLarge:
		copyErr = copyLarge(srcFile, dstFile, size, chunk, cancelled, onProgress)
	}

	if copyErr != nil {
		_ = dstFile.Close()
		cleanupTmp(tmpPath)
		if errors.Is(copyErr, errCancelled) {
			stats.LastUpdate = time.Now()
			return types.TransferOutcome{
				Id: id, State: types.TransferCancelled, Stats: stats,
				Failure: &types.TransferError{Kind: types.FailureCancelled},
			}
		}
		return fail(types.FailureIoError, copyErr)
	}

	if err := dstFile.Sync(); err != nil {
		_ = dstFile.Close()
		cleanupTmp(tmpPath)
		return fail(types.FailureIoError, types.NewIoError(types.IoSiteWrite, err))
	}
	if err := dstFile.Close(); err != nil {
		cleanupTmp(tmpPath)
		return fail(types.FailureIoError, types.NewIoError(types.IoSiteWrite, err))
	}

	tmpInfo, err := os.Stat(tmpPath)
	if err != nil || tmpInfo.Size() != size {
		cleanupTmp(tmpPath)
		return fail(types.FailureSizeMismatch, errors.New("copied size does not match source size"))
	}

	checksum, verr := verify(req.VerifyMode, req.SourcePath, tmpPath, size)
	if verr != nil {
		cleanupTmp(tmpPath)
		return fail(verr.kind, verr.cause)
	}
	stats.Checksum = checksum

	if err := finalize(tmpPath, req.TargetPath); err != nil {
		cleanupTmp(tmpPath)
		return fail(types.FailureIoError, err)
	}

	stats.BytesTransferred = size
	stats.LastUpdate = time.Now()
	bps, _ := smoother.Update(size, size, true)
	stats.SmoothedSpeedBps = bps
	e.emit(types.TransferProgressEvent{
		Id: id, Percent: 100, SmoothedBps: bps, TotalBytes: size, TransferredBytes: size,
	})

	return types.TransferOutcome{Id: id, State: types.TransferCompleted, Stats: stats}
}

// verifyError pairs a FailureKind with the underlying cause for the
// verification step, which can fail either because of an I/O error or
// because of an actual mismatch.
type verifyError struct {
	kind  types.FailureKind
	cause error
}

func verify(mode types.VerifyMode, sourcePath, tmpPath string, size int64) (checksum string, verr *verifyError) {
	switch mode {
	case types.VerifyNone:
		return "", nil
	case types.VerifyQuickHash:
		srcSum, err := hasher.QuickHashRange(sourcePath, size)
		if err != nil {
			return "", &verifyError{types.FailureIoError, err}
		}
		dstSum, err := hasher.QuickHashRange(tmpPath, size)
		if err != nil {
			return "", &verifyError{types.FailureIoError, err}
		}
		if srcSum != dstSum {
			return "", &verifyError{types.FailureVerificationMismatch, errors.New("quick hash mismatch")}
		}
		return dstSum, nil
	case types.VerifySha256:
		srcSum, err := hasher.VerificationHash(sourcePath)
		if err != nil {
			return "", &verifyError{types.FailureIoError, err}
		}
		dstSum, err := hasher.VerificationHash(tmpPath)
		if err != nil {
			return "", &verifyError{types.FailureIoError, err}
		}
		if srcSum != dstSum {
			return "", &verifyError{types.FailureVerificationMismatch, errors.New("sha256 mismatch")}
		}
		return dstSum, nil
	default:
		return "", nil
	}
}
