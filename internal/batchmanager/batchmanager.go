// Package batchmanager aggregates the terminal outcomes of a known set of
// transfers into batch-level progress and completion events.
//
// Grounded on original_source/core/transfer/batch_manager.py for the
// counter/terminal-detection semantics, restructured around the teacher's
// single-mutex-guarded-map style (the mutex is never held across I/O or
// across a sink callback).
package batchmanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivoronin/ingestd/internal/progress"
	"github.com/ivoronin/ingestd/internal/types"
)

// Sink receives batch-level events.
type Sink interface {
	OnBatchProgress(types.BatchProgressEvent)
	OnBatchCompleted(id types.BatchId)
	OnBatchFailed(id types.BatchId, summary string)
}

// SinkFuncs adapts three plain functions to Sink. Any nil func is a no-op.
type SinkFuncs struct {
	Progress  func(types.BatchProgressEvent)
	Completed func(types.BatchId)
	Failed    func(types.BatchId, string)
}

func (f SinkFuncs) OnBatchProgress(e types.BatchProgressEvent) {
	if f.Progress != nil {
		f.Progress(e)
	}
}

func (f SinkFuncs) OnBatchCompleted(id types.BatchId) {
	if f.Completed != nil {
		f.Completed(id)
	}
}

func (f SinkFuncs) OnBatchFailed(id types.BatchId, summary string) {
	if f.Failed != nil {
		f.Failed(id, summary)
	}
}

var errBatchTerminal = fmt.Errorf("batchmanager: batch is already terminal")

// batchState is the mutable bookkeeping kept for one batch. byteTotal and
// byteDone track every attached transfer's contribution to overall_percent,
// which is a byte-weighted average, not a per-transfer count average.
type batchState struct {
	batch     types.Batch
	byteTotal map[types.TransferId]int64
	byteDone  map[types.TransferId]int64
	smoother  *progress.Smoother
	reported  bool // BatchCompleted/BatchFailed emitted exactly once
}

// Manager owns every live batch. A single mutex guards the map; it is never
// held while invoking the Sink.
type Manager struct {
	mu      sync.Mutex
	sink    Sink
	batches map[types.BatchId]*batchState
}

// New creates a Manager. A nil sink disables event emission.
func New(sink Sink) *Manager {
	return &Manager{sink: sink, batches: make(map[types.BatchId]*batchState)}
}

// CreateBatch registers a new batch expecting exactly total transfers.
func (m *Manager) CreateBatch(total int) types.BatchId {
	id := types.BatchId(uuid.NewString())
	m.mu.Lock()
	m.batches[id] = &batchState{
		batch: types.Batch{
			Id:        id,
			Total:     total,
			StartTime: time.Now(),
		},
		byteTotal: make(map[types.TransferId]int64),
		byteDone:  make(map[types.TransferId]int64),
		smoother:  progress.NewSmoother(),
	}
	m.mu.Unlock()
	return id
}

// AttachTransfer appends a transfer id to the batch's ordered transfer list.
// It is rejected once the batch has reached a terminal state.
func (m *Manager) AttachTransfer(batchID types.BatchId, transferID types.TransferId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok {
		return fmt.Errorf("batchmanager: unknown batch %s", batchID)
	}
	if st.batch.Terminal() {
		return errBatchTerminal
	}
	st.batch.Transfers = append(st.batch.Transfers, transferID)
	st.byteTotal[transferID] = 0
	st.byteDone[transferID] = 0
	return nil
}

// ObserveProgress updates a batch's aggregate byte counters from one
// transfer's progress event and emits a throttled BatchProgress event.
// It is a no-op if transferID was never attached to batchID.
func (m *Manager) ObserveProgress(batchID types.BatchId, ev types.TransferProgressEvent) {
	m.mu.Lock()
	st, ok := m.batches[batchID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, attached := st.byteTotal[ev.Id]; !attached {
		m.mu.Unlock()
		return
	}

	st.byteTotal[ev.Id] = ev.TotalBytes
	st.byteDone[ev.Id] = ev.TransferredBytes

	var total, done int64
	for id := range st.byteTotal {
		total += st.byteTotal[id]
		done += st.byteDone[id]
	}

	force := ev.Percent == 0 || ev.Percent == 100
	bps, accepted := st.smoother.Update(done, total, force)
	sink := m.sink
	m.mu.Unlock()

	if !accepted || sink == nil {
		return
	}

	var pct float64
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	eta, unbounded := st.smoother.ETA()
	sink.OnBatchProgress(types.BatchProgressEvent{
		Id: batchID, OverallPercent: pct, AggregateBps: bps, ETA: eta, Unbounded: unbounded,
	})
}

// RecordOutcome records one transfer's terminal state against its batch. If
// this was the batch's last outstanding transfer, the batch is marked
// terminal, EndTime is stamped, and BatchCompleted or BatchFailed is
// emitted exactly once. BatchFailed fires if any transfer in the batch
// failed or was cancelled; BatchCompleted fires only if every transfer
// completed successfully.
func (m *Manager) RecordOutcome(batchID types.BatchId, transferID types.TransferId, outcome types.TransferOutcome) error {
	m.mu.Lock()

	st, ok := m.batches[batchID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("batchmanager: unknown batch %s", batchID)
	}
	if st.batch.Terminal() {
		m.mu.Unlock()
		return errBatchTerminal
	}

	switch outcome.State {
	case types.TransferCompleted:
		st.batch.Completed++
	case types.TransferFailed:
		st.batch.Failed++
	case types.TransferCancelled:
		st.batch.Cancelled++
	default:
		m.mu.Unlock()
		return fmt.Errorf("batchmanager: non-terminal outcome state %v", outcome.State)
	}

	st.byteDone[transferID] = outcome.Stats.BytesTransferred
	if outcome.Stats.BytesTotal > 0 {
		st.byteTotal[transferID] = outcome.Stats.BytesTotal
	}

	nowTerminal := st.batch.Terminal()
	var emitCompleted, emitFailed bool
	var summary string
	var sink Sink

	if nowTerminal && !st.reported {
		now := time.Now()
		st.batch.EndTime = &now
		st.reported = true
		sink = m.sink
		if st.batch.Failed > 0 || st.batch.Cancelled > 0 {
			emitFailed = true
			summary = fmt.Sprintf("%d completed, %d failed, %d cancelled of %d",
				st.batch.Completed, st.batch.Failed, st.batch.Cancelled, st.batch.Total)
		} else {
			emitCompleted = true
		}
	}

	m.mu.Unlock()

	if sink == nil {
		return nil
	}
	if emitCompleted {
		sink.OnBatchCompleted(batchID)
	}
	if emitFailed {
		sink.OnBatchFailed(batchID, summary)
	}
	return nil
}

// Snapshot returns an immutable copy of a batch's current state.
func (m *Manager) Snapshot(batchID types.BatchId) (types.Batch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok {
		return types.Batch{}, false
	}
	cp := st.batch
	cp.Transfers = append([]types.TransferId(nil), st.batch.Transfers...)
	return cp, true
}
