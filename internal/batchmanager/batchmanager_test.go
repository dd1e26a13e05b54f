package batchmanager

import (
	"sync"
	"testing"

	"github.com/ivoronin/ingestd/internal/types"
)

func completedOutcome(id types.TransferId, total int64) types.TransferOutcome {
	return types.TransferOutcome{
		Id:    id,
		State: types.TransferCompleted,
		Stats: types.TransferStats{BytesTotal: total, BytesTransferred: total},
	}
}

func TestBatchCompletesExactlyOnceWhenAllTransfersSucceed(t *testing.T) {
	var mu sync.Mutex
	completedCount := 0
	var lastPercent float64

	sink := SinkFuncs{
		Completed: func(id types.BatchId) {
			mu.Lock()
			completedCount++
			mu.Unlock()
		},
		Progress: func(e types.BatchProgressEvent) {
			mu.Lock()
			lastPercent = e.OverallPercent
			mu.Unlock()
		},
	}

	m := New(sink)
	batchID := m.CreateBatch(3)

	ids := []types.TransferId{"a", "b", "c"}
	sizes := []int64{1 << 20, 10 << 20, 50 << 20}
	for _, id := range ids {
		if err := m.AttachTransfer(batchID, id); err != nil {
			t.Fatal(err)
		}
	}

	for i, id := range ids {
		m.ObserveProgress(batchID, types.TransferProgressEvent{
			Id: id, Percent: 0, TotalBytes: sizes[i], TransferredBytes: 0,
		})
	}
	for i, id := range ids {
		m.ObserveProgress(batchID, types.TransferProgressEvent{
			Id: id, Percent: 100, TotalBytes: sizes[i], TransferredBytes: sizes[i],
		})
		if err := m.RecordOutcome(batchID, id, completedOutcome(id, sizes[i])); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	gotCompleted := completedCount
	gotPercent := lastPercent
	mu.Unlock()

	if gotCompleted != 1 {
		t.Errorf("got %d BatchCompleted emissions, want exactly 1", gotCompleted)
	}
	if gotPercent != 100 {
		t.Errorf("final overall_percent = %v, want 100", gotPercent)
	}

	snap, ok := m.Snapshot(batchID)
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if !snap.Terminal() {
		t.Error("expected batch to be terminal")
	}
	if snap.EndTime == nil {
		t.Error("expected EndTime to be stamped")
	}
	if got := snap.Transfers; len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("got transfer order %v, want [a b c] preserved", got)
	}
}

func TestBatchFailsWhenAnyTransferFails(t *testing.T) {
	var failedCount, completedCount int
	var summary string
	sink := SinkFuncs{
		Failed: func(id types.BatchId, s string) {
			failedCount++
			summary = s
		},
		Completed: func(id types.BatchId) { completedCount++ },
	}

	m := New(sink)
	batchID := m.CreateBatch(2)
	_ = m.AttachTransfer(batchID, "a")
	_ = m.AttachTransfer(batchID, "b")

	_ = m.RecordOutcome(batchID, "a", completedOutcome("a", 100))
	_ = m.RecordOutcome(batchID, "b", types.TransferOutcome{
		Id: "b", State: types.TransferFailed,
		Failure: &types.TransferError{Kind: types.FailureIoError},
	})

	if failedCount != 1 {
		t.Errorf("got %d BatchFailed emissions, want 1", failedCount)
	}
	if completedCount != 0 {
		t.Errorf("got %d BatchCompleted emissions, want 0", completedCount)
	}
	if summary == "" {
		t.Error("expected a non-empty failure summary")
	}
}

func TestAttachTransferRejectedAfterTerminal(t *testing.T) {
	m := New(nil)
	batchID := m.CreateBatch(1)
	_ = m.AttachTransfer(batchID, "a")
	_ = m.RecordOutcome(batchID, "a", completedOutcome("a", 10))

	if err := m.AttachTransfer(batchID, "late"); err == nil {
		t.Error("expected error attaching to a terminal batch")
	}
}

func TestRecordOutcomeRejectedAfterTerminal(t *testing.T) {
	m := New(nil)
	batchID := m.CreateBatch(1)
	_ = m.AttachTransfer(batchID, "a")
	_ = m.RecordOutcome(batchID, "a", completedOutcome("a", 10))

	if err := m.RecordOutcome(batchID, "a", completedOutcome("a", 10)); err == nil {
		t.Error("expected error recording against an already-terminal batch")
	}
}

func TestSnapshotOfUnknownBatchReturnsFalse(t *testing.T) {
	m := New(nil)
	if _, ok := m.Snapshot("does-not-exist"); ok {
		t.Error("expected ok=false for unknown batch")
	}
}

func TestCounterInvariantNeverExceedsTotal(t *testing.T) {
	m := New(nil)
	batchID := m.CreateBatch(2)
	_ = m.AttachTransfer(batchID, "a")
	_ = m.AttachTransfer(batchID, "b")

	_ = m.RecordOutcome(batchID, "a", completedOutcome("a", 10))
	snap, _ := m.Snapshot(batchID)
	if snap.Completed+snap.Failed+snap.Cancelled > snap.Total {
		t.Errorf("counters exceed total: %+v", snap)
	}
	if snap.Terminal() {
		t.Error("batch should not be terminal with one of two transfers done")
	}
}
