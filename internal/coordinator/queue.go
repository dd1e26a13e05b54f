package coordinator

import "github.com/ivoronin/ingestd/internal/types"

// job is one queued-but-not-yet-running transfer request.
type job struct {
	id       types.TransferId
	req      types.TransferRequest
	priority types.Priority
	seq      int64 // submission order, used as the tie-break
}

// priorityQueue is a container/heap.Interface implementation ordering jobs
// by priority (High first) and, within a priority, by submission order
// (stable FIFO), per the coordinator's "stable priority queue" requirement.
type priorityQueue []*job

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x any) {
	*q = append(*q, x.(*job))
}

func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
