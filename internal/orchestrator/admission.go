package orchestrator

import (
	"container/heap"
	"context"
	"sync"
)

// Priority orders admission when the concurrency budget is saturated. It
// never changes retry counts or results.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String implements fmt.Stringer for logs and metrics labels.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// admissionGate bounds concurrent handler executions. When permits run out,
// callers queue and are granted in priority order, FIFO within a priority.
type admissionGate struct {
	mu      sync.Mutex
	max     int
	active  int
	waiters waiterQueue
	seq     uint64
}

type waiter struct {
	priority Priority
	seq      uint64
	index    int
	ready    chan struct{}
	granted  bool
}

func newAdmissionGate(max int) *admissionGate {
	return &admissionGate{max: max}
}

// acquire obtains a permit, blocking in the priority queue when the budget is
// saturated. Returns the context error if the caller gives up first.
func (g *admissionGate) acquire(ctx context.Context, priority Priority) error {
	g.mu.Lock()
	if g.active < g.max {
		g.active++
		g.mu.Unlock()
		return nil
	}

	w := &waiter{
		priority: priority,
		seq:      g.seq,
		ready:    make(chan struct{}),
	}
	g.seq++
	heap.Push(&g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		if w.granted {
			// The permit arrived while we were cancelling; pass it on.
			g.releaseLocked()
		} else {
			heap.Remove(&g.waiters, w.index)
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

// release returns a permit, handing it to the highest-priority waiter if any.
func (g *admissionGate) release() {
	g.mu.Lock()
	g.releaseLocked()
	g.mu.Unlock()
}

func (g *admissionGate) releaseLocked() {
	if g.waiters.Len() > 0 {
		w := heap.Pop(&g.waiters).(*waiter)
		w.granted = true
		close(w.ready)
		return
	}
	g.active--
}

// waiterQueue is a max-heap on priority, FIFO within equal priority.
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() interface{} {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return w
}
