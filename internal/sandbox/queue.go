package sandbox

import (
	"container/heap"
	"context"
	"sync"

	"github.com/labmate/labmate/internal/types"
)

// Queue serialises access to a Runner. Only one program runs at a time;
// waiting requests are granted the slot in ascending task index, then
// arrival order.
type Queue struct {
	runner Runner

	mu      sync.Mutex
	busy    bool
	seq     uint64
	waiting waiterHeap
}

type waiter struct {
	taskIndex int
	seq       uint64
	ready     chan struct{}
	pos       int
}

// NewQueue wraps runner with a single execution slot
func NewQueue(runner Runner) *Queue {
	return &Queue{runner: runner}
}

// Run waits for the slot, then runs req. A request cancelled while waiting
// fails without starting.
func (q *Queue) Run(ctx context.Context, req Request) *Result {
	if err := q.acquire(ctx, req.TaskIndex); err != nil {
		return failed(types.NewRetryableError(types.KindEnvironment, "acquire sandbox", err))
	}
	defer q.release()
	return q.runner.Run(ctx, req)
}

// Waiting returns the number of requests blocked on the slot
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len()
}

func (q *Queue) acquire(ctx context.Context, taskIndex int) error {
	q.mu.Lock()
	if !q.busy && q.waiting.Len() == 0 {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	q.seq++
	w := &waiter{taskIndex: taskIndex, seq: q.seq, ready: make(chan struct{})}
	heap.Push(&q.waiting, w)
	q.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		if w.pos >= 0 {
			heap.Remove(&q.waiting, w.pos)
			q.mu.Unlock()
			return ctx.Err()
		}
		q.mu.Unlock()
		// granted concurrently with cancellation; hand the slot on
		q.release()
		return ctx.Err()
	}
}

func (q *Queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.waiting.Len() == 0 {
		q.busy = false
		return
	}
	w := heap.Pop(&q.waiting).(*waiter)
	close(w.ready)
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].taskIndex != h[j].taskIndex {
		return h[i].taskIndex < h[j].taskIndex
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.pos = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.pos = -1
	*h = old[:n-1]
	return w
}
