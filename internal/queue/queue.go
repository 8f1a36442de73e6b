package queue

import (
	"container/heap"
	"sync"
)

// Queue is a bounded priority queue of alert messages. Higher priority polls
// first; equal priorities poll oldest-first. When full, an incoming message
// displaces the worst queued entry only if it strictly outranks it, so the
// queue never grows past its bound and never trades a better message for a
// worse one.
type Queue struct {
	mu    sync.Mutex
	items messageHeap
	bound int
}

// New returns a queue holding at most bound messages. A non-positive bound is
// treated as 1.
func New(bound int) *Queue {
	if bound < 1 {
		bound = 1
	}
	return &Queue{bound: bound}
}

// Offer inserts msg. The second return reports acceptance; when acceptance
// required displacing a queued message, that message is returned for logging.
func (q *Queue) Offer(msg Message) (evicted *Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() >= q.bound {
		worst := q.worstIndex()
		if !outranks(msg, q.items[worst].msg) {
			return nil, false
		}
		removed := heap.Remove(&q.items, worst).(*entry).msg
		evicted = &removed
	}
	heap.Push(&q.items, &entry{msg: msg})
	return evicted, true
}

// Poll removes and returns the best queued message.
func (q *Queue) Poll() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return Message{}, false
	}
	return heap.Pop(&q.items).(*entry).msg, true
}

// Len reports the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Bound reports the configured maximum.
func (q *Queue) Bound() int {
	return q.bound
}

// Drain removes every queued message and reports how many were dropped.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.items.Len()
	q.items = nil
	return n
}

// worstIndex locates the entry to sacrifice on overflow: lowest priority,
// oldest on ties. Linear scan; the bound is small.
func (q *Queue) worstIndex() int {
	worst := 0
	for i := 1; i < q.items.Len(); i++ {
		w, c := q.items[worst].msg, q.items[i].msg
		if c.Priority < w.Priority || (c.Priority == w.Priority && c.CreatedAt.Before(w.CreatedAt)) {
			worst = i
		}
	}
	return worst
}

func outranks(a, b Message) bool {
	return a.Priority > b.Priority
}

type entry struct {
	msg   Message
	index int
}

type messageHeap []*entry

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority
	}
	return h[i].msg.CreatedAt.Before(h[j].msg.CreatedAt)
}

func (h messageHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *messageHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
