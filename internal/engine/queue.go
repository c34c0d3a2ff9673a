package engine

import (
	"sync"

	"github.com/roach88/animflow/internal/model"
)

// NotificationKind selects the Manager method a Notification is applied with.
type NotificationKind int

const (
	NotifyFrame NotificationKind = iota + 1
	NotifyProperties
	NotifyNodeState
	NotifyExpression
	NotifyStructure
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyFrame:
		return "frame"
	case NotifyProperties:
		return "properties"
	case NotifyNodeState:
		return "node_state"
	case NotifyExpression:
		return "expression"
	case NotifyStructure:
		return "structure"
	}
	return "unknown"
}

// Notification is one host change waiting to be applied.
type Notification struct {
	Kind        NotificationKind
	FrameIndex  int
	PropertyIDs []string
	NodeID      string
	Snapshot    *model.Snapshot
}

// notificationQueue is an unbounded FIFO. Any goroutine may enqueue; the
// Host's Run loop is the only reader.
type notificationQueue struct {
	mu     sync.Mutex
	items  []Notification
	closed bool
	signal chan struct{} // buffered, size 1
}

func newNotificationQueue() *notificationQueue {
	return &notificationQueue{
		items:  make([]Notification, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends n. Returns false once the queue is closed.
func (q *notificationQueue) Enqueue(n Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, n)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front notification without blocking.
func (q *notificationQueue) TryDequeue() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Notification{}, false
	}
	n := q.items[0]
	// Drop the snapshot reference held by the backing array.
	q.items[0] = Notification{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return n, true
}

// Wait signals that notifications may be available. The channel is closed
// by Close.
func (q *notificationQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *notificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained reports whether the queue is closed and empty.
func (q *notificationQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *notificationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
