package notification

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/techservice/notifier/internal/domain"
)

// Queue is an unbounded multi-producer FIFO of pending requests. Enqueue
// never blocks on anything but the short list mutex.
type Queue struct {
	mu    sync.Mutex
	items *list.List
	size  atomic.Int64
}

func NewQueue() *Queue {
	return &Queue{items: list.New()}
}

func (q *Queue) Enqueue(r *domain.NotificationRequest) {
	q.mu.Lock()
	q.items.PushBack(r)
	q.size.Add(1)
	q.mu.Unlock()
}

// Dequeue removes the oldest request. ok is false when the queue is empty.
func (q *Queue) Dequeue() (r *domain.NotificationRequest, ok bool) {
	q.mu.Lock()
	front := q.items.Front()
	if front == nil {
		q.mu.Unlock()
		return nil, false
	}
	q.items.Remove(front)
	q.size.Add(-1)
	q.mu.Unlock()
	return front.Value.(*domain.NotificationRequest), true
}

// Len samples the queue depth without taking the lock. size only changes
// under the lock together with the list, so it is never negative.
func (q *Queue) Len() int {
	return int(q.size.Load())
}
