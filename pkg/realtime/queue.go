package realtime

import (
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// EventQueue is a bounded in-memory queue of serialized events sitting
// between publishers and the hub's fan-out loop. When the queue is full
// new events are dropped rather than blocking the write path; subscribers
// are expected to re-fetch on reconnect anyway.
type EventQueue struct {
	ch       chan *bytebufferpool.ByteBuffer
	enqueued uint64
	dequeued uint64
	dropped  uint64
}

// NewEventQueue creates a queue with the given capacity (minimum 1).
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EventQueue{ch: make(chan *bytebufferpool.ByteBuffer, capacity)}
}

// TryEnqueue copies payload into a pooled buffer and enqueues it. It
// returns false when the queue is full.
func (q *EventQueue) TryEnqueue(payload []byte) bool {
	buf := bytebufferpool.Get()
	_, _ = buf.Write(payload)
	select {
	case q.ch <- buf:
		atomic.AddUint64(&q.enqueued, 1)
		return true
	default:
		bytebufferpool.Put(buf)
		atomic.AddUint64(&q.dropped, 1)
		return false
	}
}

// Dequeue returns the channel the fan-out loop consumes. Consumers must
// call Release on each buffer when done with it.
func (q *EventQueue) Dequeue() <-chan *bytebufferpool.ByteBuffer {
	return q.ch
}

// Release returns a dequeued buffer to the pool.
func (q *EventQueue) Release(buf *bytebufferpool.ByteBuffer) {
	atomic.AddUint64(&q.dequeued, 1)
	bytebufferpool.Put(buf)
}

// Stats returns enqueue/dequeue/drop counters.
func (q *EventQueue) Stats() (enqueued, dequeued, dropped uint64) {
	return atomic.LoadUint64(&q.enqueued),
		atomic.LoadUint64(&q.dequeued),
		atomic.LoadUint64(&q.dropped)
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int { return len(q.ch) }
