package demux

import (
	"context"
	"sync"

	"github.com/tinytelemetry/muxlog/internal/metrics"
)

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// inputQueue buffers raw records between Write and the framing stage. Writes
// never block; once the queue holds hwm records it reports backpressure and
// arms the drain channel, which is closed when the queue next runs empty.
type inputQueue struct {
	mu        sync.Mutex
	items     [][]byte
	hwm       int
	closed    bool
	needDrain bool
	drain     chan struct{}
	ready     chan struct{}
	metrics   *metrics.Metrics
}

func newInputQueue(hwm int, m *metrics.Metrics) *inputQueue {
	return &inputQueue{
		hwm:     hwm,
		drain:   make(chan struct{}),
		ready:   make(chan struct{}, 1),
		metrics: m,
	}
}

// push appends one record. ok is false when the queue is closed and the
// record was dropped; accepted is false when the caller should wait for drain.
func (q *inputQueue) push(record []byte) (accepted, ok bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, false
	}
	q.items = append(q.items, record)
	n := len(q.items)
	accepted = n < q.hwm
	if !accepted {
		q.needDrain = true
	}
	q.mu.Unlock()

	q.metrics.SetQueueDepth(n)
	q.signal()
	return accepted, true
}

// pop removes the oldest record, waiting for one if needed. It returns false
// when the queue is closed and empty, or ctx ends.
func (q *inputQueue) pop(ctx context.Context) ([]byte, bool) {
	for {
		q.mu.Lock()
		if n := len(q.items); n > 0 {
			record := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if n == 1 {
				q.items = nil
				q.fireDrainLocked()
			}
			q.mu.Unlock()
			q.metrics.SetQueueDepth(n - 1)
			return record, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *inputQueue) drained() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.needDrain {
		return closedCh
	}
	return q.drain
}

func (q *inputQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *inputQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// close stops accepting records. Buffered records are still handed out by pop.
// Drain waiters are released.
func (q *inputQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.fireDrainLocked()
	q.mu.Unlock()
	q.signal()
}

func (q *inputQueue) fireDrainLocked() {
	if !q.needDrain {
		return
	}
	q.needDrain = false
	close(q.drain)
	q.drain = make(chan struct{})
}

func (q *inputQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
