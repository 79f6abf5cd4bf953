// Package scanqueue moves raw scan results from the radio's delivery context
// to the main loop.
//
// The producer side (Push, SignalEnd) never blocks: every lock it needs is
// taken with a non-blocking attempt and a failed attempt is counted, not
// retried. The consumer side (Drain, Ended, BeginSession) is single-threaded
// and only ever waits for a bounded time.
package scanqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/srg/bletrack/internal/device"
	"golang.org/x/sync/semaphore"
)

// Capacity is the number of raw results held between two drains.
const Capacity = 16

// ErrLockTimeout is returned by Drain when a phase could not take the buffer lock in time.
var ErrLockTimeout = errors.New("scan queue lock timeout")

// Queue is a fixed-size buffer of raw scan results plus the session token.
//
// Entries [0, count) are owned by the buffer lock. Between the snapshot and
// the reset phase of a Drain the consumer reads entries [0, n) without the
// lock; the producer only ever writes at index count >= n, so both sides
// touch disjoint slots.
type Queue struct {
	buf     *semaphore.Weighted
	entries [Capacity]device.RawScanResult
	count   int

	// consumed is the number of leading entries already handed to the
	// consumer but not yet removed. Only the consumer touches it.
	consumed int

	session       *semaphore.Weighted
	sessionActive atomic.Bool

	metrics Metrics
}

// New creates an empty Queue with no session running.
func New() *Queue {
	return &Queue{
		buf:     semaphore.NewWeighted(1),
		session: semaphore.NewWeighted(1),
	}
}

// Push appends one result. It returns false when the buffer lock is held by
// the consumer or the buffer is full; the result is dropped in both cases.
func (q *Queue) Push(result device.RawScanResult) bool {
	if !q.buf.TryAcquire(1) {
		q.metrics.addContended()
		return false
	}
	defer q.buf.Release(1)

	if q.count >= Capacity {
		q.metrics.addDropped()
		return false
	}
	q.entries[q.count] = result
	q.count++
	q.metrics.addWritten()
	return true
}

// BeginSession takes the session token. It returns false while a session
// started earlier has not been ended by SignalEnd.
func (q *Queue) BeginSession() bool {
	if !q.session.TryAcquire(1) {
		return false
	}
	q.sessionActive.Store(true)
	return true
}

// SignalEnd hands the session token back. Calls without a running session
// are ignored.
func (q *Queue) SignalEnd() {
	if q.sessionActive.CompareAndSwap(true, false) {
		q.session.Release(1)
		q.metrics.addSessionEnded()
	}
}

// Ended reports whether no session holds the token.
func (q *Queue) Ended() bool {
	if !q.session.TryAcquire(1) {
		return false
	}
	q.session.Release(1)
	return true
}

// Drain hands every buffered result to fn in arrival order and removes them.
//
// The buffer lock is held only to read the entry count (waiting at most
// snapshotTimeout) and to remove the handed out entries (waiting at most
// resetTimeout); fn always runs unlocked. Results pushed while fn runs stay
// queued for the next Drain. If the reset phase times out, the handed out
// entries are removed at the start of the next Drain instead, so no result is
// delivered twice.
//
// The returned count is the snapshot size, which equals Capacity when the
// buffer was full.
func (q *Queue) Drain(snapshotTimeout, resetTimeout time.Duration, fn func(device.RawScanResult)) (int, error) {
	if err := q.lock(snapshotTimeout); err != nil {
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	q.compact()
	n := q.count
	q.buf.Release(1)

	for i := 0; i < n; i++ {
		fn(q.entries[i])
	}
	q.consumed = n
	q.metrics.addDrained(n)

	if err := q.lock(resetTimeout); err != nil {
		return n, fmt.Errorf("reset: %w", err)
	}
	q.compact()
	q.buf.Release(1)
	return n, nil
}

// Len returns the number of results waiting, including handed out entries
// whose removal is still pending.
func (q *Queue) Len() int {
	if err := q.lock(time.Millisecond); err != nil {
		return -1
	}
	defer q.buf.Release(1)
	return q.count - q.consumed
}

// Metrics returns a snapshot of the queue counters.
func (q *Queue) Metrics() Metrics {
	return q.metrics.snapshot()
}

func (q *Queue) lock(timeout time.Duration) error {
	if q.buf.TryAcquire(1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := q.buf.Acquire(ctx, 1); err != nil {
		return ErrLockTimeout
	}
	return nil
}

// compact drops the consumed prefix. Caller holds the buffer lock.
func (q *Queue) compact() {
	if q.consumed == 0 {
		return
	}
	copy(q.entries[:], q.entries[q.consumed:q.count])
	q.count -= q.consumed
	q.consumed = 0
}
