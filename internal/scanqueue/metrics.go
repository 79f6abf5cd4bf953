package scanqueue

import "sync/atomic"

// Metrics are lock-free counters for the queue. Producer-side failures are
// only counted here; reporting them is up to the consumer.
type Metrics struct {
	Written      int64 // results accepted by Push
	Dropped      int64 // results rejected because the buffer was full
	Contended    int64 // results rejected because the consumer held the lock
	Drained      int64 // results handed to the consumer
	SessionsDone int64 // sessions ended by SignalEnd
}

// Lost is the number of results that never reached the buffer.
func (m Metrics) Lost() int64 {
	return m.Dropped + m.Contended
}

func (m *Metrics) addWritten()      { atomic.AddInt64(&m.Written, 1) }
func (m *Metrics) addDropped()      { atomic.AddInt64(&m.Dropped, 1) }
func (m *Metrics) addContended()    { atomic.AddInt64(&m.Contended, 1) }
func (m *Metrics) addDrained(n int) { atomic.AddInt64(&m.Drained, int64(n)) }
func (m *Metrics) addSessionEnded() { atomic.AddInt64(&m.SessionsDone, 1) }

func (m *Metrics) snapshot() Metrics {
	return Metrics{
		Written:      atomic.LoadInt64(&m.Written),
		Dropped:      atomic.LoadInt64(&m.Dropped),
		Contended:    atomic.LoadInt64(&m.Contended),
		Drained:      atomic.LoadInt64(&m.Drained),
		SessionsDone: atomic.LoadInt64(&m.SessionsDone),
	}
}
