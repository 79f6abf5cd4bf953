package listener

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/bletrack/internal/device"
)

// MaxRecorderCapacity guards against accidental misconfiguration.
const MaxRecorderCapacity uint32 = 64 * 1024

// Sighting is one device as seen by the recorder.
type Sighting struct {
	Device  *device.Device `json:"device"`
	Session int64          `json:"session"`
	At      time.Time      `json:"at"`
}

// Recorder keeps the most recent sightings in an overlapped ring; when full
// the oldest entry is overwritten. It never claims a device.
//
// The scanner writes from its main loop while Drain may run on another
// goroutine.
type Recorder struct {
	buffer mpmc.RichOverlappedRingBuffer[Sighting]
	now    func() time.Time

	session     atomic.Int64
	recorded    atomic.Int64
	overwritten atomic.Int64
}

func NewRecorder(capacity uint32) (*Recorder, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("recorder capacity must be greater than zero")
	}
	if capacity > MaxRecorderCapacity {
		return nil, fmt.Errorf("recorder capacity %d exceeds maximum %d", capacity, MaxRecorderCapacity)
	}
	return &Recorder{
		buffer: mpmc.NewOverlappedRingBuffer[Sighting](capacity),
		now:    time.Now,
	}, nil
}

func (r *Recorder) ParseDevice(dev *device.Device) bool {
	overwrites, err := r.buffer.EnqueueM(Sighting{Device: dev, Session: r.session.Load(), At: r.now()})
	if err == nil {
		r.recorded.Add(1)
		r.overwritten.Add(int64(overwrites))
	}
	return false
}

func (r *Recorder) OnScanEnd() {
	r.session.Add(1)
}

// Sessions is the number of completed sessions observed.
func (r *Recorder) Sessions() int64 { return r.session.Load() }

// Recorded is the number of sightings ever stored.
func (r *Recorder) Recorded() int64 { return r.recorded.Load() }

// Overwritten is the number of sightings lost to newer ones before being drained.
func (r *Recorder) Overwritten() int64 { return r.overwritten.Load() }

// Drain removes and returns the buffered sightings, oldest first.
func (r *Recorder) Drain() []Sighting {
	var out []Sighting
	for !r.buffer.IsEmpty() {
		s, err := r.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, s)
	}
	return out
}
