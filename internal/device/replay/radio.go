package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/groutine"
)

// ErrClosed is returned by requests made after Close.
var ErrClosed = errors.New("replay radio closed")

// Option configures a Radio.
type Option func(*Radio)

// WithStalledEnd makes every session stop short of its completion event,
// the way a wedged controller behaves.
func WithStalledEnd() Option {
	return func(r *Radio) { r.stall = true }
}

// WithParamStatus makes SetScanParameters report status instead of success.
func WithParamStatus(status device.Status) Option {
	return func(r *Radio) { r.paramStatus = status }
}

// WithStartStatus makes StartScanning report status instead of success.
// A failed start still delivers nothing and completes after the duration.
func WithStartStatus(status device.Status) Option {
	return func(r *Radio) { r.startStatus = status }
}

// Radio implements device.Radio by replaying a capture once per session. A
// session ends when the capture is exhausted or the scan duration elapses,
// whichever comes first.
type Radio struct {
	frames []frame
	logger *logrus.Logger

	stall       bool
	paramStatus device.Status
	startStatus device.Status

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handler  device.GAPEventHandler
	params   device.ScanParameters
	running  bool
	closed   bool
	sessions int
	done     <-chan struct{}
}

// NewRadio creates a replay radio for capture.
func NewRadio(capture *Capture, logger *logrus.Logger, opts ...Option) (*Radio, error) {
	frames, err := capture.frames()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Radio{
		frames: frames,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RegisterHandler implements device.Radio
func (r *Radio) RegisterHandler(h device.GAPEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Params returns the last parameters handed to SetScanParameters.
func (r *Radio) Params() device.ScanParameters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// Sessions counts the scans started so far.
func (r *Radio) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions
}

// SetScanParameters implements device.Radio
func (r *Radio) SetScanParameters(params device.ScanParameters) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	h := r.handler
	r.params = params
	r.mu.Unlock()

	if h != nil {
		h.OnScanParamSetComplete(r.paramStatus)
	}
	return nil
}

// StartScanning implements device.Radio
func (r *Radio) StartScanning(duration time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	h := r.handler
	if h == nil {
		r.mu.Unlock()
		return errors.New("no GAP event handler registered")
	}
	if r.running {
		r.mu.Unlock()
		h.OnScanStartComplete(device.StatusBusy)
		return nil
	}
	r.running = true
	r.sessions++
	session := r.sessions

	var ctx context.Context
	var cancel context.CancelFunc
	if duration > 0 {
		ctx, cancel = context.WithTimeout(r.ctx, duration)
	} else {
		ctx, cancel = context.WithCancel(r.ctx)
	}
	r.done = groutine.GoSafe(ctx, "replay-scan", r.logger, func(ctx context.Context) {
		defer cancel()
		r.replay(ctx, h, session)
	})
	r.mu.Unlock()
	return nil
}

func (r *Radio) replay(ctx context.Context, h device.GAPEventHandler, session int) {
	h.OnScanStartComplete(r.startStatus)

	delivered := 0
	if r.startStatus == device.StatusSuccess {
		delivered = r.deliver(ctx, h)
	} else {
		<-ctx.Done()
	}

	r.logger.WithFields(logrus.Fields{
		"session":   session,
		"delivered": delivered,
		"stalled":   r.stall,
	}).Debug("Replay session finished")

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	if !r.stall {
		h.OnScanComplete()
	}
}

func (r *Radio) deliver(ctx context.Context, h device.GAPEventHandler) int {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for i, f := range r.frames {
		if f.delay > 0 {
			timer.Reset(f.delay)
			select {
			case <-ctx.Done():
				return i
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return i
		}
		h.OnScanResult(f.result)
	}
	return len(r.frames)
}

// Close cancels the running session and waits for its goroutine.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	done := r.done
	r.mu.Unlock()

	r.cancel()
	if done != nil {
		<-done
	}
	return nil
}
