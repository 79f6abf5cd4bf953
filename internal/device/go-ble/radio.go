package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/groutine"
)

// StartGrace is how long a scan must run without failing before its start is
// reported as successful. The first advertisement reports it earlier.
var StartGrace = 100 * time.Millisecond

// ErrClosed is returned by requests made after Close.
var ErrClosed = errors.New("radio closed")

// scanDevice is the part of ble.Device the radio needs.
type scanDevice interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Stop() error
}

// opener opens a scan device configured with params.
type opener func(params device.ScanParameters) (scanDevice, error)

// Radio implements device.Radio on top of a go-ble device.
//
// go-ble takes scan timing as a device option, so SetScanParameters reopens
// the device when the timing changes. Each StartScanning runs one
// ble.Device.Scan on a named goroutine and translates its lifecycle into GAP
// events.
type Radio struct {
	dev    scanDevice
	open   opener
	opened device.ScanParameters
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handler device.GAPEventHandler
	params  device.ScanParameters
	running bool
	closed  bool
	done    <-chan struct{}
}

// NewRadio opens the platform BLE device through DeviceFactory with the
// default scan parameters.
func NewRadio(logger *logrus.Logger) (*Radio, error) {
	return newRadioWithOpener(func(params device.ScanParameters) (scanDevice, error) {
		return DeviceFactory(params)
	}, logger)
}

func newRadioWithOpener(open opener, logger *logrus.Logger) (*Radio, error) {
	params := device.DefaultScanParameters()
	dev, err := open(params)
	if err != nil {
		return nil, NormalizeError(err)
	}
	r := newRadio(dev, logger)
	r.open = open
	r.opened = params
	return r, nil
}

// newRadio wraps an already opened device that is never reopened.
func newRadio(dev scanDevice, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Radio{
		dev:    dev,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterHandler implements device.Radio
func (r *Radio) RegisterHandler(h device.GAPEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Params returns the last accepted scan parameters.
func (r *Radio) Params() device.ScanParameters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// SetScanParameters implements device.Radio. A timing change reopens the
// device; it is refused with StatusBusy while a scan is running.
func (r *Radio) SetScanParameters(params device.ScanParameters) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	h := r.handler
	if h == nil {
		r.mu.Unlock()
		return fmt.Errorf("no GAP event handler registered")
	}

	status := device.StatusSuccess
	if r.open != nil && (r.dev == nil || !sameTiming(r.opened, params)) {
		status = r.reopenLocked(params)
	}
	if status == device.StatusSuccess {
		r.params = params
	}
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"scan_type": params.Type,
		"interval":  params.IntervalDuration(),
		"window":    params.WindowDuration(),
		"status":    status,
	}).Debug("Scan parameters set")

	h.OnScanParamSetComplete(status)
	return nil
}

// reopenLocked replaces the device with one opened for params. The old device
// is stopped first since HCI sockets are exclusive. Must hold r.mu.
func (r *Radio) reopenLocked(params device.ScanParameters) device.Status {
	if r.running {
		return device.StatusBusy
	}
	if r.dev != nil {
		if err := r.dev.Stop(); err != nil {
			r.logger.WithError(NormalizeError(err)).Warn("Failed to stop BLE device before reopening")
		}
		r.dev = nil
	}

	dev, err := r.open(params)
	if err != nil {
		err = NormalizeError(err)
		r.logger.WithError(err).Warn("Failed to reopen BLE device with new scan parameters")
		return device.StatusOf(err)
	}
	r.dev = dev
	r.opened = params
	return device.StatusSuccess
}

func sameTiming(a, b device.ScanParameters) bool {
	return a.Type == b.Type &&
		a.OwnAddressType == b.OwnAddressType &&
		a.FilterPolicy == b.FilterPolicy &&
		a.Interval == b.Interval &&
		a.Window == b.Window
}

// StartScanning implements device.Radio. A duration of zero or less scans
// until Close.
func (r *Radio) StartScanning(duration time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	h := r.handler
	if h == nil {
		r.mu.Unlock()
		return fmt.Errorf("no GAP event handler registered")
	}
	if r.running {
		r.mu.Unlock()
		h.OnScanStartComplete(device.StatusBusy)
		return nil
	}
	dev := r.dev
	r.running = true

	var ctx context.Context
	var cancel context.CancelFunc
	if duration > 0 {
		ctx, cancel = context.WithTimeout(r.ctx, duration)
	} else {
		ctx, cancel = context.WithCancel(r.ctx)
	}
	r.done = groutine.GoSafe(ctx, "goble-scan", r.logger, func(ctx context.Context) {
		defer cancel()
		r.scan(ctx, dev, h)
	})
	r.mu.Unlock()
	return nil
}

func (r *Radio) scan(ctx context.Context, dev scanDevice, h device.GAPEventHandler) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		h.OnScanComplete()
	}()

	if dev == nil {
		h.OnScanStartComplete(device.StatusNotReady)
		r.logger.Warn("BLE device unavailable, waiting for the next session")
		<-ctx.Done()
		return
	}

	var once sync.Once
	var startedOK bool
	reportStart := func(status device.Status) {
		once.Do(func() {
			startedOK = status == device.StatusSuccess
			h.OnScanStartComplete(status)
		})
	}
	grace := time.AfterFunc(StartGrace, func() { reportStart(device.StatusSuccess) })
	defer grace.Stop()

	var results atomic.Int64
	handler := func(adv ble.Advertisement) {
		reportStart(device.StatusSuccess)
		raw, err := toRawScanResult(adv)
		if err != nil {
			r.logger.WithError(err).Trace("Skipping advertisement")
			return
		}
		results.Add(1)
		h.OnScanResult(raw)
	}

	r.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("BLE scan started")
	err := dev.Scan(ctx, true, handler)
	grace.Stop()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = NormalizeError(err)
		reportStart(device.StatusOf(err))
		r.logger.WithError(err).WithField("started", startedOK).Warn("BLE scan aborted")

		// the session still ends on schedule
		<-ctx.Done()
	} else {
		reportStart(device.StatusSuccess)
	}

	r.logger.WithField("results", results.Load()).Debug("BLE scan finished")
}

// Close cancels a running scan, waits for it to complete and stops the device.
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

	r.mu.Lock()
	dev := r.dev
	r.dev = nil
	r.mu.Unlock()
	if dev == nil {
		return nil
	}
	return NormalizeError(dev.Stop())
}
