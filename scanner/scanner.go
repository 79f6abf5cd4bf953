package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/scanqueue"
	"golang.org/x/time/rate"
)

// LoopTimings controls the main loop cadence and the bounded waits of a drain.
type LoopTimings struct {
	Interval        time.Duration
	SnapshotTimeout time.Duration
	ResetTimeout    time.Duration
}

// DefaultLoopTimings returns the timings used when none are configured.
func DefaultLoopTimings() LoopTimings {
	return LoopTimings{
		Interval:        16 * time.Millisecond,
		SnapshotTimeout: 5 * time.Millisecond,
		ResetTimeout:    10 * time.Millisecond,
	}
}

// Restarter recovers a wedged radio stack, typically by restarting the process.
type Restarter func() error

// Option configures a Scanner.
type Option func(*Scanner)

// WithRestarter installs the hook run when the watchdog expires.
func WithRestarter(r Restarter) Option {
	return func(s *Scanner) { s.restarter = r }
}

// WithLoopTimings overrides DefaultLoopTimings.
func WithLoopTimings(t LoopTimings) Option {
	return func(s *Scanner) { s.timings = t }
}

// WithClock replaces time.Now for watchdog deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// WithOverflowWarnings limits how often a full or lossy queue is reported.
func WithOverflowWarnings(every time.Duration) Option {
	return func(s *Scanner) { s.overflowLimiter = rate.NewLimiter(rate.Every(every), 1) }
}

// Stats is a snapshot of the scanner counters.
type Stats struct {
	State    State
	Sessions int
	Reported int
	Queue    scanqueue.Metrics
}

// Scanner keeps a BLE scan running and hands every advertisement to the
// registered listeners.
//
// All methods except State and Stats belong to the main loop and must be
// called from a single goroutine. Radio events arrive on any goroutine through
// the handler registered in New and only touch the queue and atomic fields.
type Scanner struct {
	radio  device.Radio
	params device.ScanParameters
	logger *logrus.Logger
	parser *device.Parser

	queue     *scanqueue.Queue
	listeners *Registry
	dedup     *DedupCache

	timings         LoopTimings
	restarter       Restarter
	now             func() time.Time
	overflowLimiter *rate.Limiter

	state    atomic.Int32
	sessions atomic.Int64
	reported atomic.Int64

	deadline time.Time
	lastLost int64

	// Latched by the radio context, surfaced and cleared by the main loop.
	paramSetFailed atomic.Uint32
	startFailed    atomic.Uint32

	// startCompleted is set by a successful start-complete event.
	startCompleted atomic.Bool
}

// New creates a Scanner for radio and registers its event handler.
func New(radio device.Radio, params device.ScanParameters, logger *logrus.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}

	s := &Scanner{
		radio:           radio,
		params:          params,
		logger:          logger,
		parser:          device.NewParser(logger),
		queue:           scanqueue.New(),
		listeners:       NewRegistry(),
		dedup:           NewDedupCache(),
		timings:         DefaultLoopTimings(),
		now:             time.Now,
		overflowLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	radio.RegisterHandler(&radioEvents{s: s})
	return s
}

// Register adds a listener. Listeners must be registered before Run.
func (s *Scanner) Register(name string, l Listener) error {
	return s.listeners.Register(name, l)
}

// Listeners returns the registry.
func (s *Scanner) Listeners() *Registry {
	return s.listeners
}

// State returns the current session state. Safe from any goroutine.
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Stats returns the scanner counters. Safe from any goroutine.
func (s *Scanner) Stats() Stats {
	return Stats{
		State:    s.State(),
		Sessions: int(s.sessions.Load()),
		Reported: int(s.reported.Load()),
		Queue:    s.queue.Metrics(),
	}
}

// DumpConfig logs the scan parameters.
func (s *Scanner) DumpConfig() {
	s.logger.WithFields(logrus.Fields{
		"scan_duration": s.params.Duration,
		"scan_interval": fmt.Sprintf("%.1fms", float64(s.params.Interval)*0.625),
		"scan_window":   fmt.Sprintf("%.1fms", float64(s.params.Window)*0.625),
		"scan_type":     s.params.Type.String(),
		"listeners":     s.listeners.Names(),
	}).Info("BLE tracker configuration")
}

// Setup starts the first scan session.
func (s *Scanner) Setup() error {
	s.DumpConfig()
	return s.StartScan(true)
}

// StartScan begins a new scan session. Unless initial, listeners are told
// the previous session ended first. It fails with device.ErrScanInProgress
// while a session is running.
func (s *Scanner) StartScan(initial bool) error {
	if !s.queue.BeginSession() {
		s.logger.Warn("Cannot start scan!")
		return device.ErrScanInProgress
	}

	s.logger.Debug("Starting scan...")
	if !initial {
		s.listeners.NotifyScanEnd()
	}
	s.dedup.Reset()
	s.startCompleted.Store(false)
	s.setState(StateSettingParams)
	s.sessions.Add(1)

	if err := s.radio.SetScanParameters(s.params); err != nil {
		s.latch(&s.paramSetFailed, device.StatusOf(err))
	}
	if err := s.radio.StartScanning(s.params.Duration); err != nil {
		s.latch(&s.startFailed, device.StatusOf(err))
	}

	s.deadline = time.Time{}
	if s.params.Duration > 0 {
		s.deadline = s.now().Add(2 * s.params.Duration)
	}
	return nil
}

// Loop runs one main loop tick. It returns device.ErrRadioWedged once the
// watchdog has expired; the scanner stays failed afterwards.
func (s *Scanner) Loop() error {
	if s.State() == StateFailed {
		return device.ErrRadioWedged
	}

	if s.State() != StateIdle && s.queue.Ended() {
		s.setState(StateEnding)
		_ = s.StartScan(false)
	}

	if s.State() == StateSettingParams && s.startCompleted.Load() {
		s.setState(StateScanning)
	}

	s.drain()
	s.reportLatched()

	if !s.deadline.IsZero() && s.now().After(s.deadline) {
		return s.fail()
	}
	return nil
}

// Run starts scanning and ticks the main loop until ctx is done or the
// watchdog expires.
func (s *Scanner) Run(ctx context.Context) error {
	if err := s.Setup(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.timings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Loop(); err != nil {
				return err
			}
		}
	}
}

func (s *Scanner) drain() {
	n, err := s.queue.Drain(s.timings.SnapshotTimeout, s.timings.ResetTimeout, s.handleResult)
	if err != nil {
		s.logger.WithError(err).Debug("Scan queue busy")
	}

	lost := s.queue.Metrics().Lost()
	if n >= scanqueue.Capacity || lost > s.lastLost {
		if s.overflowLimiter.Allow() {
			s.logger.WithFields(logrus.Fields{
				"pending": n,
				"lost":    lost - s.lastLost,
			}).Warn("Too many BLE events to process. Some devices may not show up.")
			s.lastLost = lost
		}
	}
}

func (s *Scanner) handleResult(raw device.RawScanResult) {
	dev := s.parser.Parse(raw)
	if !s.listeners.Dispatch(dev) {
		s.reportDevice(dev)
	}
}

// reportDevice logs an unclaimed device once per session.
func (s *Scanner) reportDevice(dev *device.Device) {
	if !s.dedup.FirstSighting(dev.Address()) {
		return
	}
	s.reported.Add(1)

	fields := logrus.Fields{
		"address":      dev.AddressString(),
		"rssi":         dev.RSSI(),
		"address_type": dev.AddressType(),
	}
	if name := dev.Name(); name != "" {
		fields["name"] = name
	}
	if tx := dev.TxPowers(); len(tx) > 0 {
		fields["tx_powers"] = tx
	}
	s.logger.WithFields(fields).Debug("Found device")
}

func (s *Scanner) reportLatched() {
	if st := device.Status(s.paramSetFailed.Swap(0)); st.Failed() {
		s.logger.WithError(&device.StatusError{Op: "set scan parameters", Status: st}).Error("Scan set param failed")
	}
	if st := device.Status(s.startFailed.Swap(0)); st.Failed() {
		s.logger.WithError(&device.StatusError{Op: "start scanning", Status: st}).Error("Scan start failed")
	}
}

func (s *Scanner) fail() error {
	s.setState(StateFailed)
	s.logger.Warn("BLE scan never terminated, restarting to restore BLE stack...")

	if s.restarter != nil {
		if err := s.restarter(); err != nil {
			s.logger.WithError(err).Error("Restart failed")
			return errors.Join(device.ErrRadioWedged, err)
		}
	}
	return device.ErrRadioWedged
}

func (s *Scanner) latch(slot *atomic.Uint32, st device.Status) {
	if st.Failed() {
		slot.Store(uint32(st))
	}
}

func (s *Scanner) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.WithFields(logrus.Fields{"from": prev, "to": st}).Trace("Scan state changed")
	}
}

// radioEvents is the GAP handler handed to the radio. It runs in the radio's
// delivery context, so it only records: no logging, no blocking.
type radioEvents struct {
	s *Scanner
}

func (e *radioEvents) OnScanParamSetComplete(status device.Status) {
	e.s.latch(&e.s.paramSetFailed, status)
}

func (e *radioEvents) OnScanStartComplete(status device.Status) {
	e.s.latch(&e.s.startFailed, status)
	if !status.Failed() {
		e.s.startCompleted.Store(true)
	}
}

func (e *radioEvents) OnScanResult(result device.RawScanResult) {
	e.s.queue.Push(result)
}

func (e *radioEvents) OnScanComplete() {
	e.s.queue.SignalEnd()
}
