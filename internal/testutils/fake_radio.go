package testutils

import (
	"sync"
	"time"

	"github.com/srg/bletrack/internal/device"
	"github.com/stretchr/testify/mock"
)

// FakeRadio is a device.Radio driven by the test. Requests are recorded by
// mock.Mock; GAP events are delivered only when the test calls an Emit helper.
type FakeRadio struct {
	mock.Mock

	mu      sync.Mutex
	handler device.GAPEventHandler
}

// NewFakeRadio creates a FakeRadio with no expectations.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{}
}

// ExpectScanCycles makes SetScanParameters and StartScanning succeed and
// immediately report success, any number of times.
func (r *FakeRadio) ExpectScanCycles() *FakeRadio {
	r.On("SetScanParameters", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		r.EmitParamSetComplete(device.StatusSuccess)
	})
	r.On("StartScanning", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		r.EmitStartComplete(device.StatusSuccess)
	})
	return r
}

func (r *FakeRadio) RegisterHandler(h device.GAPEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *FakeRadio) SetScanParameters(params device.ScanParameters) error {
	return r.Called(params).Error(0)
}

func (r *FakeRadio) StartScanning(duration time.Duration) error {
	return r.Called(duration).Error(0)
}

// Handler returns the registered GAP handler.
func (r *FakeRadio) Handler() device.GAPEventHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

func (r *FakeRadio) EmitParamSetComplete(status device.Status) {
	r.Handler().OnScanParamSetComplete(status)
}

func (r *FakeRadio) EmitStartComplete(status device.Status) {
	r.Handler().OnScanStartComplete(status)
}

// EmitResult delivers one scan result through device.DispatchScanResult.
func (r *FakeRadio) EmitResult(result device.RawScanResult) {
	device.DispatchScanResult(r.Handler(), result)
}

// EmitAdvertisement builds and delivers a scan result for payload.
func (r *FakeRadio) EmitAdvertisement(addr string, rssi int, payload *PayloadBuilder) {
	r.EmitResult(payload.ScanResult(addr, rssi))
}

// EmitScanComplete ends the current session.
func (r *FakeRadio) EmitScanComplete() {
	r.EmitResult(device.RawScanResult{SearchEvent: device.SearchInquiryComplete})
}
