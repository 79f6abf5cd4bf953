package device

import "time"

// GAPEventHandler receives the radio's asynchronous completion events.
//
// Implementations are called from the radio's own delivery context, which may
// be any goroutine, and must return without blocking.
type GAPEventHandler interface {
	OnScanParamSetComplete(status Status)
	OnScanStartComplete(status Status)
	OnScanResult(result RawScanResult)
	OnScanComplete()
}

// Radio is the scanning side of a BLE controller.
//
// SetScanParameters and StartScanning only submit requests; their outcome
// arrives later through the registered handler. An error returned directly
// means the request could not be submitted at all.
type Radio interface {
	RegisterHandler(h GAPEventHandler)
	SetScanParameters(params ScanParameters) error
	StartScanning(duration time.Duration) error
}

// DispatchScanResult routes a scan result delivery the way the controller
// reports it: an inquiry-complete result ends the session.
func DispatchScanResult(h GAPEventHandler, result RawScanResult) {
	switch result.SearchEvent {
	case SearchInquiryResult:
		h.OnScanResult(result)
	case SearchInquiryComplete:
		h.OnScanComplete()
	}
}
