package device

import (
	"errors"
	"fmt"
)

// Status is a completion code reported by the radio for asynchronous requests.
type Status uint8

const (
	StatusSuccess      Status = 0
	StatusFail         Status = 1
	StatusNotReady     Status = 2
	StatusNoMem        Status = 3
	StatusBusy         Status = 4
	StatusUnsupported  Status = 6
	StatusParamInvalid Status = 7
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	case StatusNotReady:
		return "not ready"
	case StatusNoMem:
		return "no memory"
	case StatusBusy:
		return "busy"
	case StatusUnsupported:
		return "unsupported"
	case StatusParamInvalid:
		return "invalid parameter"
	default:
		return fmt.Sprintf("status %d", uint8(s))
	}
}

// Failed reports whether s is anything but StatusSuccess.
func (s Status) Failed() bool {
	return s != StatusSuccess
}

// Sentinel errors
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
	ErrTimeout      = errors.New("timeout")

	// ErrPermissionDenied means the process may not open the controller.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrScanInProgress is returned when a scan is requested while one is running.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrRadioWedged is the single fatal condition: a scan session did not end
	// before its watchdog deadline and only a restart can recover the stack.
	ErrRadioWedged = errors.New("BLE scan never terminated, radio stack presumed wedged")
)

// StatusError is an advisory failure of an asynchronous radio request.
type StatusError struct {
	Op     string // "set scan parameters", "start scanning"
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", e.Op, e.Status, uint8(e.Status))
}

// StatusOf maps an error to the radio status that best describes it.
func StatusOf(err error) Status {
	var serr *StatusError
	switch {
	case err == nil:
		return StatusSuccess
	case errors.As(err, &serr):
		return serr.Status
	case errors.Is(err, ErrBluetoothOff):
		return StatusNotReady
	case errors.Is(err, ErrScanInProgress):
		return StatusBusy
	case errors.Is(err, ErrUnsupported):
		return StatusUnsupported
	default:
		return StatusFail
	}
}
