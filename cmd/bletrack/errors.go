package main

import (
	"errors"
	"strings"

	"github.com/srg/bletrack/internal/device"
)

// Command-level errors
var (
	// ErrInvalidFormat is returned for an unknown --format value.
	ErrInvalidFormat = errors.New("invalid output format")
)

// FormatUserError turns an error into a one-line message with a hint for the
// failures a user can act on.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	var hint string
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		hint = "make sure Bluetooth is enabled and the adapter is present"
	case errors.Is(err, device.ErrPermissionDenied):
		hint = "run as root or grant the binary CAP_NET_ADMIN and CAP_NET_RAW"
	case errors.Is(err, device.ErrUnsupported):
		hint = "this Bluetooth adapter or platform does not support LE scanning"
	case errors.Is(err, device.ErrRadioWedged):
		hint = "the radio stopped responding; rerun without --no-restart to recover automatically"
	case errors.Is(err, ErrInvalidFormat):
		hint = "use --format table or --format json"
	}

	if hint == "" {
		return msg
	}
	return strings.TrimSpace(msg) + " (" + hint + ")"
}
