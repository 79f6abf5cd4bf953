//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/srg/bletrack/internal/device"
)

// DeviceFactory opens the CoreBluetooth central. CoreBluetooth picks its own
// scan timing, so params are ignored.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(_ device.ScanParameters) (ble.Device, error) {
	return darwin.NewDevice()
}
