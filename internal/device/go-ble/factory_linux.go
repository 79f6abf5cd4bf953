//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/srg/bletrack/internal/device"
)

// DeviceFactory opens the HCI device with the scan timing baked in; BlueZ only
// applies LE scan parameters when the device is set up.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(params device.ScanParameters) (ble.Device, error) {
	return linux.NewDevice(ble.OptScanParams(hciScanParameters(params)))
}

func hciScanParameters(params device.ScanParameters) cmd.LESetScanParameters {
	return cmd.LESetScanParameters{
		LEScanType:           uint8(params.Type),
		LEScanInterval:       params.Interval,
		LEScanWindow:         params.Window,
		OwnAddressType:       uint8(params.OwnAddressType),
		ScanningFilterPolicy: uint8(params.FilterPolicy),
	}
}
