// Package device holds the BLE advertisement model shared by every part of the
// tracker: addresses, UUIDs, raw scan results, the advertisement parser and
// decoded devices.
//
// It also defines the Radio and GAPEventHandler contracts that radio back ends
// implement:
//   - go-ble: a live HCI or CoreBluetooth controller
//   - replay: recorded advertisements read back from a YAML capture
//
// Parsing never fails. Malformed records are skipped or end the parse early,
// and the resulting Device is immutable once returned.
package device
