package device

import (
	"encoding/hex"
	"encoding/json"
)

// ServiceData pairs a UUID with an opaque payload. It carries both
// manufacturer-specific data (the UUID being the company identifier) and
// service data records.
type ServiceData struct {
	UUID UUID
	Data []byte
}

// MarshalJSON renders the payload as hex.
func (d ServiceData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UUID string `json:"uuid"`
		Data string `json:"data"`
	}{
		UUID: d.UUID.String(),
		Data: hex.EncodeToString(d.Data),
	})
}

func (d ServiceData) clone() ServiceData {
	return ServiceData{UUID: d.UUID, Data: append([]byte(nil), d.Data...)}
}

// Device is the parsed form of one scan result. It is built once by Parser
// and never modified afterwards; accessors hand out copies.
type Device struct {
	address          Address
	addressType      AddressType
	rssi             int
	name             string
	txPowers         []int8
	appearance       *uint16
	adFlag           *uint8
	serviceUUIDs     []UUID
	manufacturerData []ServiceData
	serviceData      []ServiceData
}

func (d *Device) Address() Address         { return d.address }
func (d *Device) AddressString() string    { return d.address.String() }
func (d *Device) AddressUint64() uint64    { return d.address.Uint64() }
func (d *Device) AddressType() AddressType { return d.addressType }
func (d *Device) RSSI() int                { return d.rssi }
func (d *Device) Name() string             { return d.name }
func (d *Device) TxPowers() []int8         { return append([]int8(nil), d.txPowers...) }
func (d *Device) ServiceUUIDs() []UUID     { return append([]UUID(nil), d.serviceUUIDs...) }

// Appearance returns the last appearance value advertised, if any.
func (d *Device) Appearance() (uint16, bool) {
	if d.appearance == nil {
		return 0, false
	}
	return *d.appearance, true
}

// AdFlag returns the last flags byte advertised, if any.
func (d *Device) AdFlag() (uint8, bool) {
	if d.adFlag == nil {
		return 0, false
	}
	return *d.adFlag, true
}

// ManufacturerData returns the manufacturer-specific records in advertised order.
func (d *Device) ManufacturerData() []ServiceData {
	return cloneServiceData(d.manufacturerData)
}

// ServiceData returns the service data records in advertised order.
func (d *Device) ServiceData() []ServiceData {
	return cloneServiceData(d.serviceData)
}

// HasServiceUUID reports whether u was advertised.
func (d *Device) HasServiceUUID(u UUID) bool {
	for _, s := range d.serviceUUIDs {
		if s.Equal(u) {
			return true
		}
	}
	return false
}

// MarshalJSON renders the device for CLI output.
func (d *Device) MarshalJSON() ([]byte, error) {
	type jsonDevice struct {
		Address          string        `json:"address"`
		AddressType      string        `json:"address_type"`
		RSSI             int           `json:"rssi"`
		Name             string        `json:"name,omitempty"`
		TxPowers         []int8        `json:"tx_powers,omitempty"`
		Appearance       *uint16       `json:"appearance,omitempty"`
		AdFlag           *uint8        `json:"ad_flag,omitempty"`
		ServiceUUIDs     []UUID        `json:"service_uuids,omitempty"`
		ManufacturerData []ServiceData `json:"manufacturer_data,omitempty"`
		ServiceData      []ServiceData `json:"service_data,omitempty"`
	}
	return json.Marshal(jsonDevice{
		Address:          d.address.String(),
		AddressType:      d.addressType.String(),
		RSSI:             d.rssi,
		Name:             d.name,
		TxPowers:         d.txPowers,
		Appearance:       d.appearance,
		AdFlag:           d.adFlag,
		ServiceUUIDs:     d.serviceUUIDs,
		ManufacturerData: d.manufacturerData,
		ServiceData:      d.serviceData,
	})
}

func cloneServiceData(in []ServiceData) []ServiceData {
	if in == nil {
		return nil
	}
	out := make([]ServiceData, len(in))
	for i, sd := range in {
		out[i] = sd.clone()
	}
	return out
}
