package testutils

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/srg/bletrack/internal/device"
)

// PayloadBuilder builds raw advertisement payloads for tests.
// It provides a fluent API over length-type-value records; Raw allows
// deliberately malformed bytes.
type PayloadBuilder struct {
	b []byte
}

// NewPayloadBuilder creates an empty PayloadBuilder.
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

// Record appends a well-formed record of the given type.
func (p *PayloadBuilder) Record(typ device.ADType, value ...byte) *PayloadBuilder {
	p.b = device.AppendRecord(p.b, typ, value)
	return p
}

// Raw appends bytes verbatim.
func (p *PayloadBuilder) Raw(b ...byte) *PayloadBuilder {
	p.b = append(p.b, b...)
	return p
}

// WithFlags appends a Flags record.
func (p *PayloadBuilder) WithFlags(flags byte) *PayloadBuilder {
	return p.Record(device.ADFlags, flags)
}

// WithName appends a Complete Local Name record.
func (p *PayloadBuilder) WithName(name string) *PayloadBuilder {
	return p.Record(device.ADCompleteName, []byte(name)...)
}

// WithTxPower appends a TX Power Level record.
func (p *PayloadBuilder) WithTxPower(dbm int8) *PayloadBuilder {
	return p.Record(device.ADTxPower, byte(dbm))
}

// WithAppearance appends an Appearance record.
func (p *PayloadBuilder) WithAppearance(v uint16) *PayloadBuilder {
	return p.Record(device.ADAppearance, le16(v)...)
}

// WithServices16 appends a Complete List of 16-bit Service UUIDs.
func (p *PayloadBuilder) WithServices16(uuids ...uint16) *PayloadBuilder {
	var v []byte
	for _, u := range uuids {
		v = append(v, le16(u)...)
	}
	return p.Record(device.ADCompleteUUID16, v...)
}

// WithServices32 appends a Complete List of 32-bit Service UUIDs.
func (p *PayloadBuilder) WithServices32(uuids ...uint32) *PayloadBuilder {
	var v []byte
	for _, u := range uuids {
		v = binary.LittleEndian.AppendUint32(v, u)
	}
	return p.Record(device.ADCompleteUUID32, v...)
}

// WithService128 appends a Complete List of 128-bit Service UUIDs with one entry.
func (p *PayloadBuilder) WithService128(u device.UUID) *PayloadBuilder {
	return p.Record(device.ADCompleteUUID128, u.Bytes()...)
}

// WithManufacturerData appends a Manufacturer Specific Data record.
func (p *PayloadBuilder) WithManufacturerData(companyID uint16, data ...byte) *PayloadBuilder {
	return p.Record(device.ADManufacturerSpecific, append(le16(companyID), data...)...)
}

// WithServiceData16 appends a Service Data - 16-bit UUID record.
func (p *PayloadBuilder) WithServiceData16(u uint16, data ...byte) *PayloadBuilder {
	return p.Record(device.ADServiceData16, append(le16(u), data...)...)
}

// WithServiceData32 appends a Service Data - 32-bit UUID record.
func (p *PayloadBuilder) WithServiceData32(u uint32, data ...byte) *PayloadBuilder {
	return p.Record(device.ADServiceData32, append(binary.LittleEndian.AppendUint32(nil, u), data...)...)
}

// WithServiceData128 appends a Service Data - 128-bit UUID record.
func (p *PayloadBuilder) WithServiceData128(u device.UUID, data ...byte) *PayloadBuilder {
	return p.Record(device.ADServiceData128, append(u.Bytes(), data...)...)
}

// WithIBeacon appends an Apple iBeacon manufacturer record.
func (p *PayloadBuilder) WithIBeacon(proximity [16]byte, major, minor uint16, power int8) *PayloadBuilder {
	data := []byte{0x02, 0x15}
	data = append(data, proximity[:]...)
	data = binary.BigEndian.AppendUint16(data, major)
	data = binary.BigEndian.AppendUint16(data, minor)
	data = append(data, byte(power))
	return p.WithManufacturerData(device.AppleCompanyID, data...)
}

// Build returns a copy of the payload.
func (p *PayloadBuilder) Build() []byte {
	return append([]byte(nil), p.b...)
}

// Hex returns the payload as lower-case hex.
func (p *PayloadBuilder) Hex() string {
	return hex.EncodeToString(p.b)
}

// ScanResult wraps the payload into a RawScanResult. Payloads longer than the
// advertising data limit spill into the scan response.
func (p *PayloadBuilder) ScanResult(addr string, rssi int) device.RawScanResult {
	adv, rsp := p.b, []byte(nil)
	if len(adv) > device.MaxAdvDataLen {
		adv, rsp = p.b[:device.MaxAdvDataLen], p.b[device.MaxAdvDataLen:]
	}
	return device.NewRawScanResult(device.MustParseAddress(addr), device.AddressPublic, rssi, adv, rsp)
}

// MustHex decodes a hex string, ignoring spaces and colons.
func MustHex(s string) []byte {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("MustHex: %v", err))
	}
	return b
}

func le16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}
