package device

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ManufacturerDataParser decodes the payload of a manufacturer-specific record
// (the bytes after the company identifier).
type ManufacturerDataParser func([]byte) (interface{}, error)

// VendorInfo is implemented by decoded manufacturer payloads.
type VendorInfo interface {
	VendorID() uint16
	VendorName() string
}

type manufacturerDecoder struct {
	match func(UUID) bool
	parse ManufacturerDataParser
}

// knownManufacturers is tried in order; the first matching decoder wins.
var knownManufacturers = []manufacturerDecoder{
	{match: isAppleCompanyID, parse: parseIBeacon},
}

// ParseManufacturerData decodes a manufacturer-specific record with the first
// decoder whose company identifier matches. It returns (nil, nil) when no
// decoder applies.
func ParseManufacturerData(record ServiceData) (interface{}, error) {
	for _, d := range knownManufacturers {
		if d.match(record.UUID) {
			return d.parse(record.Data)
		}
	}
	return nil, nil
}

// -----------------------------------------------------------------------------
// Apple iBeacon
// -----------------------------------------------------------------------------

// AppleCompanyID is the Bluetooth SIG company identifier of Apple, Inc.
const AppleCompanyID uint16 = 0x004C

// IBeaconDataLen is the length of an iBeacon payload after the company identifier.
const IBeaconDataLen = 23

// isAppleCompanyID uses the byte-pair match rather than equality, so any
// 16-bit identifier with low byte 0x4C or high byte 0x00 is accepted.
func isAppleCompanyID(u UUID) bool {
	return u.Contains(0x4C, 0x00)
}

// IBeacon is a decoded iBeacon advertisement.
//
// Format (23 bytes):
//   - Byte 0:      sub type (0x02)
//   - Byte 1:      remaining length (0x15)
//   - Bytes 2-17:  proximity UUID
//   - Bytes 18-19: major, big endian
//   - Bytes 20-21: minor, big endian
//   - Byte 22:     measured power at 1 m, signed dBm
type IBeacon struct {
	SubType       uint8
	Length        uint8
	proximityUUID [16]byte
	Major         uint16
	Minor         uint16
	SignalPower   int8
}

// VendorID implements VendorInfo
func (b *IBeacon) VendorID() uint16 { return AppleCompanyID }

// VendorName implements VendorInfo
func (b *IBeacon) VendorName() string { return "Apple, Inc." }

// UUID returns the proximity UUID as a 128-bit Bluetooth UUID, bytes as transmitted.
func (b *IBeacon) UUID() UUID {
	return MustUUIDFromBytes(b.proximityUUID[:])
}

// ProximityUUID returns the proximity UUID in standard form.
func (b *IBeacon) ProximityUUID() uuid.UUID {
	return uuid.UUID(b.proximityUUID)
}

// IBeaconFromManufacturerData decodes an iBeacon, returning false if the
// record is not one.
func IBeaconFromManufacturerData(record ServiceData) (*IBeacon, bool) {
	if !isAppleCompanyID(record.UUID) {
		return nil, false
	}
	beacon, err := parseIBeacon(record.Data)
	if err != nil {
		return nil, false
	}
	return beacon.(*IBeacon), true
}

func parseIBeacon(data []byte) (interface{}, error) {
	if len(data) != IBeaconDataLen {
		return nil, fmt.Errorf("ibeacon data must be %d bytes, got %d", IBeaconDataLen, len(data))
	}
	b := &IBeacon{
		SubType:     data[0],
		Length:      data[1],
		Major:       binary.BigEndian.Uint16(data[18:20]),
		Minor:       binary.BigEndian.Uint16(data[20:22]),
		SignalPower: int8(data[22]),
	}
	copy(b.proximityUUID[:], data[2:18])
	return b, nil
}
