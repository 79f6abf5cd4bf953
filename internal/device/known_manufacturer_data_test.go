package device_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIBeaconFromManufacturerData(t *testing.T) {
	proximity := uuid.MustParse("fda50693-a4e2-4fb1-afcf-c6eb07647825")
	payload := testutils.NewPayloadBuilder().WithIBeacon(proximity, 10, 7, -59).Build()
	dev := device.NewParser(nil).ParsePayload(payload)

	md := dev.ManufacturerData()
	require.Len(t, md, 1)
	require.True(t, md[0].UUID.Equal(device.UUIDFrom16(device.AppleCompanyID)))

	beacon, ok := device.IBeaconFromManufacturerData(md[0])
	require.True(t, ok, "a 23-byte Apple record MUST decode as iBeacon")
	assert.Equal(t, proximity, beacon.ProximityUUID())
	assert.Equal(t, "FD:A5:06:93:A4:E2:4F:B1:AF:CF:C6:EB:07:64:78:25", beacon.UUID().String())
	assert.Equal(t, uint16(10), beacon.Major)
	assert.Equal(t, uint16(7), beacon.Minor)
	assert.Equal(t, int8(-59), beacon.SignalPower)
	assert.Equal(t, uint8(0x02), beacon.SubType)
	assert.Equal(t, uint8(0x15), beacon.Length)
	assert.Equal(t, "Apple, Inc.", beacon.VendorName())

	parsed, err := device.ParseManufacturerData(md[0])
	require.NoError(t, err)
	assert.IsType(t, &device.IBeacon{}, parsed)
}

func TestIBeaconRejects(t *testing.T) {
	data := make([]byte, device.IBeaconDataLen)

	tests := []struct {
		name   string
		record device.ServiceData
	}{
		{"wrong length", device.ServiceData{UUID: device.UUIDFrom16(0x004C), Data: data[:22]}},
		{"unrelated company", device.ServiceData{UUID: device.UUIDFrom16(0x0159), Data: data}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := device.IBeaconFromManufacturerData(tt.record)
			assert.False(t, ok)
		})
	}
}

func TestIBeaconUsesBytePairMatch(t *testing.T) {
	// Company 0x0059 shares the 0x00 high byte with Apple and is accepted by the byte-pair match
	record := device.ServiceData{UUID: device.UUIDFrom16(0x0059), Data: make([]byte, device.IBeaconDataLen)}

	_, ok := device.IBeaconFromManufacturerData(record)
	assert.True(t, ok)
}

func TestParseManufacturerDataUnknownCompany(t *testing.T) {
	v, err := device.ParseManufacturerData(device.ServiceData{UUID: device.UUIDFrom16(0x0159), Data: []byte{1}})
	assert.NoError(t, err)
	assert.Nil(t, v)
}
