package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	a, err := ParseAddress("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", a.String())
	assert.Equal(t, uint64(0xAABBCCDDEEFF), a.Uint64())

	b, err := ParseAddress("AA-BB-CC-DD-EE-FF")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	for _, bad := range []string{"", "AA:BB:CC", "00:00:5e:00:53:01:02:03", "zz:bb:cc:dd:ee:ff"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, "%q MUST be rejected", bad)
	}
}

func TestAddressUint64Ordering(t *testing.T) {
	// Byte 0 is the most significant byte of the packed form
	assert.Equal(t, uint64(1)<<40, Address{0x01}.Uint64())
	assert.Equal(t, uint64(1), Address{0, 0, 0, 0, 0, 0x01}.Uint64())
}

func TestAddressType(t *testing.T) {
	tests := []struct {
		input    string
		expected AddressType
		str      string
	}{
		{"public", AddressPublic, "PUBLIC"},
		{"RANDOM", AddressRandom, "RANDOM"},
		{"rpa_public", AddressRPAPublic, "RPA_PUBLIC"},
		{"Rpa_Random", AddressRPARandom, "RPA_RANDOM"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			typ, err := ParseAddressType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, typ)
			assert.Equal(t, tt.str, typ.String())
		})
	}

	_, err := ParseAddressType("static")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", AddressType(9).String())
}
