package device

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDWidth is the size of a Bluetooth UUID in bits.
type UUIDWidth int

const (
	UUIDWidth16  UUIDWidth = 16
	UUIDWidth32  UUIDWidth = 32
	UUIDWidth128 UUIDWidth = 128
)

// Len returns the width in bytes.
func (w UUIDWidth) Len() int {
	return int(w) / 8
}

// bluetoothBase is the Bluetooth Base UUID 00000000-0000-1000-8000-00805F9B34FB.
var bluetoothBase = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// UUID is a 16, 32 or 128-bit Bluetooth identifier.
//
// Bytes are kept in wire (little-endian) order regardless of width, which is
// the order Contains slides over.
type UUID struct {
	width UUIDWidth
	b     [16]byte
}

// UUIDFrom16 builds a 16-bit UUID.
func UUIDFrom16(v uint16) UUID {
	u := UUID{width: UUIDWidth16}
	binary.LittleEndian.PutUint16(u.b[:2], v)
	return u
}

// UUIDFrom32 builds a 32-bit UUID.
func UUIDFrom32(v uint32) UUID {
	u := UUID{width: UUIDWidth32}
	binary.LittleEndian.PutUint32(u.b[:4], v)
	return u
}

// UUIDFromBytes builds a UUID from 2, 4 or 16 bytes in wire order.
func UUIDFromBytes(raw []byte) (UUID, error) {
	switch len(raw) {
	case 2:
		return UUIDFrom16(binary.LittleEndian.Uint16(raw)), nil
	case 4:
		return UUIDFrom32(binary.LittleEndian.Uint32(raw)), nil
	case 16:
		u := UUID{width: UUIDWidth128}
		copy(u.b[:], raw)
		return u, nil
	default:
		return UUID{}, fmt.Errorf("invalid UUID length %d: must be 2, 4 or 16 bytes", len(raw))
	}
}

// MustUUIDFromBytes is UUIDFromBytes that panics on a bad length.
func MustUUIDFromBytes(raw []byte) UUID {
	u, err := UUIDFromBytes(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// ParseUUID parses the textual forms of a UUID:
//
//   - canonical colon groups as produced by String ("00:4C", "01:02:...:10")
//   - short hex, most significant byte first, with optional 0x prefix ("180F", "0x0000FEAA")
//   - standard 128-bit form ("0000180f-0000-1000-8000-00805f9b34fb")
func ParseUUID(s string) (UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return UUID{}, fmt.Errorf("empty UUID")
	}

	if strings.Contains(s, ":") {
		raw, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
		if err != nil {
			return UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		// 16/32-bit canonical form prints the most significant byte first
		if len(raw) == 2 || len(raw) == 4 {
			reverse(raw)
		}
		return UUIDFromBytes(raw)
	}

	short := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(short) == 4 || len(short) == 8 {
		raw, err := hex.DecodeString(short)
		if err != nil {
			return UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		reverse(raw)
		return UUIDFromBytes(raw)
	}

	std, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return UUIDFromStandard(std), nil
}

// MustParseUUID is ParseUUID that panics on error.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// UUIDFromStandard converts an RFC 4122 UUID into a 128-bit Bluetooth UUID.
func UUIDFromStandard(std uuid.UUID) UUID {
	u := UUID{width: UUIDWidth128}
	copy(u.b[:], std[:])
	reverse(u.b[:])
	return u
}

// Width reports the UUID width; the zero UUID has width 0.
func (u UUID) Width() UUIDWidth {
	return u.width
}

// IsZero reports whether u was never initialised.
func (u UUID) IsZero() bool {
	return u.width == 0
}

// Bytes returns a copy of the UUID in wire order.
func (u UUID) Bytes() []byte {
	out := make([]byte, u.width.Len())
	copy(out, u.b[:u.width.Len()])
	return out
}

// Uint16 returns the value of a 16-bit UUID.
func (u UUID) Uint16() (uint16, bool) {
	if u.width != UUIDWidth16 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(u.b[:2]), true
}

// Uint32 returns the value of a 16 or 32-bit UUID.
func (u UUID) Uint32() (uint32, bool) {
	switch u.width {
	case UUIDWidth16:
		return uint32(binary.LittleEndian.Uint16(u.b[:2])), true
	case UUIDWidth32:
		return binary.LittleEndian.Uint32(u.b[:4]), true
	default:
		return 0, false
	}
}

// Equal reports whether both UUIDs have the same width and value.
func (u UUID) Equal(other UUID) bool {
	return u.width == other.width && u.b == other.b
}

// Contains reports whether the byte pair (data1, data2) occurs in the UUID.
//
// This is not an equality test. A 16-bit UUID matches when either its low byte
// equals data1 or its high byte equals data2. Wider UUIDs match when data1 is
// immediately followed by data2 anywhere in the wire-order bytes.
func (u UUID) Contains(data1, data2 byte) bool {
	switch u.width {
	case UUIDWidth16:
		return u.b[1] == data2 || u.b[0] == data1
	case UUIDWidth32, UUIDWidth128:
		n := u.width.Len()
		for i := 0; i < n-1; i++ {
			if u.b[i] == data1 && u.b[i+1] == data2 {
				return true
			}
		}
	}
	return false
}

// String renders colon separated upper-case hex byte groups, one per byte.
// 16 and 32-bit values print most significant byte first; 128-bit values
// print in wire order.
func (u UUID) String() string {
	n := u.width.Len()
	if n == 0 {
		return ""
	}
	groups := make([]string, n)
	for i := 0; i < n; i++ {
		idx := i
		if u.width != UUIDWidth128 {
			idx = n - 1 - i
		}
		groups[i] = fmt.Sprintf("%02X", u.b[idx])
	}
	return strings.Join(groups, ":")
}

// Standard expands the UUID onto the Bluetooth Base UUID.
func (u UUID) Standard() uuid.UUID {
	switch u.width {
	case UUIDWidth16, UUIDWidth32:
		v, _ := u.Uint32()
		std := bluetoothBase
		binary.BigEndian.PutUint32(std[:4], v)
		return std
	case UUIDWidth128:
		var std uuid.UUID
		copy(std[:], u.b[:])
		reverse(std[:])
		return std
	default:
		return uuid.Nil
	}
}

// MarshalText renders the canonical form.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText accepts any form understood by ParseUUID.
func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := ParseUUID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
