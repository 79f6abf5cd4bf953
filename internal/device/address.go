package device

import (
	"fmt"
	"net"
	"strings"
)

// AddressLen is the length of a Bluetooth device address.
const AddressLen = 6

// Address is a 48-bit Bluetooth device address, most significant byte first.
type Address [AddressLen]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (colon or dash separated).
func ParseAddress(s string) (Address, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid device address %q: %w", s, err)
	}
	if len(hw) != AddressLen {
		return Address{}, fmt.Errorf("invalid device address %q: expected %d bytes, got %d", s, AddressLen, len(hw))
	}
	var a Address
	copy(a[:], hw)
	return a, nil
}

// MustParseAddress is ParseAddress that panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String formats the address as upper-case colon separated hex.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Uint64 packs the address into the low 48 bits, a[0] being the most significant byte.
func (a Address) Uint64() uint64 {
	var u uint64
	for _, b := range a {
		u = u<<8 | uint64(b)
	}
	return u
}

// MarshalText renders the formatted address.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a formatted address.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AddressType tags how a device address was generated.
type AddressType uint8

const (
	AddressPublic AddressType = iota
	AddressRandom
	AddressRPAPublic
	AddressRPARandom
)

func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "PUBLIC"
	case AddressRandom:
		return "RANDOM"
	case AddressRPAPublic:
		return "RPA_PUBLIC"
	case AddressRPARandom:
		return "RPA_RANDOM"
	default:
		return "UNKNOWN"
	}
}

// ParseAddressType accepts public, random, rpa_public and rpa_random (any case).
func ParseAddressType(s string) (AddressType, error) {
	switch strings.ToLower(s) {
	case "public", "":
		return AddressPublic, nil
	case "random":
		return AddressRandom, nil
	case "rpa_public":
		return AddressRPAPublic, nil
	case "rpa_random":
		return AddressRPARandom, nil
	default:
		return AddressPublic, fmt.Errorf("invalid address type %q (must be public, random, rpa_public or rpa_random)", s)
	}
}
