package device

import (
	"fmt"
	"time"
)

const (
	// MaxAdvDataLen is the legacy advertising data limit; the scan response has the same limit.
	MaxAdvDataLen = 31

	// MaxPayloadLen bounds a RawScanResult payload: advertising data plus scan response.
	MaxPayloadLen = 2 * MaxAdvDataLen
)

// SearchEvent distinguishes scan result deliveries.
type SearchEvent uint8

const (
	// SearchInquiryResult carries one advertisement.
	SearchInquiryResult SearchEvent = iota
	// SearchInquiryComplete marks the end of the scan window.
	SearchInquiryComplete
)

// RawScanResult is one advertisement as delivered by the radio. It is a plain
// value with a fixed-size payload so it can be copied out of the delivery
// context without referencing radio-owned memory.
type RawScanResult struct {
	Address     Address
	AddressType AddressType
	RSSI        int
	SearchEvent SearchEvent
	AdvDataLen  uint8
	ScanRspLen  uint8
	Payload     [MaxPayloadLen]byte
}

// NewRawScanResult copies the advertising data and scan response into a
// RawScanResult, truncating each part to MaxAdvDataLen.
func NewRawScanResult(addr Address, typ AddressType, rssi int, adv, scanRsp []byte) RawScanResult {
	r := RawScanResult{
		Address:     addr,
		AddressType: typ,
		RSSI:        rssi,
		SearchEvent: SearchInquiryResult,
	}
	if len(adv) > MaxAdvDataLen {
		adv = adv[:MaxAdvDataLen]
	}
	if len(scanRsp) > MaxAdvDataLen {
		scanRsp = scanRsp[:MaxAdvDataLen]
	}
	n := copy(r.Payload[:], adv)
	copy(r.Payload[n:], scanRsp)
	r.AdvDataLen = uint8(len(adv))
	r.ScanRspLen = uint8(len(scanRsp))
	return r
}

// Len is the declared payload length, capped at MaxPayloadLen.
func (r *RawScanResult) Len() int {
	n := int(r.AdvDataLen) + int(r.ScanRspLen)
	if n > MaxPayloadLen {
		n = MaxPayloadLen
	}
	return n
}

// Data returns the declared part of the payload.
func (r *RawScanResult) Data() []byte {
	return r.Payload[:r.Len()]
}

// ScanType selects active (with scan requests) or passive scanning.
type ScanType uint8

const (
	ScanPassive ScanType = iota
	ScanActive
)

func (t ScanType) String() string {
	if t == ScanActive {
		return "ACTIVE"
	}
	return "PASSIVE"
}

// FilterPolicy selects which advertisers the controller reports.
type FilterPolicy uint8

const (
	FilterAllowAll FilterPolicy = iota
	FilterWhitelistOnly
)

func (p FilterPolicy) String() string {
	if p == FilterWhitelistOnly {
		return "WHITELIST_ONLY"
	}
	return "ALLOW_ALL"
}

// ParseFilterPolicy accepts allow_all and whitelist_only.
func ParseFilterPolicy(s string) (FilterPolicy, error) {
	switch s {
	case "", "allow_all":
		return FilterAllowAll, nil
	case "whitelist_only":
		return FilterWhitelistOnly, nil
	default:
		return FilterAllowAll, fmt.Errorf("invalid filter policy %q (must be allow_all or whitelist_only)", s)
	}
}

// ScanIntervalUnit is the controller time unit for scan interval and window.
const ScanIntervalUnit = 625 * time.Microsecond

// ScanParameters are handed to the radio before every scan session.
// Interval and Window are in ScanIntervalUnit steps; ranges are not checked here.
type ScanParameters struct {
	Type           ScanType
	OwnAddressType AddressType
	FilterPolicy   FilterPolicy
	Interval       uint16
	Window         uint16
	Duration       time.Duration
}

// IntervalDuration converts Interval to wall time.
func (p ScanParameters) IntervalDuration() time.Duration {
	return time.Duration(p.Interval) * ScanIntervalUnit
}

// WindowDuration converts Window to wall time.
func (p ScanParameters) WindowDuration() time.Duration {
	return time.Duration(p.Window) * ScanIntervalUnit
}

// DefaultScanParameters is a passive 300 s scan with a 200 ms interval and 30 ms window.
func DefaultScanParameters() ScanParameters {
	return ScanParameters{
		Type:     ScanPassive,
		Interval: 0x0140,
		Window:   0x0030,
		Duration: 300 * time.Second,
	}
}
