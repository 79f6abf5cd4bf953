// Package replay is a radio that plays back recorded advertisements from a
// YAML capture. It stands in for a controller in tests and in
// `bletrack track --replay`.
package replay

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/srg/bletrack/internal/device"
	"gopkg.in/yaml.v3"
)

// Entry is one recorded advertisement.
type Entry struct {
	Address      string        `yaml:"address"`
	AddressType  string        `yaml:"address_type,omitempty"`
	RSSI         int           `yaml:"rssi"`
	Adv          string        `yaml:"adv"`
	ScanResponse string        `yaml:"scan_response,omitempty"`
	Delay        time.Duration `yaml:"delay,omitempty"` // wait before delivering this entry
}

// Capture is a named list of advertisements.
type Capture struct {
	Name           string  `yaml:"name,omitempty"`
	Advertisements []Entry `yaml:"advertisements"`
}

type frame struct {
	delay  time.Duration
	result device.RawScanResult
}

// LoadCapture reads a capture file.
func LoadCapture(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}
	c, err := ParseCapture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCapture decodes and validates a YAML capture.
func ParseCapture(data []byte) (*Capture, error) {
	var c Capture
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid capture: %w", err)
	}
	if _, err := c.frames(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Capture) frames() ([]frame, error) {
	frames := make([]frame, 0, len(c.Advertisements))
	for i, e := range c.Advertisements {
		addr, err := device.ParseAddress(e.Address)
		if err != nil {
			return nil, fmt.Errorf("advertisement %d: %w", i, err)
		}
		addrType, err := device.ParseAddressType(e.AddressType)
		if err != nil {
			return nil, fmt.Errorf("advertisement %d: %w", i, err)
		}
		adv, err := decodeHex(e.Adv)
		if err != nil {
			return nil, fmt.Errorf("advertisement %d: adv: %w", i, err)
		}
		rsp, err := decodeHex(e.ScanResponse)
		if err != nil {
			return nil, fmt.Errorf("advertisement %d: scan_response: %w", i, err)
		}
		if len(adv) > device.MaxAdvDataLen || len(rsp) > device.MaxAdvDataLen {
			return nil, fmt.Errorf("advertisement %d: payload parts must not exceed %d bytes", i, device.MaxAdvDataLen)
		}
		if e.Delay < 0 {
			return nil, fmt.Errorf("advertisement %d: negative delay %s", i, e.Delay)
		}
		frames = append(frames, frame{
			delay:  e.Delay,
			result: device.NewRawScanResult(addr, addrType, e.RSSI, adv, rsp),
		})
	}
	return frames, nil
}

// decodeHex accepts hex with optional spaces or colons between bytes.
func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(s))
	return hex.DecodeString(s)
}
