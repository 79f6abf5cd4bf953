package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/listener"
	"github.com/srg/bletrack/scanner"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level" default:"info"`
	Scan      ScanConfig      `json:"scan" yaml:"scan"`
	Loop      LoopConfig      `json:"loop" yaml:"loop"`
	Listeners ListenersConfig `json:"listeners" yaml:"listeners"`
}

// ScanConfig is the radio side of a scan session. Interval and Window are in
// 0.625 ms units, Duration in seconds.
type ScanConfig struct {
	Duration       uint32 `json:"duration" yaml:"duration" default:"300"`
	Interval       uint16 `json:"interval" yaml:"interval" default:"320"`
	Window         uint16 `json:"window" yaml:"window" default:"48"`
	Active         bool   `json:"active" yaml:"active" default:"false"`
	OwnAddressType string `json:"own_address_type" yaml:"own_address_type" default:"public"`
	FilterPolicy   string `json:"filter_policy" yaml:"filter_policy" default:"allow_all"`
}

// LoopConfig tunes the main loop.
type LoopConfig struct {
	Interval          time.Duration `json:"interval" yaml:"interval" default:"16ms"`
	SnapshotTimeout   time.Duration `json:"snapshot_timeout" yaml:"snapshot_timeout" default:"5ms"`
	ResetTimeout      time.Duration `json:"reset_timeout" yaml:"reset_timeout" default:"10ms"`
	OverflowWarnEvery time.Duration `json:"overflow_warn_every" yaml:"overflow_warn_every" default:"1s"`
}

// DeviceListenerConfig binds a named listener to one advertiser address.
type DeviceListenerConfig struct {
	Name       string `json:"name" yaml:"name"`
	MACAddress string `json:"mac_address" yaml:"mac_address"`
}

// IBeaconConfig selects beacons by proximity UUID and optionally major/minor.
type IBeaconConfig struct {
	Name  string  `json:"name" yaml:"name"`
	UUID  string  `json:"uuid" yaml:"uuid"`
	Major *uint16 `json:"major,omitempty" yaml:"major,omitempty"`
	Minor *uint16 `json:"minor,omitempty" yaml:"minor,omitempty"`
}

type RecorderConfig struct {
	Capacity uint32 `json:"capacity" yaml:"capacity" default:"64"`
}

// ListenersConfig lists the listeners to register, in registration order per kind.
type ListenersConfig struct {
	Presence []DeviceListenerConfig `json:"presence,omitempty" yaml:"presence,omitempty"`
	RSSI     []DeviceListenerConfig `json:"rssi,omitempty" yaml:"rssi,omitempty"`
	IBeacon  []IBeaconConfig        `json:"ibeacon,omitempty" yaml:"ibeacon,omitempty"`
	Recorder RecorderConfig         `json:"recorder" yaml:"recorder"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file. Keys missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and checks that every value parses.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that enumerations, addresses and UUIDs parse. Numeric
// ranges are left to the radio.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.ScanParameters(); err != nil {
		return err
	}
	for _, p := range c.Listeners.Presence {
		if _, err := p.Address(); err != nil {
			return fmt.Errorf("presence listener %q: %w", p.Name, err)
		}
	}
	for _, r := range c.Listeners.RSSI {
		if _, err := r.Address(); err != nil {
			return fmt.Errorf("rssi listener %q: %w", r.Name, err)
		}
	}
	for _, b := range c.Listeners.IBeacon {
		if _, err := b.Filter(); err != nil {
			return fmt.Errorf("ibeacon listener %q: %w", b.Name, err)
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ScanParameters converts the scan section for the radio.
func (c *Config) ScanParameters() (device.ScanParameters, error) {
	ownType, err := device.ParseAddressType(c.Scan.OwnAddressType)
	if err != nil {
		return device.ScanParameters{}, fmt.Errorf("scan.own_address_type: %w", err)
	}
	policy, err := device.ParseFilterPolicy(c.Scan.FilterPolicy)
	if err != nil {
		return device.ScanParameters{}, fmt.Errorf("scan.filter_policy: %w", err)
	}

	scanType := device.ScanPassive
	if c.Scan.Active {
		scanType = device.ScanActive
	}
	return device.ScanParameters{
		Type:           scanType,
		OwnAddressType: ownType,
		FilterPolicy:   policy,
		Interval:       c.Scan.Interval,
		Window:         c.Scan.Window,
		Duration:       time.Duration(c.Scan.Duration) * time.Second,
	}, nil
}

// LoopTimings converts the loop section for the scanner.
func (c *Config) LoopTimings() scanner.LoopTimings {
	return scanner.LoopTimings{
		Interval:        c.Loop.Interval,
		SnapshotTimeout: c.Loop.SnapshotTimeout,
		ResetTimeout:    c.Loop.ResetTimeout,
	}
}

// LogFields summarises the scan settings for the startup log.
func (c *Config) LogFields() logrus.Fields {
	scanType := "PASSIVE"
	if c.Scan.Active {
		scanType = "ACTIVE"
	}
	return logrus.Fields{
		"log_level":     c.LogLevel,
		"scan_duration": fmt.Sprintf("%ds", c.Scan.Duration),
		"scan_interval": fmt.Sprintf("%.1fms", float64(c.Scan.Interval)*0.625),
		"scan_window":   fmt.Sprintf("%.1fms", float64(c.Scan.Window)*0.625),
		"scan_type":     scanType,
		"listeners":     len(c.Listeners.Presence) + len(c.Listeners.RSSI) + len(c.Listeners.IBeacon),
	}
}

// Address parses MACAddress.
func (c DeviceListenerConfig) Address() (device.Address, error) {
	return device.ParseAddress(c.MACAddress)
}

// Filter builds the listener filter.
func (c IBeaconConfig) Filter() (listener.IBeaconFilter, error) {
	id, err := uuid.Parse(c.UUID)
	if err != nil {
		return listener.IBeaconFilter{}, fmt.Errorf("invalid proximity uuid %q: %w", c.UUID, err)
	}
	return listener.IBeaconFilter{UUID: id, Major: c.Major, Minor: c.Minor}, nil
}
