package listener

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletrack/internal/device"
)

// IBeaconFilter selects beacons by proximity UUID and, optionally, major and minor.
type IBeaconFilter struct {
	UUID  uuid.UUID
	Major *uint16
	Minor *uint16
}

func (f IBeaconFilter) matches(b *device.IBeacon) bool {
	if b.ProximityUUID() != f.UUID {
		return false
	}
	if f.Major != nil && *f.Major != b.Major {
		return false
	}
	return f.Minor == nil || *f.Minor == b.Minor
}

// IBeaconFunc receives every matching beacon sighting.
type IBeaconFunc func(name string, beacon *device.IBeacon, rssi int)

// IBeaconListener claims devices advertising an iBeacon that matches its filter.
type IBeaconListener struct {
	name    string
	filter  IBeaconFilter
	logger  *logrus.Logger
	onMatch IBeaconFunc

	sightings int
}

func NewIBeacon(name string, filter IBeaconFilter, logger *logrus.Logger, onMatch IBeaconFunc) *IBeaconListener {
	if logger == nil {
		logger = logrus.New()
	}
	return &IBeaconListener{name: name, filter: filter, logger: logger, onMatch: onMatch}
}

// Sightings counts matches in the current session.
func (l *IBeaconListener) Sightings() int { return l.sightings }

func (l *IBeaconListener) ParseDevice(dev *device.Device) bool {
	for _, md := range dev.ManufacturerData() {
		beacon, ok := device.IBeaconFromManufacturerData(md)
		if !ok || !l.filter.matches(beacon) {
			continue
		}
		l.sightings++
		l.logger.WithFields(logrus.Fields{
			"listener": l.name,
			"address":  dev.AddressString(),
			"major":    beacon.Major,
			"minor":    beacon.Minor,
			"rssi":     dev.RSSI(),
		}).Debug("iBeacon matched")
		if l.onMatch != nil {
			l.onMatch(l.name, beacon, dev.RSSI())
		}
		return true
	}
	return false
}

func (l *IBeaconListener) OnScanEnd() {
	l.sightings = 0
}
