package listener

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/bletrack/internal/device"
)

// RSSIFunc receives signal strength updates; known is false when the device
// was not seen during the last session.
type RSSIFunc func(name string, rssi int, known bool)

// RSSI publishes the signal strength of one address.
type RSSI struct {
	name    string
	address uint64
	logger  *logrus.Logger
	publish RSSIFunc

	seen bool
	last int
}

func NewRSSI(name string, addr device.Address, logger *logrus.Logger, publish RSSIFunc) *RSSI {
	if logger == nil {
		logger = logrus.New()
	}
	return &RSSI{name: name, address: addr.Uint64(), logger: logger, publish: publish}
}

// Last returns the most recent reading of the current session.
func (r *RSSI) Last() (int, bool) {
	return r.last, r.seen
}

func (r *RSSI) ParseDevice(dev *device.Device) bool {
	if dev.AddressUint64() != r.address {
		return false
	}
	r.seen = true
	r.last = dev.RSSI()
	r.logger.WithFields(logrus.Fields{"listener": r.name, "rssi": r.last}).Debug("RSSI updated")
	if r.publish != nil {
		r.publish(r.name, r.last, true)
	}
	return true
}

func (r *RSSI) OnScanEnd() {
	if !r.seen && r.publish != nil {
		r.publish(r.name, 0, false)
	}
	r.seen = false
}
