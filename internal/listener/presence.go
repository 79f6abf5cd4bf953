package listener

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/bletrack/internal/device"
)

// PresenceFunc receives presence changes.
type PresenceFunc func(name string, present bool)

// Presence tracks whether one address is around. A device becomes present on
// its first sighting and absent at the end of a session in which it was not seen.
type Presence struct {
	name     string
	address  uint64
	logger   *logrus.Logger
	onChange PresenceFunc

	seen    bool
	present bool
}

func NewPresence(name string, addr device.Address, logger *logrus.Logger, onChange PresenceFunc) *Presence {
	if logger == nil {
		logger = logrus.New()
	}
	return &Presence{name: name, address: addr.Uint64(), logger: logger, onChange: onChange}
}

func (p *Presence) Present() bool { return p.present }

func (p *Presence) ParseDevice(dev *device.Device) bool {
	if dev.AddressUint64() != p.address {
		return false
	}
	p.seen = true
	p.publish(true)
	return true
}

func (p *Presence) OnScanEnd() {
	if !p.seen {
		p.publish(false)
	}
	p.seen = false
}

func (p *Presence) publish(present bool) {
	if p.present == present {
		return
	}
	p.present = present
	p.logger.WithFields(logrus.Fields{"listener": p.name, "present": present}).Info("Presence changed")
	if p.onChange != nil {
		p.onChange(p.name, present)
	}
}
