package device

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/sirupsen/logrus"
)

// cursor walks an advertisement payload. Every read is checked against the
// payload length; the record-type logic never indexes the payload directly.
type cursor struct {
	buf []byte
	pos int
}

// remaining is the number of unread bytes.
func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) next() (byte, bool) {
	if c.remaining() < 1 {
		return 0, false
	}
	b := c.buf[c.pos]
	c.pos++
	return b, true
}

// take returns the next n bytes, or false without moving if fewer remain.
func (c *cursor) take(n int) ([]byte, bool) {
	if n < 0 || c.remaining() < n {
		return nil, false
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, true
}

// Parser decodes raw scan results into Devices.
type Parser struct {
	logger *logrus.Logger
}

// NewParser creates a Parser; a nil logger gets a default one.
func NewParser(logger *logrus.Logger) *Parser {
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{logger: logger}
}

// Parse builds the Device for one scan result. Malformed records are skipped
// or end the parse early; Parse itself never fails.
func (p *Parser) Parse(raw RawScanResult) *Device {
	dev := &Device{
		address:     raw.Address,
		addressType: raw.AddressType,
		rssi:        raw.RSSI,
	}
	p.parseAdvertisement(dev, raw.Data())

	if p.logger.IsLevelEnabled(logrus.TraceLevel) {
		p.dumpDevice(dev, raw.Data())
	}
	return dev
}

// ParsePayload decodes a bare advertisement payload, leaving address fields zero.
func (p *Parser) ParsePayload(payload []byte) *Device {
	dev := &Device{}
	p.parseAdvertisement(dev, payload)
	return dev
}

func (p *Parser) parseAdvertisement(dev *Device, payload []byte) {
	c := cursor{buf: payload}

	// Stop once fewer than two bytes follow the length octet.
	for c.pos+2 < len(payload) {
		fieldLen, _ := c.next()
		if fieldLen == 0 {
			break
		}

		recordType, _ := c.next()
		value, ok := c.take(int(fieldLen) - 1)
		if !ok {
			p.logger.WithFields(logrus.Fields{
				"type":      ADType(recordType),
				"length":    fieldLen,
				"remaining": c.remaining(),
			}).Debug("Advertisement record overruns payload, stopping parse")
			return
		}

		p.parseRecord(dev, payload, ADType(recordType), value)
	}
}

func (p *Parser) parseRecord(dev *Device, payload []byte, recordType ADType, value []byte) {
	switch recordType {
	case ADCompleteName:
		dev.name = string(value)

	case ADTxPower:
		// Reads the first octet of the whole payload, not of the record value.
		// Kept as-is; see DESIGN.md.
		dev.txPowers = append(dev.txPowers, int8(payload[0]))

	case ADAppearance:
		if len(value) < 2 {
			p.tooShort(recordType, value, 2)
			return
		}
		appearance := binary.LittleEndian.Uint16(value)
		dev.appearance = &appearance

	case ADFlags:
		if len(value) < 1 {
			p.tooShort(recordType, value, 1)
			return
		}
		flag := value[0]
		dev.adFlag = &flag

	case ADCompleteUUID16, ADIncompleteUUID16:
		for i := 0; i+2 <= len(value); i += 2 {
			dev.serviceUUIDs = append(dev.serviceUUIDs, UUIDFrom16(binary.LittleEndian.Uint16(value[i:])))
		}

	case ADCompleteUUID32, ADIncompleteUUID32:
		for i := 0; i+4 <= len(value); i += 4 {
			dev.serviceUUIDs = append(dev.serviceUUIDs, UUIDFrom32(binary.LittleEndian.Uint32(value[i:])))
		}

	case ADCompleteUUID128, ADIncompleteUUID128:
		if len(value) < 16 {
			p.tooShort(recordType, value, 16)
			return
		}
		dev.serviceUUIDs = append(dev.serviceUUIDs, MustUUIDFromBytes(value[:16]))

	case ADManufacturerSpecific:
		if sd, ok := p.splitServiceData(recordType, value, 2); ok {
			dev.manufacturerData = append(dev.manufacturerData, sd)
		}

	case ADServiceData16:
		if sd, ok := p.splitServiceData(recordType, value, 2); ok {
			dev.serviceData = append(dev.serviceData, sd)
		}

	case ADServiceData32:
		if sd, ok := p.splitServiceData(recordType, value, 4); ok {
			dev.serviceData = append(dev.serviceData, sd)
		}

	case ADServiceData128:
		if sd, ok := p.splitServiceData(recordType, value, 16); ok {
			dev.serviceData = append(dev.serviceData, sd)
		}

	default:
		p.logger.WithField("type", recordType).Trace("Unhandled advertisement record type")
	}
}

// splitServiceData reads a uuidLen-byte UUID followed by an opaque payload.
func (p *Parser) splitServiceData(recordType ADType, value []byte, uuidLen int) (ServiceData, bool) {
	if len(value) < uuidLen {
		p.tooShort(recordType, value, uuidLen)
		return ServiceData{}, false
	}
	return ServiceData{
		UUID: MustUUIDFromBytes(value[:uuidLen]),
		Data: append([]byte{}, value[uuidLen:]...),
	}, true
}

func (p *Parser) tooShort(recordType ADType, value []byte, want int) {
	p.logger.WithFields(logrus.Fields{
		"type":   recordType,
		"length": len(value),
		"min":    want,
	}).Debug("Record length too small")
}

func (p *Parser) dumpDevice(dev *Device, payload []byte) {
	fields := logrus.Fields{
		"address":      dev.AddressString(),
		"address_type": dev.AddressType(),
		"rssi":         dev.RSSI(),
		"name":         dev.Name(),
		"adv_data":     hex.EncodeToString(payload),
	}
	if len(dev.txPowers) > 0 {
		fields["tx_powers"] = dev.txPowers
	}
	if v, ok := dev.Appearance(); ok {
		fields["appearance"] = v
	}
	if v, ok := dev.AdFlag(); ok {
		fields["ad_flag"] = v
	}
	if len(dev.serviceUUIDs) > 0 {
		fields["service_uuids"] = dev.serviceUUIDs
	}
	for i, md := range dev.manufacturerData {
		fields["manufacturer_data_"+strconv.Itoa(i)] = hex.EncodeToString(md.Data)
	}
	for i, sd := range dev.serviceData {
		fields["service_data_"+strconv.Itoa(i)] = sd.UUID.String() + "=" + hex.EncodeToString(sd.Data)
	}
	p.logger.WithFields(fields).Trace("Parse result")
}
