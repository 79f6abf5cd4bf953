package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/bletrack/internal/device"
)

// txPowerUnknown is what go-ble reports when the advertisement carries no TX power record.
const txPowerUnknown = 127

// rawPayload is implemented by platform advertisements that keep the
// undecoded advertising data (the Linux HCI back end does).
type rawPayload interface {
	Data() []byte
	ScanResponse() []byte
}

type addressTyped interface {
	AddressType() uint8
}

// toRawScanResult converts a go-ble advertisement into the radio-neutral scan
// result. Advertisements whose address cannot be mapped to six octets are rejected.
func toRawScanResult(adv ble.Advertisement) (device.RawScanResult, error) {
	addr, addrType, err := convertAddress(adv)
	if err != nil {
		return device.RawScanResult{}, err
	}

	var advData, scanRsp []byte
	if raw, ok := adv.(rawPayload); ok && len(raw.Data())+len(raw.ScanResponse()) > 0 {
		advData, scanRsp = raw.Data(), raw.ScanResponse()
	} else {
		advData, scanRsp = splitRecords(encodeAdvertisement(adv))
	}

	return device.NewRawScanResult(addr, addrType, adv.RSSI(), advData, scanRsp), nil
}

// convertAddress parses the advertiser address. CoreBluetooth hides the
// address behind a per-host UUID; its last six bytes stand in as a random address.
func convertAddress(adv ble.Advertisement) (device.Address, device.AddressType, error) {
	if adv.Addr() == nil {
		return device.Address{}, device.AddressPublic, fmt.Errorf("advertisement without address")
	}
	s := adv.Addr().String()

	if addr, err := device.ParseAddress(s); err == nil {
		addrType := device.AddressPublic
		if t, ok := adv.(addressTyped); ok && t.AddressType() == 1 {
			addrType = device.AddressRandom
		}
		return addr, addrType, nil
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return device.Address{}, device.AddressPublic, fmt.Errorf("unrecognised advertiser address %q", s)
	}
	var addr device.Address
	copy(addr[:], id[10:16])
	return addr, device.AddressRandom, nil
}

// encodeAdvertisement rebuilds length-type-value records from the fields
// go-ble has already decoded. Flags and appearance are not exposed by go-ble
// and cannot be recovered.
func encodeAdvertisement(adv ble.Advertisement) [][]byte {
	var records [][]byte
	add := func(typ device.ADType, value []byte) {
		records = append(records, device.AppendRecord(nil, typ, value))
	}

	if name := adv.LocalName(); name != "" {
		add(device.ADCompleteName, []byte(name))
	}
	if tx := adv.TxPowerLevel(); tx != txPowerUnknown {
		add(device.ADTxPower, []byte{byte(int8(tx))})
	}

	var list16, list32 []byte
	for _, u := range adv.Services() {
		switch len(u) {
		case 2:
			list16 = append(list16, u...)
		case 4:
			list32 = append(list32, u...)
		case 16:
			// one UUID per record, the parser reads a single 128-bit UUID each
			add(device.ADCompleteUUID128, u)
		}
	}
	if len(list16) > 0 {
		add(device.ADCompleteUUID16, list16)
	}
	if len(list32) > 0 {
		add(device.ADCompleteUUID32, list32)
	}

	if md := adv.ManufacturerData(); len(md) >= 2 {
		add(device.ADManufacturerSpecific, md)
	}

	for _, sd := range adv.ServiceData() {
		var typ device.ADType
		switch len(sd.UUID) {
		case 2:
			typ = device.ADServiceData16
		case 4:
			typ = device.ADServiceData32
		case 16:
			typ = device.ADServiceData128
		default:
			continue
		}
		value := append(append([]byte{}, sd.UUID...), sd.Data...)
		add(typ, value)
	}

	return records
}

// splitRecords packs whole records into the advertising data first and the
// scan response second. Records that fit neither are dropped.
func splitRecords(records [][]byte) (advData, scanRsp []byte) {
	for _, r := range records {
		switch {
		case len(advData)+len(r) <= device.MaxAdvDataLen:
			advData = append(advData, r...)
		case len(scanRsp)+len(r) <= device.MaxAdvDataLen:
			scanRsp = append(scanRsp, r...)
		}
	}
	return advData, scanRsp
}
