package device

import "fmt"

// ADType is the type octet of an advertising data record, from the Bluetooth
// Generic Access Profile assigned numbers.
type ADType uint8

const (
	ADFlags                ADType = 0x01
	ADIncompleteUUID16     ADType = 0x02
	ADCompleteUUID16       ADType = 0x03
	ADIncompleteUUID32     ADType = 0x04
	ADCompleteUUID32       ADType = 0x05
	ADIncompleteUUID128    ADType = 0x06
	ADCompleteUUID128      ADType = 0x07
	ADShortName            ADType = 0x08
	ADCompleteName         ADType = 0x09
	ADTxPower              ADType = 0x0A
	ADServiceData16        ADType = 0x16
	ADAppearance           ADType = 0x19
	ADServiceData32        ADType = 0x20
	ADServiceData128       ADType = 0x21
	ADManufacturerSpecific ADType = 0xFF
)

var adTypeNames = map[ADType]string{
	ADFlags:                "Flags",
	ADIncompleteUUID16:     "Incomplete List of 16-bit Service UUIDs",
	ADCompleteUUID16:       "Complete List of 16-bit Service UUIDs",
	ADIncompleteUUID32:     "Incomplete List of 32-bit Service UUIDs",
	ADCompleteUUID32:       "Complete List of 32-bit Service UUIDs",
	ADIncompleteUUID128:    "Incomplete List of 128-bit Service UUIDs",
	ADCompleteUUID128:      "Complete List of 128-bit Service UUIDs",
	ADShortName:            "Shortened Local Name",
	ADCompleteName:         "Complete Local Name",
	ADTxPower:              "Tx Power Level",
	ADServiceData16:        "Service Data - 16-bit UUID",
	ADAppearance:           "Appearance",
	ADServiceData32:        "Service Data - 32-bit UUID",
	ADServiceData128:       "Service Data - 128-bit UUID",
	ADManufacturerSpecific: "Manufacturer Specific Data",
}

func (t ADType) String() string {
	if name, ok := adTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}

// AppendRecord appends one length-type-value record to buf. Values longer than
// 254 bytes are truncated to fit the one-octet length field.
func AppendRecord(buf []byte, typ ADType, value []byte) []byte {
	if len(value) > 0xFE {
		value = value[:0xFE]
	}
	buf = append(buf, byte(len(value)+1), byte(typ))
	return append(buf, value...)
}
