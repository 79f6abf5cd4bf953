package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bletrack/internal/device"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <adv-hex>",
	Short: "Decode a raw advertisement payload",
	Long: `Decode a raw BLE advertisement payload given as hex and print the
fields bletrack extracts from it.

Bytes may be separated by spaces or colons. The scan response, if any, is
passed with --scan-response and decoded after the advertising data.`,
	Example: `  bletrack decode "02 01 06 08 09 54 68 65 72 6d 6f 31"
  bletrack decode --scan-response 09094d4a5f48545f5631 --format json "02:01:06"`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

var (
	decodeScanResponse string
	decodeAddress      string
	decodeAddressType  string
	decodeRSSI         int
	decodeFormat       string
)

func init() {
	decodeCmd.Flags().StringVar(&decodeScanResponse, "scan-response", "", "Scan response payload as hex")
	decodeCmd.Flags().StringVar(&decodeAddress, "address", "00:00:00:00:00:00", "Advertiser address to attach")
	decodeCmd.Flags().StringVar(&decodeAddressType, "address-type", "public", "Advertiser address type")
	decodeCmd.Flags().IntVar(&decodeRSSI, "rssi", 0, "RSSI to attach")
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "table", "Output format (table, json)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	if decodeFormat != "table" && decodeFormat != "json" {
		return fmt.Errorf("%w '%s': must be one of [table json]", ErrInvalidFormat, decodeFormat)
	}

	adv, err := parseHexArg(args[0])
	if err != nil {
		return fmt.Errorf("invalid advertisement payload: %w", err)
	}
	rsp, err := parseHexArg(decodeScanResponse)
	if err != nil {
		return fmt.Errorf("invalid scan response: %w", err)
	}
	if len(adv) > device.MaxAdvDataLen || len(rsp) > device.MaxAdvDataLen {
		return fmt.Errorf("payload parts must not exceed %d bytes (got %d and %d)", device.MaxAdvDataLen, len(adv), len(rsp))
	}
	addr, err := device.ParseAddress(decodeAddress)
	if err != nil {
		return err
	}
	addrType, err := device.ParseAddressType(decodeAddressType)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "", logrus.WarnLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	dev := device.NewParser(logger).Parse(device.NewRawScanResult(addr, addrType, decodeRSSI, adv, rsp))

	out := cmd.OutOrStdout()
	if decodeFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(dev)
	}
	return writeDeviceFields(out, dev)
}

func parseHexArg(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(strings.TrimSpace(s))
	return hex.DecodeString(s)
}

// writeDeviceFields prints one field per line, skipping absent ones.
func writeDeviceFields(w io.Writer, dev *device.Device) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Address:\t%s (%s)\n", dev.AddressString(), dev.AddressType())
	fmt.Fprintf(tw, "RSSI:\t%d dBm\n", dev.RSSI())
	if name := dev.Name(); name != "" {
		fmt.Fprintf(tw, "Name:\t%s\n", name)
	}
	if flag, ok := dev.AdFlag(); ok {
		fmt.Fprintf(tw, "Flags:\t0x%02X\n", flag)
	}
	if appearance, ok := dev.Appearance(); ok {
		fmt.Fprintf(tw, "Appearance:\t0x%04X\n", appearance)
	}
	for _, tx := range dev.TxPowers() {
		fmt.Fprintf(tw, "TX power:\t%d dBm\n", tx)
	}
	for _, u := range dev.ServiceUUIDs() {
		fmt.Fprintf(tw, "Service UUID:\t%s\n", u)
	}
	for _, md := range dev.ManufacturerData() {
		fmt.Fprintf(tw, "Manufacturer data:\t%s %s\n", md.UUID, hex.EncodeToString(md.Data))
		if beacon, ok := device.IBeaconFromManufacturerData(md); ok {
			fmt.Fprintf(tw, "  iBeacon:\t%s major=%d minor=%d power=%d dBm\n",
				beacon.ProximityUUID(), beacon.Major, beacon.Minor, beacon.SignalPower)
		}
	}
	for _, sd := range dev.ServiceData() {
		fmt.Fprintf(tw, "Service data:\t%s %s\n", sd.UUID, hex.EncodeToString(sd.Data))
	}

	return tw.Flush()
}
