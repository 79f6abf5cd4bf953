package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/listener"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"
)

// sightingRow aggregates the sightings of one address.
type sightingRow struct {
	Device   *device.Device `json:"device"`
	Count    int            `json:"count"`
	Session  int64          `json:"session"`
	LastSeen time.Time      `json:"last_seen"`
}

// sightingTable keeps one row per address in first-seen order.
type sightingTable struct {
	rows *orderedmap.OrderedMap[uint64, *sightingRow]
}

func newSightingTable() *sightingTable {
	return &sightingTable{rows: orderedmap.New[uint64, *sightingRow]()}
}

// Add merges drained sightings; the latest one wins for every field but Count.
func (t *sightingTable) Add(sightings []listener.Sighting) {
	for _, s := range sightings {
		key := s.Device.AddressUint64()
		row, ok := t.rows.Get(key)
		if !ok {
			row = &sightingRow{}
			t.rows.Set(key, row)
		}
		row.Device = s.Device
		row.Count++
		row.Session = s.Session
		row.LastSeen = s.At
	}
}

func (t *sightingTable) Len() int {
	return t.rows.Len()
}

func (t *sightingTable) Rows() []*sightingRow {
	out := make([]*sightingRow, 0, t.rows.Len())
	for pair := t.rows.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (t *sightingTable) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(t.Rows())
}

func (t *sightingTable) WriteTable(w io.Writer, colored bool, now time.Time) error {
	if t.rows.Len() == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tTYPE\tNAME\tRSSI\tCOUNT\tSESSION\tLAST SEEN\tDETAILS")
	fmt.Fprintln(tw, strings.Repeat("-", 100))

	for _, row := range t.Rows() {
		dev := row.Device
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s ago\t%s\n",
			dev.AddressString(),
			dev.AddressType(),
			truncate(dev.Name(), 20),
			rssiColor(colored, dev.RSSI()).Sprintf("%d dBm", dev.RSSI()),
			row.Count,
			row.Session,
			now.Sub(row.LastSeen).Truncate(time.Second),
			truncate(deviceDetails(dev), 40),
		)
	}

	return tw.Flush()
}

// deviceDetails summarises what the device advertises beyond its name.
func deviceDetails(dev *device.Device) string {
	for _, md := range dev.ManufacturerData() {
		if beacon, ok := device.IBeaconFromManufacturerData(md); ok {
			return fmt.Sprintf("iBeacon %s %d/%d", beacon.ProximityUUID(), beacon.Major, beacon.Minor)
		}
	}

	var parts []string
	if uuids := dev.ServiceUUIDs(); len(uuids) > 0 {
		names := make([]string, len(uuids))
		for i, u := range uuids {
			names[i] = u.String()
		}
		parts = append(parts, "svc "+strings.Join(names, ","))
	}
	if md := dev.ManufacturerData(); len(md) > 0 {
		parts = append(parts, "mfg "+md[0].UUID.String())
	}
	if sd := dev.ServiceData(); len(sd) > 0 {
		parts = append(parts, "data "+sd[0].UUID.String())
	}
	return strings.Join(parts, " ")
}

func rssiColor(colored bool, rssi int) *color.Color {
	switch {
	case rssi >= -60:
		return newColor(colored, color.FgGreen)
	case rssi >= -80:
		return newColor(colored, color.FgYellow)
	default:
		return newColor(colored, color.FgRed)
	}
}

func newColor(enabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
