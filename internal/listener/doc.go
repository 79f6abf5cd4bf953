// Package listener contains the stock scanner listeners: per-address presence
// and signal strength, iBeacon matching, and a recorder of recent sightings.
//
// Listeners run on the scanner's main loop. Callbacks they invoke must be
// quick and must not call back into the scanner.
package listener
