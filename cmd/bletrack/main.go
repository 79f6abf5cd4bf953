package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bletrack",
	Short: "Continuous passive BLE advertisement tracker",
	Long: `Bluetooth Low Energy (BLE) advertisement tracker that provides:

- Back-to-back scan sessions with a watchdog that restarts a wedged radio
- Presence, RSSI and iBeacon listeners configured from a YAML file
- A recorder of the most recent sightings, printed as a table or JSON
- Offline decoding of raw advertisement payloads

Scans can also be replayed from a YAML capture instead of a live radio.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("bletrack {{.Version}} (commit %s, built %s)\n", commit, date))

	// Add subcommands
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(decodeCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
