package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bletrack/internal/device"
	goble "github.com/srg/bletrack/internal/device/go-ble"
	"github.com/srg/bletrack/internal/device/replay"
	"github.com/srg/bletrack/internal/listener"
	"github.com/srg/bletrack/pkg/config"
	"github.com/srg/bletrack/scanner"
)

// trackCmd represents the track command
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Scan continuously and feed advertisements to listeners",
	Long: `Run back-to-back BLE scan sessions until interrupted.

Every advertisement is parsed and handed to the listeners configured in the
config file (presence, rssi, ibeacon). Devices no listener claims are logged
once per session. A recorder keeps the most recent sightings, printed on exit
or periodically with --watch.

If a scan session fails to end within twice the scan duration the radio is
considered wedged and bletrack re-executes itself, unless --no-restart is set.`,
	RunE: runTrack,
}

var (
	trackConfigPath string
	trackReplayPath string
	trackDuration   uint32
	trackInterval   uint16
	trackWindow     uint16
	trackActive     bool
	trackFormat     string
	trackWatch      bool
	trackRefresh    time.Duration
	trackRunFor     time.Duration
	trackNoRestart  bool
)

func init() {
	trackCmd.Flags().StringVarP(&trackConfigPath, "config", "c", "", "YAML config file")
	trackCmd.Flags().StringVar(&trackReplayPath, "replay", "", "Replay advertisements from a YAML capture instead of the radio")
	trackCmd.Flags().Uint32VarP(&trackDuration, "duration", "d", 300, "Scan session duration in seconds")
	trackCmd.Flags().Uint16Var(&trackInterval, "interval", 0x0140, "Scan interval in 0.625 ms units")
	trackCmd.Flags().Uint16Var(&trackWindow, "window", 0x0030, "Scan window in 0.625 ms units")
	trackCmd.Flags().BoolVar(&trackActive, "active", false, "Send scan requests (active scanning)")
	trackCmd.Flags().StringVarP(&trackFormat, "format", "f", "table", "Output format (table, json)")
	trackCmd.Flags().BoolVarP(&trackWatch, "watch", "w", false, "Redraw the sightings table periodically")
	trackCmd.Flags().DurationVar(&trackRefresh, "refresh", 2*time.Second, "Table refresh period with --watch")
	trackCmd.Flags().DurationVar(&trackRunFor, "run-for", 0, "Stop after this long (0 runs until Ctrl+C)")
	trackCmd.Flags().BoolVar(&trackNoRestart, "no-restart", false, "Exit instead of re-executing when the radio is wedged")
	trackCmd.Flags().Bool("verbose", false, "Verbose output")
}

// scanRadio is a radio back end the track command can shut down.
type scanRadio interface {
	device.Radio
	Close() error
}

func runTrack(cmd *cobra.Command, args []string) error {
	if trackFormat != "table" && trackFormat != "json" {
		return fmt.Errorf("%w '%s': must be one of [table json]", ErrInvalidFormat, trackFormat)
	}

	cfg, err := loadTrackConfig(cmd)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", level)
	if err != nil {
		return err
	}
	params, err := cfg.ScanParameters()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	radio, err := openRadio(trackReplayPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE radio: %w", err)
	}
	defer func() {
		if err := radio.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close radio")
		}
	}()

	s := scanner.New(radio, params, logger,
		scanner.WithLoopTimings(cfg.LoopTimings()),
		scanner.WithOverflowWarnings(cfg.Loop.OverflowWarnEvery),
		scanner.WithRestarter(newRestarter(trackNoRestart, logger)),
	)

	recorder, err := registerListeners(s, cfg, logger)
	if err != nil {
		return err
	}
	logger.WithFields(cfg.LogFields()).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if trackRunFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, trackRunFor)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	table := newSightingTable()
	runErr := runScanner(ctx, s, recorder, table, out)

	table.Add(recorder.Drain())
	logger.WithFields(logrus.Fields{
		"sessions":    recorder.Sessions(),
		"recorded":    recorder.Recorded(),
		"overwritten": recorder.Overwritten(),
		"lost":        s.Stats().Queue.Lost(),
	}).Info("Tracking stopped")

	if err := printSightings(out, table); err != nil {
		return err
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	return nil
}

// loadTrackConfig reads --config and applies the scan flags the user set.
func loadTrackConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if trackConfigPath != "" {
		var err error
		if cfg, err = config.Load(trackConfigPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("duration") {
		cfg.Scan.Duration = trackDuration
	}
	if flags.Changed("interval") {
		cfg.Scan.Interval = trackInterval
	}
	if flags.Changed("window") {
		cfg.Scan.Window = trackWindow
	}
	if flags.Changed("active") {
		cfg.Scan.Active = trackActive
	}
	return cfg, nil
}

func openRadio(replayPath string, logger *logrus.Logger) (scanRadio, error) {
	if replayPath == "" {
		radio, err := goble.NewRadio(logger)
		if err != nil {
			return nil, err
		}
		return radio, nil
	}

	capture, err := replay.LoadCapture(replayPath)
	if err != nil {
		return nil, err
	}
	radio, err := replay.NewRadio(capture, logger)
	if err != nil {
		return nil, err
	}
	return radio, nil
}

// newRestarter re-executes the binary to recover a wedged radio.
func newRestarter(disabled bool, logger *logrus.Logger) scanner.Restarter {
	return func() error {
		if disabled {
			logger.Warn("Restart disabled, exiting")
			return nil
		}
		return restartSelf()
	}
}

// registerListeners registers the configured listeners followed by the recorder.
func registerListeners(s *scanner.Scanner, cfg *config.Config, logger *logrus.Logger) (*listener.Recorder, error) {
	for _, p := range cfg.Listeners.Presence {
		addr, err := p.Address()
		if err != nil {
			return nil, fmt.Errorf("presence listener %q: %w", p.Name, err)
		}
		if err := s.Register(p.Name, listener.NewPresence(p.Name, addr, logger, nil)); err != nil {
			return nil, err
		}
	}

	for _, r := range cfg.Listeners.RSSI {
		addr, err := r.Address()
		if err != nil {
			return nil, fmt.Errorf("rssi listener %q: %w", r.Name, err)
		}
		publish := func(name string, rssi int, known bool) {
			if !known {
				logger.WithField("listener", name).Info("RSSI unknown, device not seen this session")
			}
		}
		if err := s.Register(r.Name, listener.NewRSSI(r.Name, addr, logger, publish)); err != nil {
			return nil, err
		}
	}

	for _, b := range cfg.Listeners.IBeacon {
		filter, err := b.Filter()
		if err != nil {
			return nil, fmt.Errorf("ibeacon listener %q: %w", b.Name, err)
		}
		if err := s.Register(b.Name, listener.NewIBeacon(b.Name, filter, logger, nil)); err != nil {
			return nil, err
		}
	}

	recorder, err := listener.NewRecorder(cfg.Listeners.Recorder.Capacity)
	if err != nil {
		return nil, err
	}
	if err := s.Register("recorder", recorder); err != nil {
		return nil, err
	}
	return recorder, nil
}

// runScanner runs s until ctx ends or the radio is wedged, redrawing the
// sightings table with --watch.
func runScanner(ctx context.Context, s *scanner.Scanner, recorder *listener.Recorder, table *sightingTable, out io.Writer) error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if !trackWatch {
		return <-done
	}

	ticker := time.NewTicker(trackRefresh)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			table.Add(recorder.Drain())
			if isTerminal(out) {
				clearScreen(out)
			}
			if err := table.WriteTable(out, isTerminal(out), time.Now()); err != nil {
				return err
			}
		}
	}
}

func printSightings(out io.Writer, table *sightingTable) error {
	if trackFormat == "json" {
		return table.WriteJSON(out)
	}
	if trackWatch && isTerminal(out) {
		clearScreen(out)
	}
	return table.WriteTable(out, isTerminal(out), time.Now())
}
