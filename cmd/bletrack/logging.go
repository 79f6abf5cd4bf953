package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bletrack/pkg/config"
)

// cliLogLevels are the values accepted by --log-level.
var cliLogLevels = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
}

// configureLogger builds the command logger on stderr. --log-level wins over
// the verbose flag (if the command has one), which wins over fallback.
func configureLogger(cmd *cobra.Command, verboseFlagName string, fallback logrus.Level) (*logrus.Logger, error) {
	level := fallback

	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		parsed, ok := cliLogLevels[name]
		if !ok {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
		level = parsed
	} else if verboseFlagName != "" {
		if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
			level = logrus.DebugLevel
		}
	}

	logger := (&config.Config{LogLevel: level.String()}).NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}
