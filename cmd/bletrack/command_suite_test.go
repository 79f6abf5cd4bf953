package main

import (
	"bytes"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite provides command execution helpers shared by the
// cmd/bletrack test suites.
type CommandTestSuite struct {
	suite.Suite
}

// SetupTest restores every flag of every command to its default so that
// values parsed by a previous test do not leak into the next one.
func (s *CommandTestSuite) SetupTest() {
	resetFlags(rootCmd)
}

// ExecuteCommand runs the root command with args and returns stdout and
// stderr separately.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (stdout, stderr string, err error) {
	outBuf, errBuf := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err = rootCmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
