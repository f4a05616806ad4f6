package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vorteil/vhd-tools/pkg/elog"
)

var log elog.View = elog.Discard

var (
	flagJSON    bool
	flagVerbose bool
	flagDebug   bool
	flagConfig  string
)

var (
	release = "0.0.0"
	commit  = ""
	date    = "Thu, 01 Jan 1970 00:00:00 +0000"
)

// Each command executed may have a error message and status code
var errorStatusCode int
var errorStatusMessage error

// SetError sets the global variables for when the process exits to display accordingly
func SetError(err error, code int) {
	errorStatusCode = code
	errorStatusMessage = err
}

// HandleErrors exits with the status code set by SetError, if any. Deferred
// by main.
func HandleErrors() {
	if errorStatusCode != 0 {
		if errorStatusMessage != nil {
			logrus.Errorf("%v", errorStatusMessage)
		}
		os.Exit(errorStatusCode)
	}
}

func InitializeCommands() {

	// setup logging across all commands
	RootCommand.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	RootCommand.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug output")
	RootCommand.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")
	RootCommand.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default is $HOME/"+configFileName+".yaml)")

	RootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		log = newLogger(cmd.Name())
		initConfig(flagConfig, log)
		return nil
	}

	RootCommand.AddCommand(versionCmd)
	RootCommand.AddCommand(compareCmd)
	RootCommand.AddCommand(copyCmd)
	RootCommand.AddCommand(parseCmd)
	RootCommand.AddCommand(exportCmd)
}

// newLogger configures logrus from the global flags. JSON output goes
// straight through logrus, tagged with the command, and levels are left to
// the consumer above debug.
func newLogger(command string) elog.View {

	if flagJSON {
		elog.IsJSON = true
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		if flagDebug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return elog.Logrus(logrus.WithField("command", command))
	}

	logger := &elog.CLI{}
	logrus.SetFormatter(logger)
	logrus.SetLevel(logrus.TraceLevel)

	if flagDebug {
		logger.IsDebug = true
		logger.IsVerbose = true
	} else if flagVerbose {
		logger.IsVerbose = true
	}

	return logger
}

var RootCommand = &cobra.Command{
	Use:   "vhd-cli",
	Short: "Inspect, compare and copy dynamic VHD images",
	Long: `vhd-cli works with dynamic VHD images stored on local disks, in S3 buckets,
in Google Cloud Storage or in Azure blob containers. Images are addressed by a storage url and a path
below it:

  file:///var/lib/backups vm1/disk.vhd
  s3://bucket/backups     vm1/disk.vhd
  gs://bucket             vm1/disk.vhd
  az://container/backups  vm1/disk.vhd`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flagVersionFormat string

func printVersion(w io.Writer, format string) error {
	switch format {
	case "json":
		fmt.Fprintf(w, "{\n\t\"name\": \"vhd-cli\",\n\t\"version\": \"%s\",\n\t\"ref\": \"%s\",\n\t\"released\": \"%s\"\n}\n",
			release, commit, date)
	case "", "plain":
		fmt.Fprintf(w, "vhd-cli %s\nRef: %s\nReleased: %s\n", release, commit, date)
	default:
		return fmt.Errorf("invalid format '%s', expected json or plain", format)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vhd-cli release",
	Long:  "Print the release, source reference and release date of this vhd-cli binary.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := printVersion(cmd.OutOrStdout(), flagVersionFormat)
		if err != nil {
			SetError(err, 1)
		}
	},
}

func init() {
	versionCmd.Flags().StringVar(&flagVersionFormat, "format", "", "output format (json, plain)")
}
