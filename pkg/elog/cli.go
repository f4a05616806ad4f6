package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// IsJSON is set when output is machine readable; progress bars and colours
// are suppressed.
var IsJSON bool

// CLI is both the logrus formatter and the View used by the command line
// tool. Debug output needs IsDebug, info output needs IsVerbose; Printf,
// Warnf and Errorf always print.
type CLI struct {
	IsDebug    bool
	IsVerbose  bool
	DisableTTY bool
}

func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Debugf(format, x...)
	}
}

func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose {
		logrus.Infof(format, x...)
	}
}

func (log *CLI) Printf(format string, x ...interface{}) {
	logrus.Printf(format, x...)
}

func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

func (log *CLI) colored() bool {
	if log.DisableTTY || IsJSON {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var levelColors = map[logrus.Level]*color.Color{
	logrus.DebugLevel: color.New(color.FgHiBlack),
	logrus.TraceLevel: color.New(color.FgHiBlack),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
}

// Format implements logrus.Formatter. Info messages are printed bare, other
// levels get a prefix.
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {

	buf := new(bytes.Buffer)

	msg := strings.TrimSuffix(entry.Message, "\n")

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg += fmt.Sprintf(" %s=%v", k, entry.Data[k])
		}
	}

	if entry.Level == logrus.InfoLevel {
		buf.WriteString(msg)
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	}

	prefix := strings.ToUpper(entry.Level.String())
	if c, ok := levelColors[entry.Level]; ok && log.colored() {
		prefix = c.Sprint(prefix)
	}

	fmt.Fprintf(buf, "%s %s\n", prefix, msg)
	return buf.Bytes(), nil
}
