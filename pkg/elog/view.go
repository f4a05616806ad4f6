// Package elog is the logging front end shared by the libraries and the
// command line tool.
package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"github.com/sirupsen/logrus"
)

// View is what libraries log through.
type View interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
}

type discard struct{}

func (discard) Debugf(format string, x ...interface{}) {}
func (discard) Errorf(format string, x ...interface{}) {}
func (discard) Infof(format string, x ...interface{})  {}
func (discard) Printf(format string, x ...interface{}) {}
func (discard) Warnf(format string, x ...interface{})  {}

// Discard drops everything.
var Discard View = discard{}

// OrDiscard returns log, or Discard if log is nil.
func OrDiscard(log View) View {
	if log == nil {
		return Discard
	}
	return log
}

// Logrus adapts a logrus logger or entry.
func Logrus(l logrus.FieldLogger) View {
	return &logrusView{l}
}

type logrusView struct {
	l logrus.FieldLogger
}

func (v *logrusView) Debugf(format string, x ...interface{}) { v.l.Debugf(format, x...) }
func (v *logrusView) Errorf(format string, x ...interface{}) { v.l.Errorf(format, x...) }
func (v *logrusView) Infof(format string, x ...interface{})  { v.l.Infof(format, x...) }
func (v *logrusView) Printf(format string, x ...interface{}) { v.l.Printf(format, x...) }
func (v *logrusView) Warnf(format string, x ...interface{})  { v.l.Warnf(format, x...) }
