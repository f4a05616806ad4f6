package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"github.com/sirupsen/logrus"

	"github.com/vorteil/vhd-tools/pkg/cli"
	"github.com/vorteil/vhd-tools/pkg/elog"
)

func init() {
	logrus.SetFormatter(&elog.CLI{})
	logrus.SetLevel(logrus.TraceLevel)
}

func main() {

	defer cli.HandleErrors()

	cli.InitializeCommands()

	err := cli.RootCommand.Execute()
	if err != nil {
		cli.SetError(err, 5)
		return
	}

}
