// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import "flag"

var (
	flagServer, flagConsole, flagGops, flagVersion, flagLogDateTime bool
	flagConfigFile, flagConnect, flagLogLevel                       string
)

func cliInit() {
	flag.BoolVar(&flagServer, "server", false, "Start the store daemon: debugger endpoints, synchronizer, management API")
	flag.BoolVar(&flagConsole, "console", false, "Start an interactive debugger console (see -connect)")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagConnect, "connect", "tcp://localhost:19026", "Debugger `address` the console connects to")
	flag.StringVar(&flagLogLevel, "loglevel", "warn", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.Parse()
}
