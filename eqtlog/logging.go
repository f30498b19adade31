/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package eqtlog sets up process-wide logging via the standard log
// package, rotating to disk through lumberjack when a logfile is
// configured.
package eqtlog

import (
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logger. An empty logfile leaves
// output on stderr; a configured logfile is optional, not required.
func Setup(logfile string) {
	log.SetFlags(log.Lshortfile | log.Ltime)

	if logfile == "" {
		return
	}

	log.SetOutput(&lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     14,
	})
}
