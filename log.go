package main

import (
	"fmt"
	"os"

	"tilefix/internal/logger"
)

// log is replaced by InitLog once the configuration is read.
var log = logger.L()

// InitLog points the shared logger at the configured outputs.
func InitLog() {
	l, closer, err := logger.Setup(logger.Options{
		Level:    logLevel,
		Dir:      conf.Output.LogDir,
		Terminal: conf.Output.OutputTerminal,
	})
	if err != nil {
		fmt.Printf("open log file error, details: %s\n", err)
		os.Exit(1)
	}
	log = l
	if closer != nil {
		SafeExitInst.Register(func() { closer.Close() })
	}
}
