package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	InitFlag()
	// a missing .env is fine
	_ = godotenv.Load()
	InitSafeExit()
	InitConf(configPath)
	InitLog()

	switch command {
	case "serve":
		InitEngine()
		Serve()
	case "seed":
		InitEngine()
		InitBreakPoint()
		InitTask()
	case "count":
		InitEngine()
		InitCount()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		os.Exit(2)
	}
	SafeExitInst.run()
}
