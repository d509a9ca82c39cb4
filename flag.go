package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	hf         bool
	configPath string
	logLevel   string
	command    string
)

func InitFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log level (default: info)")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
	command = flag.Arg(0)
	if command == "" {
		command = "serve"
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `tilefix version: tilefix/v0.1.0
Usage: tilefix [-h] [-c filename] [-l logLevel] [serve|seed|count]

Commands:
  serve   run the correcting tile proxy (default)
  seed    fetch, correct and save the tiles covering the configured areas
  count   print feature counts per layer of the corrections archive

`)
	flag.PrintDefaults()
}
