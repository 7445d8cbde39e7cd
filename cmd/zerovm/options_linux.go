package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zhiqian1027/zerovm/daemon"
)

type options struct {
	manifest  string
	script    string
	snapshot  string
	node      int
	debug     bool
	daemonize bool
	allowExec bool
}

// parseOptions reads the command line, or the spawn command when this
// process was started by a spawner. Spawned successors read their
// script from stdin and keep spawning enabled.
func parseOptions(cmd *daemon.Command) options {
	if cmd != nil {
		return options{
			manifest:  cmd.Manifest,
			node:      cmd.Node,
			daemonize: true,
		}
	}

	var opt options
	flag.Usage = printUsage
	flag.StringVar(&opt.manifest, "manifest", "", "Session manifest file (required)")
	flag.StringVar(&opt.script, "script", "", "Trap script to replay (default stdin)")
	flag.StringVar(&opt.snapshot, "snapshot", "", "Write a session snapshot on test traps")
	flag.BoolVar(&opt.debug, "debug", false, "Log every trap crossing")
	flag.BoolVar(&opt.daemonize, "daemon", false, "Allow fork traps to spawn successor nodes")
	flag.BoolVar(&opt.allowExec, "allow-exec", false, "Accept all executable validation requests")
	flag.Parse()

	if opt.manifest == "" {
		printUsage()
	}
	return opt
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -manifest <file> [flags]\n", os.Args[0])
	flag.PrintDefaults()
	os.Exit(2)
}
