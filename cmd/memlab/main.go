package main

import (
	"fmt"
	"os"

	"github.com/willibrandon/MemLab/pkg/version"
)

const (
	appName     = "memlab"
	historyFile = ".memlab_history"
	prompt      = "memlab> "
)

func red(s string) string { return "\x1b[31m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		os.Exit(cmdRepl())
	}

	switch os.Args[1] {
	case "repl":
		os.Exit(cmdRepl())
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "version":
		fmt.Println(version.Info())
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintln(os.Stderr, red(fmt.Sprintf("%s: unknown command %q", appName, os.Args[1])))
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`%s

Usage:
  %s                      Start the interactive session.
  %s repl                 Same as running with no arguments.
  %s run <scenario.yaml>  Replay a scenario file step by step.
  %s version              Print the compiled version.

`, version.Info(), appName, appName, appName, appName)
}

func cmdRun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s run <scenario.yaml>\n", appName)
		return 2
	}
	if err := RunScenario(args[0], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, red(fmt.Sprintf("%s: %v", appName, err)))
		return 1
	}
	return 0
}
