package main

import (
	"os"

	"quantex/internal/quantctl"
	"quantex/internal/quantd"
)

// Version is injected by build scripts via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	args := os.Args[1:]
	if shouldRouteToCtl(args) {
		os.Exit(quantctl.Run(args))
	}
	os.Exit(quantd.Run(args))
}

// shouldRouteToCtl picks the one-shot CLI for any of its mode flags; everything
// else starts the daemon.
func shouldRouteToCtl(args []string) bool {
	for _, a := range args {
		switch a {
		case "-backtest", "--backtest", "-structure", "--structure", "-watch", "--watch":
			return true
		}
	}
	return false
}
