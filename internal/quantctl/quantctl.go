package quantctl

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"quantex/feed"
	"quantex/internal/logging"
)

// Run is the CLI entry point; it returns the process exit code.
func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quantctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		backtestMode   bool
		backtestConfig string
		backtestOut    string
		format         string

		structureMode bool
		structureJSON bool

		synthetic string
		seed      int64
		bars      int

		watchMode     bool
		serverURL     string
		watchInterval time.Duration

		logLevel string
	)

	fs.BoolVar(&backtestMode, "backtest", false, "run a backtest and exit")
	fs.StringVar(&backtestConfig, "bt-config", "backtest.yaml", "backtest config file (YAML); optional with -synthetic")
	fs.StringVar(&backtestOut, "bt-out", "", "output path (default stdout)")
	fs.StringVar(&format, "format", "text", "backtest output format: json, text, csv or svg")

	fs.BoolVar(&structureMode, "structure", false, "print trend, pattern and signal for the last bar of the series and exit")
	fs.BoolVar(&structureJSON, "structure-json", false, "print -structure output as JSON")

	fs.StringVar(&synthetic, "synthetic", "", "use a generated series instead of the configured data: crypto, forex or stocks")
	fs.Int64Var(&seed, "seed", 1, "seed for -synthetic")
	fs.IntVar(&bars, "bars", 0, "bar count for -synthetic (default 200)")

	fs.BoolVar(&watchMode, "watch", false, "poll a running quantd and redraw the latest run and structure")
	fs.StringVar(&serverURL, "server", "http://localhost:19627", "quantd base URL for -watch")
	fs.DurationVar(&watchInterval, "watch-interval", 5*time.Second, "poll interval for -watch")

	fs.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, err := logging.New(logLevel, true)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer logger.Sync()

	modes := 0
	for _, on := range []bool{backtestMode, structureMode, watchMode} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		logger.Error("-backtest, -structure and -watch are mutually exclusive")
		return 2
	}

	src := sourceOverride{seed: seed, bars: bars}
	if synthetic != "" {
		src.market = feed.Market(synthetic)
	}

	switch {
	case backtestMode:
		f, err := parseFormat(format)
		if err != nil {
			logger.Error("invalid -format", zap.Error(err))
			return 2
		}
		if err := runBacktest(backtestConfig, backtestOut, f, src, stdout); err != nil {
			logger.Error("backtest failed", zap.Error(err))
			return 1
		}
		return 0

	case structureMode:
		if err := runStructure(backtestConfig, backtestOut, structureJSON, src, stdout); err != nil {
			logger.Error("structure scan failed", zap.Error(err))
			return 1
		}
		return 0

	case watchMode:
		if err := runWatch(serverURL, watchInterval, stdout); err != nil {
			logger.Error("watch failed", zap.Error(err))
			return 1
		}
		return 0
	}

	fmt.Fprintln(stderr, "Usage:")
	fmt.Fprintln(stderr, "  quantctl -backtest -bt-config backtest.yaml [-bt-out report.json] [-format json|text|csv|svg]")
	fmt.Fprintln(stderr, "  quantctl -backtest -synthetic crypto [-seed 7] [-bars 500]")
	fmt.Fprintln(stderr, "  quantctl -structure [-bt-config backtest.yaml | -synthetic forex] [-structure-json]")
	fmt.Fprintln(stderr, "  quantctl -watch [-server http://localhost:19627]")
	return 2
}
