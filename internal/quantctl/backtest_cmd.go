package quantctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	"quantex/backtest"
	"quantex/feed"
	"quantex/internal/terminalui"
)

type outputFormat string

const (
	formatJSON outputFormat = "json"
	formatText outputFormat = "text"
	formatCSV  outputFormat = "csv"
	formatSVG  outputFormat = "svg"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case formatJSON, formatText, formatCSV, formatSVG:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// sourceOverride replaces the configured data source with a synthetic series
// when market is set.
type sourceOverride struct {
	market feed.Market
	seed   int64
	bars   int
}

func (o sourceOverride) active() bool { return o.market != "" }

// loadRunConfig reads the YAML run config. With a synthetic override the file
// is optional and defaults apply when it is missing.
func loadRunConfig(path string, o sourceOverride) (backtest.RunConfig, error) {
	cfg := backtest.DefaultRunConfig()
	if _, err := os.Stat(path); err == nil || !o.active() {
		loaded, err := backtest.LoadRunConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if o.active() {
		cfg.Data = feed.Source{Synthetic: &feed.SyntheticParams{Market: o.market, Seed: o.seed, Bars: o.bars}}
	}
	return cfg, nil
}

func runBacktest(cfgPath, outPath string, format outputFormat, o sourceOverride, stdout io.Writer) error {
	cfg, err := loadRunConfig(cfgPath, o)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, bars, err := backtest.NewRunner().Run(ctx, cfg)
	if err != nil {
		return err
	}

	return withOutput(outPath, stdout, func(w io.Writer) error {
		switch format {
		case formatJSON:
			return backtest.WriteResultJSON(w, res)
		case formatCSV:
			return backtest.WriteTradesCSV(w, res.Trades)
		case formatSVG:
			svg, err := backtest.RenderTradesSVG(res, bars, backtest.SVGChartOptions{})
			if err != nil {
				return err
			}
			_, err = w.Write(svg)
			return err
		default:
			terminalui.RenderResult(w, res, terminalui.Options{Color: w == stdout && isTerminal(stdout)})
			return nil
		}
	})
}

func runStructure(cfgPath, outPath string, jsonOut bool, o sourceOverride, stdout io.Writer) error {
	cfg, err := loadRunConfig(cfgPath, o)
	if err != nil {
		return err
	}
	bars, err := backtest.NewRunner().LoadBars(cfg)
	if err != nil {
		return err
	}
	sc := backtest.Scan(bars)

	return withOutput(outPath, stdout, func(w io.Writer) error {
		if jsonOut {
			return writeJSON(w, sc)
		}
		terminalui.RenderScan(w, sc, terminalui.Options{Color: w == stdout && isTerminal(stdout)})
		return nil
	})
}

// withOutput runs fn against stdout or a created file at path.
func withOutput(path string, stdout io.Writer, fn func(io.Writer) error) error {
	if strings.TrimSpace(path) == "" {
		return fn(stdout)
	}
	if err := ensureParentDir(path); err != nil {
		return fmt.Errorf("prepare output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
