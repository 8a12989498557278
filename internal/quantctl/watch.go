package quantctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quantex/backtest"
	"quantex/internal/runs"
	"quantex/internal/terminalui"
)

type snapshot struct {
	Latest    *runs.Run
	Structure *backtest.ScanResult
}

// runWatch redraws the daemon's latest run and structure until interrupted.
func runWatch(serverURL string, interval time.Duration, stdout io.Writer) error {
	base := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if base == "" {
		base = "http://localhost:19627"
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	client := &http.Client{Timeout: 15 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := fetchSnapshot(ctx, client, base)
	if err != nil {
		return err
	}
	color := isTerminal(stdout)
	renderSnapshot(stdout, snap, time.Now(), color)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := fetchSnapshot(ctx, client, base)
			if err != nil {
				// Keep last screen; next tick may recover.
				continue
			}
			renderSnapshot(stdout, snap, time.Now(), color)
		}
	}
}

type envelope[T any] struct {
	Code int `json:"code"`
	Data T   `json:"data"`
}

var errNotFound = errors.New("not found")

// fetchSnapshot treats 404 as "nothing yet"; any other failure is an error.
func fetchSnapshot(ctx context.Context, client *http.Client, base string) (snapshot, error) {
	var snap snapshot

	var latest envelope[runs.Run]
	switch err := getJSON(ctx, client, base+"/api/runs/latest", &latest); {
	case err == nil:
		snap.Latest = &latest.Data
	case !errors.Is(err, errNotFound):
		return snapshot{}, fmt.Errorf("fetch latest run from %s: %w", base, err)
	}

	var sc envelope[backtest.ScanResult]
	switch err := getJSON(ctx, client, base+"/api/structure", &sc); {
	case err == nil:
		snap.Structure = &sc.Data
	case !errors.Is(err, errNotFound):
		return snapshot{}, fmt.Errorf("fetch structure from %s: %w", base, err)
	}
	return snap, nil
}

func renderSnapshot(w io.Writer, snap snapshot, now time.Time, color bool) {
	if color {
		fmt.Fprint(w, "\033[2J\033[H")
	}
	fmt.Fprintf(w, "quantd  %s\n", now.Format("2006-01-02 15:04:05"))
	opts := terminalui.Options{Color: color, MaxTrades: 15}
	if snap.Structure != nil {
		terminalui.RenderScan(w, *snap.Structure, opts)
	}
	if snap.Latest != nil && snap.Latest.Result != nil {
		terminalui.RenderResult(w, *snap.Latest.Result, opts)
	} else {
		fmt.Fprintln(w, "no completed run yet")
	}
	fmt.Fprintln(w, "  Ctrl+C to quit")
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: http %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
