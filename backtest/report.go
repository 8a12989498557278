package backtest

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func WriteResultJSON(w io.Writer, res Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

var tradeCSVHeader = []string{
	"id", "time", "direction", "pattern", "entry", "stop_loss", "take_profit",
	"position_size", "outcome", "exit_reason", "pnl", "balance",
}

// WriteTradesCSV exports the trade log in log order.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeCSVHeader); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			strconv.Itoa(t.ID),
			t.Time.UTC().Format(time.RFC3339),
			string(t.Direction),
			string(t.Pattern),
			formatPrice(t.Entry),
			formatPrice(t.StopLoss),
			formatPrice(t.TakeProfit),
			formatPrice(t.Size),
			string(t.Outcome),
			string(t.ExitReason),
			decimal.NewFromFloat(t.PnL).StringFixed(2),
			decimal.NewFromFloat(t.BalanceAfter).StringFixed(2),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatPrice(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

func round1(x float64) float64 {
	return decimal.NewFromFloat(x).Round(1).InexactFloat64()
}
