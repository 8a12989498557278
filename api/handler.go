package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quantex/backtest"
	"quantex/config"
	"quantex/feed"
	"quantex/internal/runs"
	"quantex/store"
)

// maxRiskPct bounds request risk; the simulator itself accepts any value.
const (
	maxRiskPct   = 5.0
	maxListLimit = 100
)

// History is the persisted run archive.
type History interface {
	FindByID(ctx context.Context, id string) (*store.RunRecord, error)
	List(ctx context.Context, limit int) ([]store.RunRecord, error)
}

type Handler struct {
	runs    *runs.Manager
	history History
	cfg     *config.Config
	logger  *zap.Logger
}

func NewHandler(m *runs.Manager, history History, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{runs: m, history: history, cfg: cfg, logger: logger}
}

type backtestRequest struct {
	Bars            []backtest.Bar        `json:"bars"`
	Synthetic       *feed.SyntheticParams `json:"synthetic"`
	RiskPct         *float64              `json:"risk_pct"`
	StartingBalance *float64              `json:"starting_balance"`
	Symbol          string                `json:"symbol"`
	Timeframe       string                `json:"timeframe"`
	Async           bool                  `json:"async"`
}

type structureRequest struct {
	Bars []backtest.Bar `json:"bars"`
}

// runSummary is a run without its trade log, for listings.
type runSummary struct {
	ID         string            `json:"id"`
	Status     runs.Status       `json:"status"`
	Symbol     string            `json:"symbol,omitempty"`
	Timeframe  string            `json:"timeframe,omitempty"`
	Summary    *backtest.Summary `json:"summary,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func summarize(r runs.Run) runSummary {
	out := runSummary{ID: r.ID, Status: r.Status, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt}
	if r.Result != nil {
		out.Symbol = r.Result.Symbol
		out.Timeframe = r.Result.Timeframe
		sum := r.Result.Summary
		out.Summary = &sum
	}
	return out
}

// PostBacktest runs a backtest over posted or synthetic bars.
func (h *Handler) PostBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBodyError(c, err)
		return
	}

	bars, err := requestBars(req.Bars, req.Synthetic)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := h.runConfig(req.RiskPct, req.StartingBalance, req.Symbol, req.Timeframe)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, bars, cfg, req.Async)
}

// PostBacktestCSV runs a backtest over an uploaded CSV file (form field "file").
func (h *Handler) PostBacktestCSV(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondBodyError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	kl, err := feed.ReadCSV(f, c.Query("encoding"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(kl) > feed.MaxBars {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("too many bars: %d (max %d)", len(kl), feed.MaxBars)})
		return
	}
	if err := feed.Validate(kl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var riskPct, balance *float64
	if v := c.Query("risk_pct"); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid risk_pct"})
			return
		}
		riskPct = &pct
	}
	if v := c.Query("starting_balance"); v != "" {
		bal, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid starting_balance"})
			return
		}
		balance = &bal
	}
	cfg, err := h.runConfig(riskPct, balance, c.Query("symbol"), c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, backtest.FromKLines(kl), cfg, c.Query("async") == "true")
}

func (h *Handler) submit(c *gin.Context, bars []backtest.Bar, cfg backtest.RunConfig, async bool) {
	id, err := h.runs.Submit(bars, cfg)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if async {
		c.JSON(http.StatusAccepted, gin.H{"code": 0, "data": gin.H{"id": id}})
		return
	}

	run, err := h.runs.Wait(c.Request.Context(), id)
	if err != nil {
		// Client went away; the run keeps going and can be fetched by id.
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error(), "id": id})
		return
	}
	switch run.Status {
	case runs.StatusCompleted:
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": run})
	case runs.StatusCancelled:
		c.JSON(http.StatusConflict, gin.H{"error": "run superseded by a newer submission", "id": id})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": run.Error, "id": id})
	}
}

func (h *Handler) runConfig(riskPct, balance *float64, symbol, timeframe string) (backtest.RunConfig, error) {
	cfg := backtest.RunConfig{
		Symbol:          symbol,
		Timeframe:       timeframe,
		RiskPct:         h.cfg.RiskPct,
		StartingBalance: h.cfg.StartingBalance,
	}
	if riskPct != nil {
		cfg.RiskPct = *riskPct
	}
	if cfg.RiskPct <= 0 || cfg.RiskPct > maxRiskPct {
		return cfg, fmt.Errorf("risk_pct must be in (0, %g]", maxRiskPct)
	}
	if balance != nil {
		cfg.StartingBalance = *balance
	}
	if cfg.StartingBalance <= 0 {
		return cfg, errors.New("starting_balance must be positive")
	}
	return cfg, nil
}

func respondBodyError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}

func requestBars(bars []backtest.Bar, syn *feed.SyntheticParams) ([]backtest.Bar, error) {
	if len(bars) > feed.MaxBars {
		return nil, fmt.Errorf("too many bars: %d (max %d)", len(bars), feed.MaxBars)
	}
	if len(bars) > 0 {
		if err := feed.Validate(toKLines(bars)); err != nil {
			return nil, err
		}
		return bars, nil
	}
	if syn != nil {
		kl, err := feed.Synthetic(*syn)
		if err != nil {
			return nil, err
		}
		return backtest.FromKLines(kl), nil
	}
	return nil, errors.New("either bars or synthetic is required")
}

func toKLines(bars []backtest.Bar) []feed.KLine {
	kl := make([]feed.KLine, len(bars))
	for i, b := range bars {
		kl[i] = feed.KLine{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return kl
}

// ListRuns lists recent runs, newest first. In-memory runs (running ones and
// reset state included) take precedence over their archived copies.
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be an integer in [1, %d]", maxListLimit)})
		return
	}

	mem := h.runs.List(limit)
	out := make([]runSummary, 0, limit)
	seen := make(map[string]bool, len(mem))
	for _, r := range mem {
		out = append(out, summarize(r))
		seen[r.ID] = true
	}

	if h.history != nil {
		recs, err := h.history.List(c.Request.Context(), limit)
		if err != nil {
			h.logger.Error("list runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
			return
		}
		for _, rec := range recs {
			if seen[rec.ID] {
				continue
			}
			out = append(out, summarize(rec.Run()))
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
		if len(out) > limit {
			out = out[:limit]
		}
	}

	c.JSON(http.StatusOK, gin.H{"code": 0, "count": len(out), "data": out})
}

func (h *Handler) GetLatestRun(c *gin.Context) {
	run, ok := h.runs.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": run})
}

// ResetLatestRun clears the latest run's trade log and restores its balance.
func (h *Handler) ResetLatestRun(c *gin.Context) {
	run, ok := h.runs.Reset()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": run})
}

func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.findRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": run})
}

func (h *Handler) GetRunTradesCSV(c *gin.Context) {
	id := c.Param("id")
	run, err := h.findRun(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	if run.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run has no result", "status": run.Status})
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=trades-%s.csv", id))
	c.Status(http.StatusOK)
	if err := backtest.WriteTradesCSV(c.Writer, run.Result.Trades); err != nil {
		h.logger.Error("write trades csv failed", zap.String("id", id), zap.Error(err))
	}
}

// GetRunChartSVG draws a run over its bars. Only runs still held in memory
// carry their bar series.
func (h *Handler) GetRunChartSVG(c *gin.Context) {
	run, ok := h.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "id": c.Param("id")})
		return
	}
	if run.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run has no result", "status": run.Status})
		return
	}
	svg, err := backtest.RenderTradesSVG(*run.Result, run.Bars, backtest.SVGChartOptions{})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", svg)
}

func (h *Handler) findRun(ctx context.Context, id string) (runs.Run, error) {
	if run, ok := h.runs.Get(id); ok {
		return run, nil
	}
	if h.history == nil {
		return runs.Run{}, runs.ErrNotFound
	}
	rec, err := h.history.FindByID(ctx, id)
	if err != nil {
		return runs.Run{}, err
	}
	return rec.Run(), nil
}

func (h *Handler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, runs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "id": c.Param("id")})
		return
	}
	h.logger.Error("run lookup failed", zap.String("id", c.Param("id")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "run lookup failed"})
}

// PostStructure scans posted bars: trend of the whole series plus the pattern
// and signal on its last bar.
func (h *Handler) PostStructure(c *gin.Context) {
	var req structureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBodyError(c, err)
		return
	}
	if len(req.Bars) == 0 || len(req.Bars) > feed.MaxBars {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bars must hold 1 to %d entries", feed.MaxBars)})
		return
	}
	if err := feed.Validate(toKLines(req.Bars)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": backtest.Scan(req.Bars)})
}

// GetStructure scans the series of the latest completed run.
func (h *Handler) GetStructure(c *gin.Context) {
	run, ok := h.runs.Latest()
	if !ok || len(run.Bars) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": backtest.Scan(run.Bars)})
}
