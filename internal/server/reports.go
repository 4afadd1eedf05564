package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/jaehyun-park/krdaily/internal/pipeline"
	"github.com/jaehyun-park/krdaily/internal/store"
)

const reportCacheTTL = 10 * time.Minute

// ReportRunner triggers one full report run. *pipeline.Pipeline satisfies it.
type ReportRunner interface {
	Run(ctx context.Context, targetDate time.Time, cues []string) (*pipeline.RunResult, error)
}

// ReportReader serves archived reports and runs. *store.Store satisfies it.
type ReportReader interface {
	LatestReport(ctx context.Context, reportDate time.Time) (store.ReportRecord, bool, error)
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
}

// ReportsHandler exposes report runs over HTTP.
type ReportsHandler struct {
	Runner ReportRunner
	Reader ReportReader
	Rdb    *redis.Client
	Logger *log.Logger
}

type runRequest struct {
	Date string   `json:"date"` // YYYY-MM-DD, defaults to today
	Cues []string `json:"cues"`
}

type runResponse struct {
	RunID    string `json:"run_id"`
	Date     string `json:"date"`
	Retained int    `json:"retained"`
	Dropped  int    `json:"dropped"`
	Failures int    `json:"failures"`
	Rendered string `json:"rendered"`
}

// Register mounts the report routes. Triggering and run listing require auth;
// reading an archived report does not.
func (h *ReportsHandler) Register(g *echo.Group, secret []byte) {
	g.GET("/reports/:date", h.getReport)

	protected := g.Group("")
	protected.Use(AuthMiddleware(secret))
	protected.POST("/reports/run", h.triggerRun)
	protected.GET("/runs", h.listRuns)
}

func (h *ReportsHandler) triggerRun(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		date = parsed
	}

	res, err := h.Runner.Run(c.Request().Context(), date, req.Cues)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.invalidateCache(c.Request().Context(), res.Date)
	return c.JSON(http.StatusOK, runResponse{
		RunID:    res.RunID,
		Date:     res.Date,
		Retained: res.Retained,
		Dropped:  res.Dropped,
		Failures: len(res.Data.Failures),
		Rendered: res.Rendered,
	})
}

func (h *ReportsHandler) getReport(c echo.Context) error {
	raw := c.Param("date")
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	if h.Reader == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "report archive not configured")
	}

	ctx := c.Request().Context()
	if cached := h.cacheGet(ctx, raw); cached != "" {
		return c.String(http.StatusOK, cached)
	}
	rec, ok, err := h.Reader.LatestReport(ctx, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no report for "+raw)
	}
	h.cacheSet(ctx, raw, rec.Rendered)
	return c.String(http.StatusOK, rec.Rendered)
}

func (h *ReportsHandler) listRuns(c echo.Context) error {
	if h.Reader == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "report archive not configured")
	}
	runs, err := h.Reader.ListRuns(c.Request().Context(), 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *ReportsHandler) cacheGet(ctx context.Context, date string) string {
	if h.Rdb == nil {
		return ""
	}
	val, err := h.Rdb.Get(ctx, reportCacheKey(date)).Result()
	if err != nil {
		return ""
	}
	return val
}

func (h *ReportsHandler) cacheSet(ctx context.Context, date, rendered string) {
	if h.Rdb == nil {
		return
	}
	if err := h.Rdb.Set(ctx, reportCacheKey(date), rendered, reportCacheTTL).Err(); err != nil && h.Logger != nil {
		h.Logger.Printf("report cache set failed: %v", err)
	}
}

func (h *ReportsHandler) invalidateCache(ctx context.Context, date string) {
	if h.Rdb == nil {
		return
	}
	if err := h.Rdb.Del(ctx, reportCacheKey(date)).Err(); err != nil && h.Logger != nil {
		h.Logger.Printf("report cache invalidation failed: %v", err)
	}
}

func reportCacheKey(date string) string { return "report:rendered:" + date }
