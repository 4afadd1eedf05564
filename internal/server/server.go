// Package server exposes the report pipeline over HTTP and runs the daily
// scheduler.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jaehyun-park/krdaily/config"
	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/pipeline"
	"github.com/jaehyun-park/krdaily/internal/planner"
	"github.com/jaehyun-park/krdaily/internal/scoring"
	"github.com/jaehyun-park/krdaily/internal/store"
	"github.com/jaehyun-park/krdaily/internal/telemetry"
	"github.com/jaehyun-park/krdaily/internal/tools"
)

// Run assembles the full service and blocks serving HTTP.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging.
	httpLogger := telemetry.NewLogger("HTTP")
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	ctx := context.Background()
	serveLogger := telemetry.NewLogger("SERVE")

	// Postgres archive is optional: without it the service still produces
	// reports, it just cannot serve them back.
	var st *store.Store
	if dsn, err := cfg.Storage.Postgres.DSN(); err == nil {
		if merr := Migrate("file://migrations", dsn, "up", 0); merr != nil {
			serveLogger.Printf("migrations skipped: %v", merr)
		}
		st, err = store.NewWithDSN(ctx, dsn)
		if err != nil {
			return err
		}
	} else {
		serveLogger.Printf("report archive disabled: %v", err)
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr, err)
		}
	}

	pipe, err := buildPipeline(cfg, st, metrics)
	if err != nil {
		return err
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	auth := &AuthHandler{
		AdminEmail:    cfg.Server.AdminEmail,
		AdminPassHash: cfg.Server.AdminPassHash,
		Secret:        []byte(secret),
	}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	rh := &ReportsHandler{Runner: pipe, Rdb: rdb, Logger: httpLogger}
	if st != nil {
		rh.Reader = st
	}
	rh.Register(api, auth.Secret)

	if cfg.Schedule.Enabled {
		sched := &Scheduler{
			Runner: pipe,
			Rdb:    rdb,
			Cron:   cfg.Schedule.Cron,
			Stop:   make(chan struct{}),
		}
		if st != nil {
			sched.LastRuns = st
		}
		sched.Start()
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	serveLogger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// buildPipeline wires the planner, executor and tool runner from config.
func buildPipeline(cfg *config.Config, st *store.Store, metrics *telemetry.Metrics) (*pipeline.Pipeline, error) {
	scorer, err := scoring.NewScorer(scoring.Config{
		Weights: scoring.Weights{
			Source:      cfg.Scoring.SourceWeight,
			Recency:     cfg.Scoring.RecencyWeight,
			Structure:   cfg.Scoring.StructureWeight,
			Consistency: cfg.Scoring.ConsistencyWeight,
		},
		MainThreshold:    cfg.Scoring.MainThreshold,
		SupportThreshold: cfg.Scoring.SupportThreshold,
	})
	if err != nil {
		return nil, err
	}

	execOpts := []executor.Option{executor.WithDropThreshold(cfg.Scoring.DropThreshold)}
	if metrics != nil {
		execOpts = append(execOpts, executor.WithMetrics(metrics.ExecutorCallbacks()))
	}
	exec := executor.New(scorer, execOpts...)

	var llm planner.LLMClient
	if cfg.LLM.APIKey != "" {
		llm = planner.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model,
			cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
	}
	builder := planner.NewBuilder(llm, planner.NewCompiler(nil, cfg.Planner.MaxSteps))

	runnerFor := func(date time.Time) executor.ToolRunner {
		if cfg.Tools.UseMock {
			return tools.NewMockRunner(date)
		}
		return tools.NewHTTPRunner(tools.HTTPRunnerConfig{
			Timeout:           cfg.Tools.HTTPTimeout,
			DartAPIKey:        cfg.Tools.DartAPIKey,
			NaverClientID:     cfg.Tools.NaverClientID,
			NaverClientSecret: cfg.Tools.NaverClientSecret,
			UserAgent:         cfg.Tools.UserAgent,
		}, date)
	}

	pipeOpts := []pipeline.Option{pipeline.WithMaxCues(cfg.Planner.MaxCues)}
	if st != nil {
		pipeOpts = append(pipeOpts, pipeline.WithArchiver(st))
	}
	if metrics != nil {
		pipeOpts = append(pipeOpts, pipeline.WithMetrics(metrics))
	}
	return pipeline.New(builder, exec, runnerFor, pipeOpts...), nil
}
