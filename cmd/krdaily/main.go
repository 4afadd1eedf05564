package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaehyun-park/krdaily/config"
	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/pipeline"
	"github.com/jaehyun-park/krdaily/internal/planner"
	"github.com/jaehyun-park/krdaily/internal/scoring"
	srv "github.com/jaehyun-park/krdaily/internal/server"
	"github.com/jaehyun-park/krdaily/internal/tools"
)

func main() {
	var root = &cobra.Command{Use: "krdaily"}
	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			return srv.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to server.address)")

	var reportDate string
	var reportCues []string
	var useMock bool
	var report = &cobra.Command{
		Use:   "report",
		Short: "Produce one report and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			date := time.Now().UTC().Truncate(24 * time.Hour)
			if reportDate != "" {
				parsed, err := time.Parse("2006-01-02", reportDate)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				date = parsed
			}

			pipe, err := buildLocalPipeline(cfg, useMock)
			if err != nil {
				return err
			}
			res, err := pipe.Run(cmd.Context(), date, reportCues)
			if err != nil {
				return err
			}
			fmt.Println(res.Rendered)
			return nil
		},
	}
	report.Flags().StringVar(&reportDate, "date", "", "report date (YYYY-MM-DD, default today)")
	report.Flags().StringSliceVar(&reportCues, "cue", nil, "market cue driving plan enrichment (repeatable)")
	report.Flags().BoolVar(&useMock, "mock", false, "use deterministic fixture data sources")

	var migDir string
	var direction string
	var steps int
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				var err error
				dsn, err = cfg.Storage.Postgres.DSN()
				if err != nil {
					return err
				}
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	root.AddCommand(serve, report, migrate)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}

// buildLocalPipeline assembles a pipeline without the HTTP server, for
// one-shot report runs from the command line.
func buildLocalPipeline(cfg *config.Config, useMock bool) (*pipeline.Pipeline, error) {
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
	exec := executor.New(scorer, executor.WithDropThreshold(cfg.Scoring.DropThreshold))

	var llm planner.LLMClient
	if cfg.LLM.APIKey != "" {
		llm = planner.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model,
			cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
	}
	builder := planner.NewBuilder(llm, planner.NewCompiler(nil, cfg.Planner.MaxSteps))

	runnerFor := func(date time.Time) executor.ToolRunner {
		if useMock || cfg.Tools.UseMock {
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
	return pipeline.New(builder, exec, runnerFor, pipeline.WithMaxCues(cfg.Planner.MaxCues)), nil
}
