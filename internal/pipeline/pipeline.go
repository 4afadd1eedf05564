// Package pipeline drives one end-to-end report run: plan, execute, assemble,
// archive.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/planner"
	"github.com/jaehyun-park/krdaily/internal/report"
	"github.com/jaehyun-park/krdaily/internal/store"
	"github.com/jaehyun-park/krdaily/internal/telemetry"
)

// Archiver persists run outcomes. *store.Store satisfies it; a nil archiver
// disables persistence.
type Archiver interface {
	CreateRun(ctx context.Context, runID string, reportDate time.Time, cues []string) error
	FinishRun(ctx context.Context, runID, status string, retained, dropped int, failures []executor.StepFailure) error
	SaveReport(ctx context.Context, runID string, reportDate time.Time, rendered string, prompt interface{}) error
}

// RunnerFactory builds the tool runner bound to one report date.
type RunnerFactory func(targetDate time.Time) executor.ToolRunner

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID    string               `json:"run_id"`
	Date     string               `json:"date"`
	Plan     planner.Plan         `json:"plan"`
	Data     *executor.ReportData `json:"-"`
	Prompt   report.Prompt        `json:"prompt"`
	Rendered string               `json:"rendered"`
	Retained int                  `json:"retained"`
	Dropped  int                  `json:"dropped"`
	Duration time.Duration        `json:"-"`
}

// Pipeline wires the planner, executor and assembler into a single run.
type Pipeline struct {
	builder   *planner.Builder
	executor  *executor.Executor
	runnerFor RunnerFactory
	assembler *report.Assembler
	archiver  Archiver
	metrics   *telemetry.Metrics
	maxCues   int
	logger    *log.Logger
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithArchiver persists runs and reports through the given archiver.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithMetrics records run counters and durations.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithMaxCues caps how many market cues feed plan enrichment. Zero means
// no cap.
func WithMaxCues(n int) Option {
	return func(p *Pipeline) { p.maxCues = n }
}

// New creates a pipeline. builder, exec and runnerFor are required.
func New(builder *planner.Builder, exec *executor.Executor, runnerFor RunnerFactory, opts ...Option) *Pipeline {
	p := &Pipeline{
		builder:   builder,
		executor:  exec,
		runnerFor: runnerFor,
		assembler: report.NewAssembler(),
		logger:    telemetry.NewLogger("PIPELINE"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full report run for the target date. Tool-step failures
// degrade the report but never fail the run; only archiver errors surface
// as warnings in the log.
func (p *Pipeline) Run(ctx context.Context, targetDate time.Time, cues []string) (*RunResult, error) {
	runID := uuid.New().String()
	started := time.Now()
	if p.maxCues > 0 && len(cues) > p.maxCues {
		p.logger.Printf("run %s: truncating %d cues to %d", runID, len(cues), p.maxCues)
		cues = cues[:p.maxCues]
	}
	p.logger.Printf("run %s started for %s (cues: %d)", runID, targetDate.Format("2006-01-02"), len(cues))
	if p.metrics != nil {
		p.metrics.RunsTotal.Inc()
	}
	if p.archiver != nil {
		if err := p.archiver.CreateRun(ctx, runID, targetDate, cues); err != nil {
			p.logger.Printf("run %s: archive create failed: %v", runID, err)
		}
	}

	plan := p.builder.Build(ctx, planner.BuildContext{TargetDate: targetDate, Cues: cues})
	data := p.executor.Execute(ctx, plan, p.runnerFor(targetDate))
	if err := ctx.Err(); err != nil {
		p.logger.Printf("run %s aborted: %v", runID, err)
		return nil, err
	}
	out := p.assembler.BuildReport(data)
	prompt := p.assembler.BuildPrompt(data)
	rendered := out.Text()

	result := &RunResult{
		RunID:    runID,
		Date:     targetDate.Format("2006-01-02"),
		Plan:     plan,
		Data:     data,
		Prompt:   prompt,
		Rendered: rendered,
		Retained: data.Retained(),
		Dropped:  data.Dropped,
		Duration: time.Since(started),
	}

	if p.archiver != nil {
		status := store.RunStatusSucceeded
		if result.Retained == 0 {
			status = store.RunStatusFailed
		}
		if err := p.archiver.SaveReport(ctx, runID, targetDate, rendered, prompt); err != nil {
			p.logger.Printf("run %s: archive report failed: %v", runID, err)
		}
		if err := p.archiver.FinishRun(ctx, runID, status, result.Retained, result.Dropped, data.Failures); err != nil {
			p.logger.Printf("run %s: archive finish failed: %v", runID, err)
		}
	}
	if p.metrics != nil {
		p.metrics.RunDuration.Observe(result.Duration.Seconds())
	}
	p.logger.Printf("run %s finished in %s: %d retained, %d dropped, %d failed steps",
		runID, result.Duration.Round(time.Millisecond), result.Retained, result.Dropped, len(data.Failures))
	return result, nil
}
