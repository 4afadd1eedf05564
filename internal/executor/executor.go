// Package executor runs compiled collection plans against tool collaborators
// and applies the quality gate. Partial failure never aborts a run: each
// failed step is recorded and execution continues, so a degraded-but-usable
// report is always preferred over no report.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jaehyun-park/krdaily/internal/planner"
	"github.com/jaehyun-park/krdaily/internal/scoring"
)

// DefaultDropThreshold is the minimum quality score an item needs to be
// retained (inclusive).
const DefaultDropThreshold = 0.5

// Result is what a tool call produces: an opaque payload plus the source
// metadata used for quality gating. The executor never inspects the payload.
type Result struct {
	Payload interface{}
	Meta    scoring.SourceMeta
}

// ToolRunner executes a single named operation. Implementations own all
// transport concerns; retry policy, if any, belongs here and not in the
// executor.
type ToolRunner interface {
	Call(ctx context.Context, operation string, params map[string]interface{}) (Result, error)
}

// StepFailure records a plan step that could not be executed.
type StepFailure struct {
	Operation string `json:"operation"`
	Layer     string `json:"layer"`
	Reason    string `json:"reason"`
}

// CollectedItem is one retained result tied to its step's layer.
type CollectedItem struct {
	Operation string             `json:"operation"`
	Payload   interface{}        `json:"payload"`
	Meta      scoring.SourceMeta `json:"-"`
	Score     float64            `json:"quality_score"`
	Band      scoring.Band       `json:"quality_band"`
}

// ReportData is the quality-filtered, layered output of one run. Every layer
// referenced by any plan step is present as a key, even when empty, so
// downstream consumers can always query any layer name.
type ReportData struct {
	TargetDate time.Time
	Layers     map[string][]CollectedItem
	LayerOrder []string
	Failures   []StepFailure
	Dropped    int
}

// HasSupportMixed reports whether the layer retained any support-band item.
// The report assembler prepends a caution notice to such layers.
func (d *ReportData) HasSupportMixed(layer string) bool {
	for _, item := range d.Layers[layer] {
		if item.Band == scoring.BandSupport {
			return true
		}
	}
	return false
}

// Retained returns the total number of retained items across layers.
func (d *ReportData) Retained() int {
	n := 0
	for _, items := range d.Layers {
		n += len(items)
	}
	return n
}

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	StepSucceeded func(operation, layer string)
	StepFailed    func(operation, layer string)
	ItemDropped   func(layer string)
}

// Option configures executor behaviour.
type Option func(*Executor)

// WithMetrics sets executor metrics callbacks.
func WithMetrics(m Metrics) Option {
	return func(ex *Executor) {
		ex.metrics = m
	}
}

// WithDropThreshold overrides the default retention threshold.
func WithDropThreshold(threshold float64) Option {
	return func(ex *Executor) {
		ex.dropThreshold = threshold
	}
}

// Executor iterates plan steps sequentially, scores each tool result and
// keeps only items at or above the drop threshold.
type Executor struct {
	scorer        *scoring.Scorer
	dropThreshold float64
	metrics       Metrics
	logger        *log.Logger
}

// New creates an executor around a scorer.
func New(scorer *scoring.Scorer, opts ...Option) *Executor {
	ex := &Executor{
		scorer:        scorer,
		dropThreshold: DefaultDropThreshold,
		logger:        log.New(log.Writer(), "[EXEC] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Execute runs the plan with the executor's configured threshold.
func (e *Executor) Execute(ctx context.Context, plan planner.Plan, runner ToolRunner) *ReportData {
	return e.ExecuteWithThreshold(ctx, plan, runner, e.dropThreshold)
}

// ExecuteWithThreshold runs the plan with a per-call drop threshold. The same
// threshold applies uniformly to all layers. It always returns a ReportData:
// per-step failures are recorded, never propagated.
func (e *Executor) ExecuteWithThreshold(ctx context.Context, plan planner.Plan, runner ToolRunner, threshold float64) *ReportData {
	data := &ReportData{
		TargetDate: plan.TargetDate,
		Layers:     make(map[string][]CollectedItem, len(plan.Steps)),
		LayerOrder: plan.Layers(),
	}
	for _, layer := range data.LayerOrder {
		data.Layers[layer] = []CollectedItem{}
	}

	for _, step := range plan.Steps {
		result, err := callStep(ctx, runner, step)
		if err != nil {
			e.logger.Printf("step %s (%s) failed: %v", step.Operation, step.Layer, err)
			data.Failures = append(data.Failures, StepFailure{
				Operation: step.Operation,
				Layer:     step.Layer,
				Reason:    err.Error(),
			})
			if e.metrics.StepFailed != nil {
				e.metrics.StepFailed(step.Operation, step.Layer)
			}
			continue
		}

		score, band := e.scorer.Evaluate(result.Meta)
		if score < threshold {
			data.Dropped++
			if e.metrics.ItemDropped != nil {
				e.metrics.ItemDropped(step.Layer)
			}
			continue
		}
		data.Layers[step.Layer] = append(data.Layers[step.Layer], CollectedItem{
			Operation: step.Operation,
			Payload:   result.Payload,
			Meta:      result.Meta,
			Score:     score,
			Band:      band,
		})
		if e.metrics.StepSucceeded != nil {
			e.metrics.StepSucceeded(step.Operation, step.Layer)
		}
	}
	return data
}

// callStep shields the run from runner panics: tool parameters come from
// untrusted plan input, and a panicking step must degrade to a StepFailure
// like any other per-step error.
func callStep(ctx context.Context, runner ToolRunner, step planner.PlanStep) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	return runner.Call(ctx, step.Operation, step.Params)
}
