package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jaehyun-park/krdaily/internal/planner"
	"github.com/jaehyun-park/krdaily/internal/scoring"
)

var testDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

// stubRunner serves canned results keyed by operation name.
type stubRunner struct {
	results map[string]Result
	errs    map[string]error
	calls   []string
}

func (s *stubRunner) Call(ctx context.Context, operation string, params map[string]interface{}) (Result, error) {
	s.calls = append(s.calls, operation)
	if err, ok := s.errs[operation]; ok {
		return Result{}, err
	}
	if r, ok := s.results[operation]; ok {
		return r, nil
	}
	return Result{}, fmt.Errorf("unexpected operation %s", operation)
}

func uniformMeta(id string, v float64) scoring.SourceMeta {
	return scoring.NewSourceMeta(id, v, v, v, v)
}

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	scorer, err := scoring.NewScorer(scoring.DefaultConfig())
	if err != nil {
		t.Fatalf("scorer: %v", err)
	}
	return New(scorer, opts...)
}

func basePlanRunner(score float64) *stubRunner {
	return &stubRunner{results: map[string]Result{
		planner.OpIndexSnapshot: {Payload: "indices", Meta: uniformMeta("krx", score)},
		planner.OpMacroSnapshot: {Payload: "macro", Meta: uniformMeta("bok", score)},
		planner.OpDartFilings:   {Payload: "filings", Meta: uniformMeta("opendart", score)},
	}}
}

func TestExecuteBasePlanAllMainBand(t *testing.T) {
	ex := newTestExecutor(t)
	data := ex.Execute(context.Background(), planner.BasePlan(testDate), basePlanRunner(0.8))

	if len(data.Layers) != 3 {
		t.Fatalf("expected 3 layers, got %d", len(data.Layers))
	}
	for _, layer := range []string{planner.LayerIndex, planner.LayerMacro, planner.LayerFiling} {
		items, ok := data.Layers[layer]
		if !ok {
			t.Fatalf("layer %s missing from report data", layer)
		}
		if len(items) != 1 {
			t.Fatalf("layer %s: expected 1 item, got %d", layer, len(items))
		}
		if items[0].Band != scoring.BandMain {
			t.Fatalf("layer %s: expected main band, got %s", layer, items[0].Band)
		}
		if data.HasSupportMixed(layer) {
			t.Fatalf("layer %s: unexpected support-mixed flag", layer)
		}
	}
	if len(data.Failures) != 0 || data.Dropped != 0 {
		t.Fatalf("unexpected failures %d / dropped %d", len(data.Failures), data.Dropped)
	}
}

func TestExecuteRecordsFailuresAndContinues(t *testing.T) {
	ex := newTestExecutor(t)
	runner := basePlanRunner(0.8)
	runner.errs = map[string]error{planner.OpMacroSnapshot: fmt.Errorf("upstream 503")}

	data := ex.Execute(context.Background(), planner.BasePlan(testDate), runner)

	// 3 steps, 1 failure: exactly 2 evaluated items and 1 recorded failure.
	if got := data.Retained() + data.Dropped; got != 2 {
		t.Fatalf("expected 2 evaluated items, got %d", got)
	}
	if len(data.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(data.Failures))
	}
	f := data.Failures[0]
	if f.Operation != planner.OpMacroSnapshot || f.Layer != planner.LayerMacro {
		t.Fatalf("failure misattributed: %+v", f)
	}
	if f.Reason != "upstream 503" {
		t.Fatalf("failure reason lost: %q", f.Reason)
	}
	// The failed step's layer is still present, just empty.
	items, ok := data.Layers[planner.LayerMacro]
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty macro layer, got %v (present=%v)", items, ok)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("execution did not continue past failure: %v", runner.calls)
	}
}

func TestExecuteDropsBelowThreshold(t *testing.T) {
	ex := newTestExecutor(t)
	plan := planner.EnrichPlan(planner.BasePlan(testDate), nil)
	plan.Steps = append(plan.Steps, planner.PlanStep{
		Operation: planner.OpStockNews, Layer: planner.LayerNews,
		Params: map[string]interface{}{"query": "chips", "limit": 5},
	})
	runner := basePlanRunner(0.8)
	runner.results[planner.OpStockNews] = Result{Payload: "weak article", Meta: uniformMeta("blog", 0.4)}

	data := ex.Execute(context.Background(), plan, runner)

	items, ok := data.Layers[planner.LayerNews]
	if !ok {
		t.Fatalf("news layer absent; empty layers must still be present")
	}
	if len(items) != 0 {
		t.Fatalf("below-threshold item retained: %+v", items)
	}
	if data.Dropped != 1 {
		t.Fatalf("expected 1 dropped item, got %d", data.Dropped)
	}
}

func TestExecuteRetainsItemAtExactThreshold(t *testing.T) {
	ex := newTestExecutor(t)
	plan := planner.BasePlan(testDate)
	plan.Steps = plan.Steps[:1]
	runner := &stubRunner{results: map[string]Result{
		planner.OpIndexSnapshot: {Payload: "x", Meta: uniformMeta("krx", 0.5)},
	}}

	data := ex.Execute(context.Background(), plan, runner)
	if data.Retained() != 1 {
		t.Fatalf("item at exact threshold must be retained (inclusive lower bound)")
	}
	if data.Layers[planner.LayerIndex][0].Band != scoring.BandSupport {
		t.Fatalf("expected support band at 0.5")
	}
}

func TestExecuteOpinionLayerSupportMixed(t *testing.T) {
	ex := newTestExecutor(t)
	plan := planner.BasePlan(testDate)
	plan.Steps = append(plan.Steps, planner.PlanStep{
		Operation: planner.OpForumSentiment, Layer: planner.LayerOpinion,
		Params: map[string]interface{}{"topics": []interface{}{"chips"}},
	})
	runner := basePlanRunner(0.8)
	runner.results[planner.OpForumSentiment] = Result{Payload: "mixed chatter", Meta: uniformMeta("forum", 0.6)}

	data := ex.Execute(context.Background(), plan, runner)

	items := data.Layers[planner.LayerOpinion]
	if len(items) != 1 {
		t.Fatalf("support-band opinion item should be retained, got %d items", len(items))
	}
	if items[0].Band != scoring.BandSupport {
		t.Fatalf("expected support band, got %s", items[0].Band)
	}
	if !data.HasSupportMixed(planner.LayerOpinion) {
		t.Fatalf("expected support-mixed flag for opinion layer")
	}
}

func TestExecuteWithThresholdOverride(t *testing.T) {
	ex := newTestExecutor(t)
	data := ex.ExecuteWithThreshold(context.Background(), planner.BasePlan(testDate), basePlanRunner(0.8), 0.9)
	if data.Retained() != 0 || data.Dropped != 3 {
		t.Fatalf("override threshold not applied: retained=%d dropped=%d", data.Retained(), data.Dropped)
	}
}

// panicRunner panics on one operation and delegates the rest.
type panicRunner struct {
	inner    ToolRunner
	panicOn  string
	panicked bool
}

func (p *panicRunner) Call(ctx context.Context, operation string, params map[string]interface{}) (Result, error) {
	if operation == p.panicOn {
		p.panicked = true
		panic("slice bounds out of range [:-1]")
	}
	return p.inner.Call(ctx, operation, params)
}

func TestExecutePanickingStepBecomesFailure(t *testing.T) {
	ex := newTestExecutor(t)
	runner := &panicRunner{inner: basePlanRunner(0.8), panicOn: planner.OpMacroSnapshot}

	data := ex.Execute(context.Background(), planner.BasePlan(testDate), runner)

	if !runner.panicked {
		t.Fatalf("panic path not exercised")
	}
	if len(data.Failures) != 1 {
		t.Fatalf("expected the panic recorded as 1 failure, got %d", len(data.Failures))
	}
	f := data.Failures[0]
	if f.Operation != planner.OpMacroSnapshot || f.Layer != planner.LayerMacro {
		t.Fatalf("panic failure misattributed: %+v", f)
	}
	// The remaining base steps must still run and be retained.
	if data.Retained() != 2 {
		t.Fatalf("run did not continue past the panic: retained=%d", data.Retained())
	}
}

func TestExecuteMetricsCallbacks(t *testing.T) {
	var ok, failed, dropped int
	ex := newTestExecutor(t, WithMetrics(Metrics{
		StepSucceeded: func(op, layer string) { ok++ },
		StepFailed:    func(op, layer string) { failed++ },
		ItemDropped:   func(layer string) { dropped++ },
	}))
	runner := basePlanRunner(0.8)
	runner.errs = map[string]error{planner.OpDartFilings: fmt.Errorf("boom")}
	runner.results[planner.OpMacroSnapshot] = Result{Payload: "macro", Meta: uniformMeta("bok", 0.2)}

	ex.Execute(context.Background(), planner.BasePlan(testDate), runner)
	if ok != 1 || failed != 1 || dropped != 1 {
		t.Fatalf("metrics callbacks: ok=%d failed=%d dropped=%d", ok, failed, dropped)
	}
}
