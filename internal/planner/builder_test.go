package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
)

type fakeLLM struct {
	response string
	err      error
}

func (f fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestBuildWithoutClientUsesCueFallback(t *testing.T) {
	b := NewBuilder(nil, NewCompiler(nil, 0))
	plan := b.Build(context.Background(), BuildContext{TargetDate: testDate, Cues: []string{"rate cut"}})
	if len(plan.Steps) != len(baseOperations)+2 {
		t.Fatalf("expected base + 2 cue steps, got %d", len(plan.Steps))
	}
	if plan.EnrichmentReason != "rate cut" {
		t.Fatalf("unexpected enrichment reason %q", plan.EnrichmentReason)
	}
}

func TestBuildCompilesLLMResponse(t *testing.T) {
	response := fmt.Sprintf("```json\n{\"steps\":[{\"operation\":%q,\"parameters\":{\"limit\":3}}]}\n```", OpTopSectors)
	b := NewBuilder(fakeLLM{response: response}, NewCompiler(nil, 0))
	plan := b.Build(context.Background(), BuildContext{TargetDate: testDate})
	last := plan.Steps[len(plan.Steps)-1]
	if last.Operation != OpTopSectors {
		t.Fatalf("LLM-proposed step missing, got %s", last.Operation)
	}
	if last.Params["limit"] != float64(3) {
		t.Fatalf("LLM-provided parameter lost: %+v", last.Params)
	}
}

func TestBuildFallsBackOnLLMError(t *testing.T) {
	b := NewBuilder(fakeLLM{err: fmt.Errorf("upstream timeout")}, NewCompiler(nil, 0))
	plan := b.Build(context.Background(), BuildContext{TargetDate: testDate, Cues: []string{"exports"}})
	if len(plan.Steps) != len(baseOperations)+2 {
		t.Fatalf("expected cue fallback, got %d steps", len(plan.Steps))
	}
}

func TestBuildFallsBackOnGarbageResponse(t *testing.T) {
	b := NewBuilder(fakeLLM{response: "I think you should check the KOSPI today!"}, NewCompiler(nil, 0))
	plan := b.Build(context.Background(), BuildContext{TargetDate: testDate})
	if len(plan.Steps) != len(baseOperations) {
		t.Fatalf("expected base plan on garbage output, got %d steps", len(plan.Steps))
	}
}

func TestBuildFallsBackOnNonObjectResponse(t *testing.T) {
	b := NewBuilder(fakeLLM{response: `["steps"]`}, NewCompiler(nil, 0))
	plan := b.Build(context.Background(), BuildContext{TargetDate: testDate, Cues: []string{"won"}})
	if len(plan.Steps) != len(baseOperations)+2 {
		t.Fatalf("expected cue fallback for non-object document, got %d steps", len(plan.Steps))
	}
}

func TestRenderPromptIsDeterministic(t *testing.T) {
	b := NewBuilder(nil, NewCompiler(nil, 0))
	bc := BuildContext{TargetDate: testDate, Cues: []string{"chips"}}
	first := b.renderPrompt(bc)
	for i := 0; i < 20; i++ {
		if got := b.renderPrompt(bc); got != first {
			t.Fatalf("prompt differs between renders:\n%s\n---\n%s", first, got)
		}
	}

	// Allowed operations are listed alphabetically.
	ops := make([]string, 0, len(b.compiler.whitelist))
	for op := range b.compiler.whitelist {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	listed := first[strings.Index(first, "ALLOWED OPERATIONS:"):]
	last := -1
	for _, op := range ops {
		idx := strings.Index(listed, op)
		if idx <= last {
			t.Fatalf("operation %s missing or out of order in prompt", op)
		}
		last = idx
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                     "{\"a\":1}",
		"```json\n{\"a\":1}\n```":       "{\"a\":1}",
		"```\n{\"a\":1}\n```":           "{\"a\":1}",
		"  ```json\n{\"a\":1}\n```    ": "{\"a\":1}",
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
