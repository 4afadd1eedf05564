package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// LLMClient is the interface to the planning LLM. Implementations own all
// transport concerns including retries.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BuildContext carries what the planning LLM is allowed to see.
type BuildContext struct {
	TargetDate   time.Time
	Cues         []string
	BaseSnapshot map[string]interface{}
}

// Builder composes the fixed base routine with LLM-proposed enrichment
// steps. The LLM only ever proposes additions; everything it returns passes
// through the Compiler before execution. Without a client, or whenever the
// LLM output is unusable, the builder falls back to a deterministic
// cue-driven plan.
type Builder struct {
	client   LLMClient
	compiler *Compiler
	logger   *log.Logger
}

// NewBuilder creates a plan builder. client may be nil.
func NewBuilder(client LLMClient, compiler *Compiler) *Builder {
	if compiler == nil {
		compiler = NewCompiler(nil, 0)
	}
	return &Builder{
		client:   client,
		compiler: compiler,
		logger:   log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Build produces an executable plan for the target date.
func (b *Builder) Build(ctx context.Context, bc BuildContext) Plan {
	if b.client == nil {
		return b.compiler.Compile(b.fallbackPlan(bc), bc.TargetDate, bc.Cues)
	}

	response, err := b.client.Complete(ctx, b.renderPrompt(bc))
	if err != nil {
		b.logger.Printf("LLM planning failed, using cue fallback: %v", err)
		return b.compiler.Compile(b.fallbackPlan(bc), bc.TargetDate, bc.Cues)
	}
	data := []byte(stripCodeFence(response))
	if err := ValidatePlanDocument(data); err != nil {
		b.logger.Printf("LLM plan rejected by schema, using cue fallback: %v", err)
		return b.compiler.Compile(b.fallbackPlan(bc), bc.TargetDate, bc.Cues)
	}
	plan, err := b.compiler.CompileJSON(data, bc.TargetDate, bc.Cues)
	if err != nil {
		b.logger.Printf("LLM plan failed to compile, using cue fallback: %v", err)
		return b.compiler.Compile(b.fallbackPlan(bc), bc.TargetDate, bc.Cues)
	}
	return plan
}

// fallbackPlan is the deterministic enrichment used when no LLM is available
// or its output is unusable: one news search and one forum-sentiment check
// per market cue.
func (b *Builder) fallbackPlan(bc BuildContext) map[string]interface{} {
	steps := make([]interface{}, 0, len(bc.Cues)*2)
	for _, cue := range bc.Cues {
		steps = append(steps,
			map[string]interface{}{
				"operation":  OpStockNews,
				"parameters": map[string]interface{}{"query": cue, "limit": 5},
				"purpose":    cue + " news coverage",
			},
			map[string]interface{}{
				"operation":  OpForumSentiment,
				"parameters": map[string]interface{}{"topics": []interface{}{cue}},
				"purpose":    cue + " market sentiment",
			},
		)
	}
	raw := map[string]interface{}{
		"date":  bc.TargetDate.Format("2006-01-02"),
		"steps": steps,
	}
	if len(bc.Cues) > 0 {
		raw["enrichment_reason"] = joinCues(bc.Cues)
	}
	return raw
}

func (b *Builder) renderPrompt(bc BuildContext) string {
	cueLine := "none"
	if len(bc.Cues) > 0 {
		cueLine = joinCues(bc.Cues)
	}
	snapshot := "none"
	if bc.BaseSnapshot != nil {
		if data, err := json.Marshal(bc.BaseSnapshot); err == nil {
			snapshot = string(data)
		}
	}
	// Sorted so the prompt is byte-identical across runs.
	ops := make([]string, 0, len(b.compiler.whitelist))
	for op := range b.compiler.whitelist {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	return fmt.Sprintf(`You are a collection planner for a daily Korean stock-market report.
Output ONLY a JSON object, no other text.

The base routine (%s) is always executed; propose only enrichment steps.
Prefer reliable quantitative sources; add news/community steps when market
cues call for broader context. News and forum steps may repeat with
different queries to mix perspectives.

ALLOWED OPERATIONS: %s

OUTPUT FORMAT:
{
  "date": "YYYY-MM-DD",
  "steps": [ { "operation": "name", "parameters": {...}, "purpose": "optional" } ],
  "enrichment_reason": "optional"
}

CONTEXT:
Target date: %s
Market cues: %s
Recent snapshot: %s
`, strings.Join(baseOperations, ", "), strings.Join(ops, ", "), bc.TargetDate.Format("2006-01-02"), cueLine, snapshot)
}

// stripCodeFence removes a markdown code fence if the model wrapped its JSON
// in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
