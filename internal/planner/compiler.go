package planner

import (
	"bytes"
	"encoding/json"
	"time"
)

// InvalidPlanError is returned when a plan description is malformed beyond
// safe degradation, e.g. a JSON document whose top level is not an object.
// Anything less catastrophic is degraded step by step instead.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string {
	return "invalid plan description: " + e.Reason
}

// Compiler normalizes untrusted plan descriptions into executable Plans.
//
// The input is treated as adversarial: unknown operations are dropped,
// parameters are filtered to each operation's allowed keys and defaulted,
// duplicate (operation, layer) pairs are removed unless the operation is
// repeatable, and the fixed base routine is always prepended so the plan
// never loses baseline coverage.
type Compiler struct {
	whitelist Whitelist
	maxSteps  int
}

// NewCompiler creates a compiler. A nil whitelist selects the default; a
// maxSteps of zero or less disables the cap.
func NewCompiler(whitelist Whitelist, maxSteps int) *Compiler {
	if whitelist == nil {
		whitelist = DefaultWhitelist()
	}
	return &Compiler{whitelist: whitelist, maxSteps: maxSteps}
}

// Compile merges the fixed base routine with whatever survives validation of
// the raw description. A nil or step-less description yields the base plan;
// Compile itself never fails.
func (c *Compiler) Compile(raw map[string]interface{}, targetDate time.Time, cues []string) Plan {
	plan := BasePlan(targetDate)
	plan.Cues = append([]string(nil), cues...)

	seen := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		seen[s.Operation+"|"+s.Layer] = true
	}

	for _, item := range rawSteps(raw) {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		op := stringField(m, "operation")
		if op == "" {
			op = stringField(m, "tool")
		}
		spec, ok := c.whitelist[op]
		if !ok {
			continue
		}
		key := op + "|" + spec.Layer
		if seen[key] && !spec.Repeatable {
			continue
		}
		if c.maxSteps > 0 && len(plan.Steps) >= c.maxSteps {
			break
		}
		plan.Steps = append(plan.Steps, PlanStep{
			Operation:  op,
			Layer:      spec.Layer,
			Params:     c.filterParams(spec, m),
			Purpose:    stringField(m, "purpose"),
			Repeatable: spec.Repeatable,
		})
		seen[key] = true
	}

	if raw != nil {
		plan.EnrichmentReason = stringField(raw, "enrichment_reason")
	}
	return plan
}

// CompileJSON compiles a raw JSON plan description. Empty or non-parseable
// input degrades to the base plan; a parseable document whose top level is
// not an object fails with InvalidPlanError.
func (c *Compiler) CompileJSON(data []byte, targetDate time.Time, cues []string) (Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return c.Compile(nil, targetDate, cues), nil
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return c.Compile(nil, targetDate, cues), nil
	}
	raw, ok := doc.(map[string]interface{})
	if !ok {
		return Plan{}, &InvalidPlanError{Reason: "plan document is not a JSON object"}
	}
	return c.Compile(raw, targetDate, cues), nil
}

// filterParams keeps only the operation's allowed keys from the untrusted
// parameter map and fills any missing allowed key from the defaults.
func (c *Compiler) filterParams(spec OperationSpec, step map[string]interface{}) map[string]interface{} {
	params := cloneParams(spec.Defaults)
	in, ok := step["parameters"].(map[string]interface{})
	if !ok {
		in, _ = step["args"].(map[string]interface{})
	}
	for _, key := range spec.Params {
		if v, ok := in[key]; ok {
			params[key] = v
		}
	}
	return params
}

func rawSteps(raw map[string]interface{}) []interface{} {
	if raw == nil {
		return nil
	}
	if steps, ok := raw["steps"].([]interface{}); ok {
		return steps
	}
	// Older plan documents used "tasks"; accept both.
	steps, _ := raw["tasks"].([]interface{})
	return steps
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}
