// Package planner builds and compiles collection plans for the daily
// domestic-stock report. A plan is an ordered list of whitelisted tool
// operations; the compiler is the trust boundary that turns untrusted plan
// descriptions (typically LLM JSON) into plans safe to execute.
package planner

import "time"

// Data layers group collected results by their nature: quantitative/official
// layers (index, macro, filing) are trusted differently from interpretive
// layers (news, opinion) downstream.
const (
	LayerIndex   = "index"
	LayerMacro   = "macro"
	LayerFiling  = "filing"
	LayerNews    = "news"
	LayerOpinion = "opinion"
)

// Operation names accepted from plan descriptions.
const (
	OpIndexSnapshot  = "get_index_snapshot"
	OpMacroSnapshot  = "get_macro_snapshot"
	OpDartFilings    = "get_dart_disclosures"
	OpTopSectors     = "get_top_sectors"
	OpStockNews      = "search_kr_stock_news"
	OpForumSentiment = "get_forum_sentiment"
)

// OperationSpec declares how a whitelisted operation may be invoked: which
// layer its results belong to, which parameter keys are allowed through from
// untrusted input, and the defaults used for missing keys.
type OperationSpec struct {
	Layer      string
	Params     []string
	Defaults   map[string]interface{}
	Repeatable bool
}

// Whitelist maps operation names to their specs. Operations absent from the
// whitelist are never compiled into a plan.
type Whitelist map[string]OperationSpec

// DefaultWhitelist returns the fixed operation set for the Korean market
// report.
func DefaultWhitelist() Whitelist {
	return Whitelist{
		OpIndexSnapshot: {
			Layer:    LayerIndex,
			Params:   []string{"indices"},
			Defaults: map[string]interface{}{"indices": []interface{}{"KOSPI", "KOSDAQ"}},
		},
		OpMacroSnapshot: {
			Layer: LayerMacro,
		},
		OpDartFilings: {
			Layer:    LayerFiling,
			Params:   []string{"importance"},
			Defaults: map[string]interface{}{"importance": "high"},
		},
		OpTopSectors: {
			Layer:    LayerIndex,
			Params:   []string{"limit"},
			Defaults: map[string]interface{}{"limit": 5},
		},
		OpStockNews: {
			Layer:      LayerNews,
			Params:     []string{"query", "limit"},
			Defaults:   map[string]interface{}{"limit": 5},
			Repeatable: true,
		},
		OpForumSentiment: {
			Layer:      LayerOpinion,
			Params:     []string{"topics"},
			Defaults:   map[string]interface{}{"topics": []interface{}{}},
			Repeatable: true,
		},
	}
}

// PlanStep is a single compiled tool invocation. Steps are immutable once
// compiled; Params contains only whitelisted keys.
type PlanStep struct {
	Operation  string                 `json:"operation"`
	Layer      string                 `json:"layer"`
	Params     map[string]interface{} `json:"parameters,omitempty"`
	Purpose    string                 `json:"purpose,omitempty"`
	Repeatable bool                   `json:"-"`
}

// Plan is an ordered, validated sequence of steps for one report date.
type Plan struct {
	TargetDate       time.Time
	Cues             []string
	Steps            []PlanStep
	EnrichmentReason string
}

// baseOperations are the fixed routine always present in a compiled plan,
// guaranteeing baseline index/macro/filing coverage regardless of what an
// LLM proposes.
var baseOperations = []string{OpIndexSnapshot, OpMacroSnapshot, OpDartFilings}

// BasePlan returns the minimal viable plan for a report date.
func BasePlan(targetDate time.Time) Plan {
	wl := DefaultWhitelist()
	steps := make([]PlanStep, 0, len(baseOperations))
	purposes := map[string]string{
		OpIndexSnapshot: "index snapshot",
		OpMacroSnapshot: "rates, FX and other macro context",
		OpDartFilings:   "key disclosure events",
	}
	for _, op := range baseOperations {
		spec := wl[op]
		steps = append(steps, PlanStep{
			Operation: op,
			Layer:     spec.Layer,
			Params:    cloneParams(spec.Defaults),
			Purpose:   purposes[op],
		})
	}
	return Plan{TargetDate: targetDate, Steps: steps}
}

// EnrichPlan appends cue-driven news and forum-sentiment steps to a plan.
func EnrichPlan(base Plan, cues []string) Plan {
	steps := append([]PlanStep(nil), base.Steps...)
	for _, cue := range cues {
		steps = append(steps,
			PlanStep{
				Operation:  OpStockNews,
				Layer:      LayerNews,
				Params:     map[string]interface{}{"query": cue, "limit": 5},
				Purpose:    cue + " news coverage",
				Repeatable: true,
			},
			PlanStep{
				Operation:  OpForumSentiment,
				Layer:      LayerOpinion,
				Params:     map[string]interface{}{"topics": []interface{}{cue}},
				Purpose:    cue + " market sentiment",
				Repeatable: true,
			},
		)
	}
	reason := base.EnrichmentReason
	if len(cues) > 0 {
		reason = joinCues(cues)
	}
	return Plan{
		TargetDate:       base.TargetDate,
		Cues:             append(append([]string(nil), base.Cues...), cues...),
		Steps:            steps,
		EnrichmentReason: reason,
	}
}

// Layers returns the distinct layer names referenced by the plan, in step
// order.
func (p Plan) Layers() []string {
	seen := make(map[string]bool, len(p.Steps))
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		if !seen[s.Layer] {
			seen[s.Layer] = true
			out = append(out, s.Layer)
		}
	}
	return out
}

func cloneParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func joinCues(cues []string) string {
	out := ""
	for i, c := range cues {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
