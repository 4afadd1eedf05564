// Package report turns quality-filtered run output into a readable text
// report or an LLM prompt payload, applying the band-tagging contract:
// support-band items are tagged low_confidence, opinion-layer items are
// tagged speculative regardless of band, and layers that mix in support-band
// items get a caution notice.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/planner"
	"github.com/jaehyun-park/krdaily/internal/scoring"
)

// Risk tags attached to summarised items.
const (
	TagConfirmed     = "confirmed"
	TagLowConfidence = "low_confidence"
	TagSpeculative   = "speculative"
)

// TitledPayload lets collaborator payloads render richer report entries.
type TitledPayload interface {
	PayloadTitle() string
	PayloadBody() string
}

// Summary is one tagged item in the LLM prompt payload.
type Summary struct {
	Layer   string   `json:"layer"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Score   float64  `json:"quality_score"`
	Band    string   `json:"quality_band"`
}

// Prompt is the payload handed to a report-writing LLM.
type Prompt struct {
	Date      string    `json:"date"`
	Summaries []Summary `json:"summaries"`
	Guidance  string    `json:"guidance"`
}

// Section is one rendered report section.
type Section struct {
	Layer   string
	Heading string
	Lines   []string
	Caution string
}

// Output is a rendered report.
type Output struct {
	Date     time.Time
	Sections []Section
	Failures []executor.StepFailure
}

// sectionOrder fixes the rendering order of layers.
var sectionOrder = []struct {
	layer   string
	heading string
}{
	{planner.LayerIndex, "Indices & Sectors"},
	{planner.LayerMacro, "Macro & Policy"},
	{planner.LayerFiling, "Filings & Corporate Events"},
	{planner.LayerNews, "News & Interpretation"},
	{planner.LayerOpinion, "Market Sentiment"},
}

// Assembler consumes ReportData per the tagging contract.
type Assembler struct{}

// NewAssembler creates a report assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Tags returns the risk tags for one item in a layer.
func (a *Assembler) Tags(item executor.CollectedItem, layer string) []string {
	var tags []string
	if layer == planner.LayerOpinion {
		tags = append(tags, TagSpeculative)
	}
	if item.Band == scoring.BandSupport {
		tags = append(tags, TagLowConfidence)
	}
	if len(tags) == 0 {
		tags = append(tags, TagConfirmed)
	}
	return tags
}

// BuildPrompt creates the LLM prompt payload for report writing.
func (a *Assembler) BuildPrompt(data *executor.ReportData) Prompt {
	var summaries []Summary
	a.eachLayer(data, func(layer string, items []executor.CollectedItem) {
		for _, item := range items {
			summaries = append(summaries, Summary{
				Layer:   layer,
				Content: renderContent(item),
				Tags:    a.Tags(item, layer),
				Score:   item.Score,
				Band:    string(item.Band),
			})
		}
	})
	return Prompt{
		Date:      data.TargetDate.Format("2006-01-02"),
		Summaries: summaries,
		Guidance: "Report quantitative data as-is. Mark low-confidence items clearly and " +
			"present opinion-layer content as speculation. Order the summary: indices, " +
			"sectors, filings, policy, sentiment.",
	}
}

// BuildReport renders a sectioned plain-text report without an LLM.
func (a *Assembler) BuildReport(data *executor.ReportData) Output {
	out := Output{Date: data.TargetDate, Failures: data.Failures}
	for _, sec := range sectionOrder {
		items, ok := data.Layers[sec.layer]
		if !ok || len(items) == 0 {
			continue
		}
		section := Section{Layer: sec.layer, Heading: sec.heading}
		for _, item := range items {
			line := renderContent(item)
			tags := a.Tags(item, sec.layer)
			if tags[0] != TagConfirmed {
				line = fmt.Sprintf("%s [%s]", line, strings.Join(tags, ", "))
			}
			section.Lines = append(section.Lines, line)
		}
		if sec.layer == planner.LayerOpinion {
			section.Caution = "Community-sourced data; treat as speculation."
		} else if data.HasSupportMixed(sec.layer) {
			section.Caution = "This section includes lower-confidence items."
		}
		out.Sections = append(out.Sections, section)
	}
	return out
}

// Text renders the output as a human-readable report.
func (o Output) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily Korean Stock Report (%s)\n", o.Date.Format("2006-01-02"))
	for _, section := range o.Sections {
		fmt.Fprintf(&b, "\n## %s\n", section.Heading)
		if section.Caution != "" {
			fmt.Fprintf(&b, "[caution] %s\n", section.Caution)
		}
		for _, line := range section.Lines {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	if len(o.Failures) > 0 {
		fmt.Fprintf(&b, "\n## Skipped Sources\n")
		for _, f := range o.Failures {
			fmt.Fprintf(&b, "- %s (%s): %s\n", f.Operation, f.Layer, f.Reason)
		}
	}
	return b.String()
}

// eachLayer visits layers in section order, then any remaining layers in
// the executor's recorded order so nothing is silently dropped.
func (a *Assembler) eachLayer(data *executor.ReportData, fn func(layer string, items []executor.CollectedItem)) {
	visited := make(map[string]bool, len(data.Layers))
	for _, sec := range sectionOrder {
		if items, ok := data.Layers[sec.layer]; ok {
			visited[sec.layer] = true
			fn(sec.layer, items)
		}
	}
	for _, layer := range data.LayerOrder {
		if !visited[layer] {
			visited[layer] = true
			fn(layer, data.Layers[layer])
		}
	}
}

func renderContent(item executor.CollectedItem) string {
	switch v := item.Payload.(type) {
	case TitledPayload:
		if body := v.PayloadBody(); body != "" {
			return v.PayloadTitle() + ": " + body
		}
		return v.PayloadTitle()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
