// Package scoring turns per-result source metadata into a scalar quality
// score and a discrete trust band. It is pure computation: given the same
// config and inputs it always produces the same outputs.
package scoring

import (
	"fmt"
	"math"
)

// Band is the discrete trust classification derived from a quality score.
type Band string

const (
	BandMain    Band = "main"
	BandSupport Band = "support"
	BandDiscard Band = "discard"
)

// Weights are the fixed sub-score weights used for the quality average.
// They must sum to 1.
type Weights struct {
	Source      float64
	Recency     float64
	Structure   float64
	Consistency float64
}

// DefaultWeights reflect the reliability model: source identity dominates,
// recency next, structure and cross-source consistency share the remainder.
func DefaultWeights() Weights {
	return Weights{Source: 0.35, Recency: 0.25, Structure: 0.2, Consistency: 0.2}
}

// Config holds the scoring policy. Thresholds are inclusive lower bounds:
// score >= MainThreshold classifies as main, score >= SupportThreshold as
// support, anything below as discard.
type Config struct {
	Weights          Weights
	MainThreshold    float64
	SupportThreshold float64
}

// DefaultConfig returns the standard policy (0.7 / 0.5 thresholds).
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), MainThreshold: 0.7, SupportThreshold: 0.5}
}

func (c Config) Validate() error {
	sum := c.Weights.Source + c.Weights.Recency + c.Weights.Structure + c.Weights.Consistency
	if math.Abs(sum-1) > 1e-3 {
		return fmt.Errorf("scoring weights must sum to 1, got %.3f", sum)
	}
	if c.MainThreshold < c.SupportThreshold {
		return fmt.Errorf("main threshold %.2f below support threshold %.2f", c.MainThreshold, c.SupportThreshold)
	}
	return nil
}

// SourceMeta carries the per-result reliability metadata returned by a tool
// call. All four sub-scores are normalized to [0,1]; construct values with
// NewSourceMeta so out-of-range upstream metadata is clamped rather than
// rejected.
type SourceMeta struct {
	SourceID    string
	Source      float64 // origin reliability (primary/secondary/community)
	Recency     float64 // age of the data relative to the report date
	Structure   float64 // well-formedness of the payload
	Consistency float64 // agreement with other sources in the same layer
}

// NewSourceMeta builds a SourceMeta, clamping each sub-score into [0,1].
func NewSourceMeta(sourceID string, source, recency, structure, consistency float64) SourceMeta {
	return SourceMeta{
		SourceID:    sourceID,
		Source:      clamp01(source),
		Recency:     clamp01(recency),
		Structure:   clamp01(structure),
		Consistency: clamp01(consistency),
	}
}

// Clamped returns a copy with every sub-score forced into [0,1].
func (m SourceMeta) Clamped() SourceMeta {
	return NewSourceMeta(m.SourceID, m.Source, m.Recency, m.Structure, m.Consistency)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Scorer applies a fixed Config to SourceMeta values.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer for the given policy.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Score returns the weighted quality average, rounded to three decimals so
// archived scores compare stably across runs.
func (s *Scorer) Score(m SourceMeta) float64 {
	m = m.Clamped()
	total := m.Source*s.cfg.Weights.Source +
		m.Recency*s.cfg.Weights.Recency +
		m.Structure*s.cfg.Weights.Structure +
		m.Consistency*s.cfg.Weights.Consistency
	return math.Round(total*1000) / 1000
}

// Band classifies a quality score. Thresholds are inclusive lower bounds.
func (s *Scorer) Band(score float64) Band {
	if score >= s.cfg.MainThreshold {
		return BandMain
	}
	if score >= s.cfg.SupportThreshold {
		return BandSupport
	}
	return BandDiscard
}

// Evaluate scores and classifies in one call.
func (s *Scorer) Evaluate(m SourceMeta) (float64, Band) {
	score := s.Score(m)
	return score, s.Band(score)
}
