package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaehyun-park/krdaily/internal/planner"
)

var testDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func TestRunnerRejectsUnknownOperation(t *testing.T) {
	r := NewRunner()
	_, err := r.Call(context.Background(), "get_secret_data", nil)
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestMockRunnerCoversWhitelist(t *testing.T) {
	r := NewMockRunner(testDate)
	if err := r.Validate(); err != nil {
		t.Fatalf("mock runner incomplete: %v", err)
	}
	for _, op := range requiredOperations {
		res, err := r.Call(context.Background(), op, nil)
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		rec, ok := res.Payload.(Record)
		if !ok {
			t.Fatalf("%s: payload is %T, want Record", op, res.Payload)
		}
		if rec.Title == "" {
			t.Fatalf("%s: empty record title", op)
		}
		if res.Meta.SourceID == "" {
			t.Fatalf("%s: missing source id", op)
		}
	}
}

func TestMockForumSentimentScoresLow(t *testing.T) {
	r := NewMockRunner(testDate)
	res, err := r.Call(context.Background(), planner.OpForumSentiment, map[string]interface{}{
		"topics": []interface{}{"chips"},
	})
	if err != nil {
		t.Fatalf("forum call: %v", err)
	}
	if res.Meta.Source > 0.5 {
		t.Fatalf("opinion source prior should be low, got %v", res.Meta.Source)
	}
}

func TestSectorsProviderHonorsLimit(t *testing.T) {
	res, err := SectorsProvider().Fetch(context.Background(), map[string]interface{}{"limit": float64(2)})
	if err != nil {
		t.Fatalf("sectors: %v", err)
	}
	rec := res.Payload.(Record)
	if got := countLines(rec.Body); got != 2 {
		t.Fatalf("expected 2 sector lines, got %d: %q", got, rec.Body)
	}
}

func TestProvidersTolerateNegativeLimit(t *testing.T) {
	params := map[string]interface{}{"limit": float64(-1), "query": "chips"}

	res, err := SectorsProvider().Fetch(context.Background(), params)
	if err != nil {
		t.Fatalf("sectors with negative limit: %v", err)
	}
	if body := res.Payload.(Record).Body; body != "" {
		t.Fatalf("expected empty sector body for negative limit, got %q", body)
	}

	if _, err := NewsProvider().Fetch(context.Background(), params); err != nil {
		t.Fatalf("news with negative limit: %v", err)
	}

	// The same hostile parameter must survive a full runner call.
	r := NewMockRunner(testDate)
	if _, err := r.Call(context.Background(), planner.OpTopSectors, params); err != nil {
		t.Fatalf("runner call with negative limit: %v", err)
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]interface{}{
		"query":   "chips",
		"limit":   float64(3),
		"indices": []interface{}{"KOSPI", 42, "KOSDAQ"},
	}
	if got := stringParam(params, "query", "x"); got != "chips" {
		t.Fatalf("stringParam: %q", got)
	}
	if got := stringParam(params, "missing", "fallback"); got != "fallback" {
		t.Fatalf("stringParam default: %q", got)
	}
	if got := intParam(params, "limit", 5); got != 3 {
		t.Fatalf("intParam: %d", got)
	}
	if got := intParam(map[string]interface{}{"limit": float64(-5)}, "limit", 5); got != 0 {
		t.Fatalf("intParam should floor negatives at 0, got %d", got)
	}
	got := stringsParam(params, "indices")
	if len(got) != 2 || got[0] != "KOSPI" || got[1] != "KOSDAQ" {
		t.Fatalf("stringsParam should drop non-strings: %v", got)
	}
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, ch := range s {
		if ch == '\n' {
			n++
		}
	}
	return n
}
