package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/planner"
	"github.com/jaehyun-park/krdaily/internal/scoring"
)

// staticProvider returns a fixed result; used for feeds without a live
// integration yet and for the mock runner.
func staticProvider(build func(ctx context.Context, params map[string]interface{}) (Record, scoring.SourceMeta)) Provider {
	return ProviderFunc(func(ctx context.Context, params map[string]interface{}) (executor.Result, error) {
		rec, meta := build(ctx, params)
		return executor.Result{Payload: rec, Meta: meta}, nil
	})
}

// MacroProvider returns the macro snapshot.
// TODO: replace the fixture with the ECOS open API once a key is provisioned.
func MacroProvider() Provider {
	return staticProvider(func(_ context.Context, _ map[string]interface{}) (Record, scoring.SourceMeta) {
		return Record{
			Title: "Macro snapshot",
			Body:  "Base rate 3.50%, 3y treasury 3.20%, USD/KRW 1,350",
			Tags:  []string{"macro", "rate", "fx"},
		}, scoring.NewSourceMeta("macro_snapshot", 0.9, 0.8, 0.8, 0.8)
	})
}

// SectorsProvider returns the top sector moves.
func SectorsProvider() Provider {
	moves := []string{
		"Semiconductors: +2.3%, top turnover",
		"Secondary batteries: +1.8%",
		"Internet/platform: +1.2%",
		"Biotech: -0.5%",
		"Steel/materials: -1.0%",
	}
	return staticProvider(func(_ context.Context, params map[string]interface{}) (Record, scoring.SourceMeta) {
		limit := intParam(params, "limit", 5)
		if limit > len(moves) {
			limit = len(moves)
		}
		return Record{
			Title: fmt.Sprintf("Top %d sectors", limit),
			Body:  strings.Join(moves[:limit], "\n"),
			Tags:  []string{"sector"},
		}, scoring.NewSourceMeta("sector_board", 0.8, 0.8, 0.8, 0.7)
	})
}

// NewsProvider returns query-driven market news.
func NewsProvider() Provider {
	return staticProvider(func(_ context.Context, params map[string]interface{}) (Record, scoring.SourceMeta) {
		query := stringParam(params, "query", "market wrap")
		limit := intParam(params, "limit", 5)
		lines := []string{
			fmt.Sprintf("Market wrap coverage on %q (1)", query),
			fmt.Sprintf("Market wrap coverage on %q (2)", query),
		}
		if limit < len(lines) {
			lines = lines[:limit]
		}
		return Record{
			Title: "Domestic market news - " + query,
			Body:  strings.Join(lines, "\n"),
			Tags:  []string{"news"},
		}, scoring.NewSourceMeta("news_search", 0.7, 0.7, 0.7, 0.6)
	})
}

// ForumProvider returns community sentiment. Opinion sources deliberately
// carry a low source prior.
func ForumProvider() Provider {
	return staticProvider(func(_ context.Context, params map[string]interface{}) (Record, scoring.SourceMeta) {
		topics := joinTopics(stringsParam(params, "topics"))
		return Record{
			Title: "Community sentiment - " + topics,
			Body:  fmt.Sprintf("Forum chatter on %s shows a mix of bullish and bearish takes.", topics),
			Tags:  []string{"forum", "sentiment"},
		}, scoring.NewSourceMeta("forum_sentiment", 0.3, 0.8, 0.6, 0.4)
	})
}

// NewMockRunner wires deterministic providers for every whitelisted
// operation, for tests and offline demo runs.
func NewMockRunner(targetDate time.Time) *Runner {
	r := NewRunner()
	r.Register(planner.OpIndexSnapshot, staticProvider(func(_ context.Context, params map[string]interface{}) (Record, scoring.SourceMeta) {
		indices := stringsParam(params, "indices")
		if len(indices) == 0 {
			indices = []string{"KOSPI", "KOSDAQ"}
		}
		var lines []string
		for _, idx := range indices {
			switch strings.ToUpper(idx) {
			case "KOSPI":
				lines = append(lines, "KOSPI 2,650.1pt, -0.7% day-over-day")
			case "KOSDAQ":
				lines = append(lines, "KOSDAQ 930.5pt, +1.2% day-over-day")
			default:
				lines = append(lines, idx+" index")
			}
		}
		return Record{
			Title: fmt.Sprintf("Index snapshot (%s)", targetDate.Format("2006-01-02")),
			Body:  strings.Join(lines, "\n"),
			Tags:  append(indices, "index"),
		}, scoring.NewSourceMeta("mock_price", 0.9, 0.9, 0.9, 0.9)
	}))
	r.Register(planner.OpDartFilings, staticProvider(func(_ context.Context, _ map[string]interface{}) (Record, scoring.SourceMeta) {
		return Record{
			Title: "Samsung Electronics - treasury share cancellation",
			Body:  "Board approved cancelling part of the treasury stock to return value to shareholders.",
			Tags:  []string{"disclosure", "shareholder-return"},
		}, scoring.NewSourceMeta("mock_dart", 0.95, 0.9, 0.9, 0.8)
	}))
	r.Register(planner.OpMacroSnapshot, MacroProvider())
	r.Register(planner.OpTopSectors, SectorsProvider())
	r.Register(planner.OpStockNews, NewsProvider())
	r.Register(planner.OpForumSentiment, ForumProvider())
	return r
}
