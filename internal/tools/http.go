package tools

import (
	"net/http"
	"time"

	"github.com/jaehyun-park/krdaily/internal/planner"
)

// HTTPRunnerConfig carries the credentials and transport knobs for the live
// providers.
type HTTPRunnerConfig struct {
	Timeout           time.Duration
	DartAPIKey        string
	NaverClientID     string
	NaverClientSecret string
	UserAgent         string
}

// NewHTTPRunner wires the live providers for one report date. Index, filing
// and news data come from real APIs; the remaining feeds use the fixture
// providers until their integrations land. The news search degrades to its
// fixture when Naver credentials are not configured.
func NewHTTPRunner(cfg HTTPRunnerConfig, targetDate time.Time) *Runner {
	client := &http.Client{Timeout: cfg.Timeout}
	r := NewRunner()
	r.Register(planner.OpIndexSnapshot, NewIndexProvider(client, targetDate, cfg.UserAgent))
	r.Register(planner.OpDartFilings, NewDartProvider(client, cfg.DartAPIKey, targetDate))
	r.Register(planner.OpMacroSnapshot, MacroProvider())
	r.Register(planner.OpTopSectors, SectorsProvider())
	if cfg.NaverClientID != "" && cfg.NaverClientSecret != "" {
		r.Register(planner.OpStockNews, NewNaverNewsProvider(client, cfg.NaverClientID, cfg.NaverClientSecret, targetDate))
	} else {
		r.Register(planner.OpStockNews, NewsProvider())
	}
	r.Register(planner.OpForumSentiment, ForumProvider())
	return r
}
