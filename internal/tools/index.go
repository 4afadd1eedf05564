package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/scoring"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// indexTickers maps Korean index names to Yahoo Finance tickers.
var indexTickers = map[string]string{
	"KOSPI":  "^KS11",
	"KOSDAQ": "^KQ11",
}

// IndexProvider serves get_index_snapshot from the Yahoo Finance chart API.
type IndexProvider struct {
	client     *http.Client
	targetDate time.Time
	userAgent  string
	baseURL    string
}

// NewIndexProvider creates an index snapshot provider for one report date.
func NewIndexProvider(client *http.Client, targetDate time.Time, userAgent string) *IndexProvider {
	return &IndexProvider{client: client, targetDate: targetDate, userAgent: userAgent, baseURL: yahooChartURL}
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch returns one snapshot record covering the requested indices.
func (p *IndexProvider) Fetch(ctx context.Context, params map[string]interface{}) (executor.Result, error) {
	indices := stringsParam(params, "indices")
	if len(indices) == 0 {
		indices = []string{"KOSPI", "KOSDAQ"}
	}

	var lines []string
	recency := 0.0
	covered := 0
	for _, name := range indices {
		key := strings.ToUpper(name)
		ticker, ok := indexTickers[key]
		if !ok {
			continue
		}
		line, r, err := p.snapshot(ctx, key, ticker)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: no data (%v)", key, err))
			continue
		}
		lines = append(lines, line)
		covered++
		if r > recency {
			recency = r
		}
	}
	if covered == 0 {
		return executor.Result{}, fmt.Errorf("no index data for %v", indices)
	}

	structure := 0.9
	if covered < len(indices) {
		structure = 0.6
	}
	return executor.Result{
		Payload: Record{
			Title: "Index snapshot",
			Body:  strings.Join(lines, "\n"),
			Tags:  append(indices, "index"),
		},
		Meta: scoring.NewSourceMeta("yahoo_finance", 0.9, recency, structure, 0.9),
	}, nil
}

// snapshot fetches recent daily closes for one ticker and renders the latest
// close with its day-over-day change.
func (p *IndexProvider) snapshot(ctx context.Context, name, ticker string) (string, float64, error) {
	u := p.baseURL + url.PathEscape(ticker) + "?range=10d&interval=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("chart API returned status %d", resp.StatusCode)
	}
	var chart yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return "", 0, err
	}
	if chart.Chart.Error != nil {
		return "", 0, fmt.Errorf("chart API error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return "", 0, fmt.Errorf("empty chart result")
	}
	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	if len(closes) == 0 || len(result.Timestamp) == 0 {
		return "", 0, fmt.Errorf("no close data")
	}

	last := closes[len(closes)-1]
	changePct := 0.0
	if len(closes) >= 2 && closes[len(closes)-2] > 0 {
		changePct = (last/closes[len(closes)-2] - 1) * 100
	}
	lastDate := time.Unix(result.Timestamp[len(result.Timestamp)-1], 0).UTC()

	line := fmt.Sprintf("%s %.2fpt, %+.2f%% day-over-day (%s close)", name, last, changePct, lastDate.Format("2006-01-02"))
	dayDiff := int(p.targetDate.Sub(lastDate).Hours() / 24)
	if dayDiff < 0 {
		dayDiff = 0
	}
	if dayDiff > 0 {
		// Market holiday or weekend: nearest past trading day is used.
		line += fmt.Sprintf(" (nearest trading day to %s)", p.targetDate.Format("2006-01-02"))
	}
	recency := 0.9 - 0.05*float64(dayDiff)
	if recency < 0.5 {
		recency = 0.5
	}
	return line, recency, nil
}
