package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/scoring"
)

const (
	naverNewsURL     = "https://openapi.naver.com/v1/search/news.json"
	naverMaxDisplay  = 100
	naverNewsSourceP = 0.7 // secondary-source prior for aggregated news
)

// htmlTagRe strips the <b> markup Naver injects into titles and summaries.
var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// NaverNewsProvider serves search_kr_stock_news from the Naver search OpenAPI.
type NaverNewsProvider struct {
	client       *http.Client
	clientID     string
	clientSecret string
	targetDate   time.Time
	baseURL      string
}

// NewNaverNewsProvider creates a news search provider for one report date.
func NewNaverNewsProvider(client *http.Client, clientID, clientSecret string, targetDate time.Time) *NaverNewsProvider {
	return &NaverNewsProvider{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
		targetDate:   targetDate,
		baseURL:      naverNewsURL,
	}
}

type naverSearch struct {
	Items []struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		Link         string `json:"link"`
		OriginalLink string `json:"originallink"`
		PubDate      string `json:"pubDate"`
	} `json:"items"`
}

// Fetch searches recent news for the query, newest first.
func (p *NaverNewsProvider) Fetch(ctx context.Context, params map[string]interface{}) (executor.Result, error) {
	query := stringParam(params, "query", "국내 증시")
	display := intParam(params, "limit", 5)
	if display < 1 {
		display = 1
	}
	if display > naverMaxDisplay {
		display = naverMaxDisplay
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("display", fmt.Sprint(display))
	q.Set("start", "1")
	q.Set("sort", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return executor.Result{}, err
	}
	req.Header.Set("X-Naver-Client-Id", p.clientID)
	req.Header.Set("X-Naver-Client-Secret", p.clientSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return executor.Result{}, fmt.Errorf("naver news search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return executor.Result{}, fmt.Errorf("naver news search returned status %d", resp.StatusCode)
	}
	var data naverSearch
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return executor.Result{}, fmt.Errorf("naver news search: %w", err)
	}

	if len(data.Items) == 0 {
		return executor.Result{
			Payload: Record{
				Title: "No recent news - " + query,
				Body:  fmt.Sprintf("Naver news search returned no articles for %q.", query),
				Tags:  []string{"news", "empty"},
			},
			Meta: scoring.NewSourceMeta("naver_news", naverNewsSourceP, 0.5, 0.6, 0.6),
		}, nil
	}

	var lines []string
	bestRecency := 0.5
	for _, item := range data.Items {
		title := strings.TrimSpace(stripHTML(item.Title))
		summary := strings.TrimSpace(stripHTML(item.Description))
		link := item.Link
		if link == "" {
			link = item.OriginalLink
		}
		line := title
		if summary != "" {
			line += ": " + summary
		}
		if link != "" {
			line += " (" + link + ")"
		}
		lines = append(lines, line)

		if r := p.recencyOf(item.PubDate); r > bestRecency {
			bestRecency = r
		}
	}

	return executor.Result{
		Payload: Record{
			Title: "Domestic market news - " + query,
			Body:  strings.Join(lines, "\n"),
			Tags:  []string{"news", "naver"},
		},
		Meta: scoring.NewSourceMeta("naver_news", naverNewsSourceP, bestRecency, 0.8, 0.6),
	}, nil
}

// recencyOf scores an article's age against the report date. Naver pubDate
// looks like "Mon, 26 Sep 2016 07:50:00 +0900"; unparseable dates fall back
// to a neutral midpoint.
func (p *NaverNewsProvider) recencyOf(pubDate string) float64 {
	published, err := time.Parse("Mon, 02 Jan 2006 15:04:05 -0700", pubDate)
	if err != nil {
		return 0.6
	}
	dayDiff := int(p.targetDate.Sub(published.UTC()).Hours() / 24)
	if dayDiff < 0 {
		dayDiff = 0
	}
	recency := 0.9 - 0.05*float64(dayDiff)
	if recency < 0.5 {
		recency = 0.5
	}
	return recency
}

func stripHTML(s string) string {
	return html.UnescapeString(htmlTagRe.ReplaceAllString(s, ""))
}
