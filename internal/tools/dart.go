package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/scoring"
)

const (
	dartListURL   = "https://opendart.fss.or.kr/api/list.json"
	dartViewerURL = "https://dart.fss.or.kr/dsaf001/main.do?rcpNo="
	dartTopN      = 10
)

// importanceKeywords flag high-impact filings: mergers, splits, capital
// changes, treasury stock, dividends, business transfers, convertible bonds.
var importanceKeywords = []string{
	"합병", "분할", "분할합병", "유상증자", "무상증자", "증자", "감자",
	"자기주식", "자사주", "배당", "영업양수도", "영업양도", "영업양수",
	"주요계약", "전환사채", "신주인수권부사채", "교환사채",
}

// DartProvider serves get_dart_disclosures from the OpenDART filing list API.
type DartProvider struct {
	client     *http.Client
	apiKey     string
	targetDate time.Time
	baseURL    string
}

// NewDartProvider creates a disclosure provider for one report date.
func NewDartProvider(client *http.Client, apiKey string, targetDate time.Time) *DartProvider {
	return &DartProvider{client: client, apiKey: apiKey, targetDate: targetDate, baseURL: dartListURL}
}

type dartList struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	List    []struct {
		CorpName string `json:"corp_name"`
		ReportNm string `json:"report_nm"`
		RceptNo  string `json:"rcept_no"`
		RceptDt  string `json:"rcept_dt"`
	} `json:"list"`
}

// Fetch lists the day's filings, filtered and ranked by importance keywords
// when importance is "high".
func (p *DartProvider) Fetch(ctx context.Context, params map[string]interface{}) (executor.Result, error) {
	importance := stringParam(params, "importance", "high")
	ymd := p.targetDate.Format("20060102")

	q := url.Values{}
	q.Set("crtfc_key", p.apiKey)
	q.Set("bgn_de", ymd)
	q.Set("end_de", ymd)
	q.Set("page_no", "1")
	q.Set("page_count", "100")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return executor.Result{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return executor.Result{}, fmt.Errorf("opendart list: %w", err)
	}
	defer resp.Body.Close()
	var data dartList
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return executor.Result{}, fmt.Errorf("opendart list: %w", err)
	}
	// "013" means no filings matched the query; every other non-zero status
	// is a real API failure.
	if data.Status == "013" || (data.Status == "000" && len(data.List) == 0) {
		return executor.Result{
			Payload: Record{
				Title: "No major filings today",
				Body:  fmt.Sprintf("No KOSPI/KOSDAQ filings listed for %s.", p.targetDate.Format("2006-01-02")),
				Tags:  []string{"dart", "empty"},
			},
			Meta: scoring.NewSourceMeta("opendart_list", 0.8, 0.9, 0.8, 0.8),
		}, nil
	}
	if data.Status != "000" {
		return executor.Result{}, fmt.Errorf("opendart list status %s: %s", data.Status, data.Message)
	}

	type scored struct {
		weight int
		index  int
	}
	ranked := make([]scored, 0, len(data.List))
	for i, item := range data.List {
		ranked = append(ranked, scored{weight: keywordWeight(item.ReportNm), index: i})
	}
	if importance == "high" {
		filtered := ranked[:0]
		for _, s := range ranked {
			if s.weight > 0 {
				filtered = append(filtered, s)
			}
		}
		// Nothing flagged: fall back to the raw list rather than go empty.
		if len(filtered) > 0 {
			ranked = filtered
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].weight > ranked[j].weight })
	if len(ranked) > dartTopN {
		ranked = ranked[:dartTopN]
	}

	var lines []string
	for _, s := range ranked {
		item := data.List[s.index]
		line := strings.TrimSpace(item.CorpName) + " - " + strings.TrimSpace(item.ReportNm)
		if item.RceptNo != "" {
			line += " (" + dartViewerURL + item.RceptNo + ")"
		}
		lines = append(lines, line)
	}

	return executor.Result{
		Payload: Record{
			Title: fmt.Sprintf("Key filings (%s)", p.targetDate.Format("2006-01-02")),
			Body:  strings.Join(lines, "\n"),
			Tags:  []string{"dart", "disclosure"},
		},
		Meta: scoring.NewSourceMeta("opendart_list", 0.95, 0.95, 0.9, 0.9),
	}, nil
}

func keywordWeight(reportName string) int {
	n := 0
	for _, kw := range importanceKeywords {
		if strings.Contains(reportName, kw) {
			n++
		}
	}
	return n
}
