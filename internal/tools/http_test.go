package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestIndexProviderParsesChartResponse(t *testing.T) {
	lastTrading := testDate.Add(-24 * time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "%5EKS11") && !strings.Contains(r.URL.Path, "^KS11") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"timestamp":[%d,%d],"indicators":{"quote":[{"close":[2600.0,2650.5]}]}}]}}`,
			lastTrading.Add(-24*time.Hour).Unix(), lastTrading.Unix())
	}))
	defer srv.Close()

	p := NewIndexProvider(srv.Client(), testDate, "krdaily-test")
	p.baseURL = srv.URL + "/"

	res, err := p.Fetch(context.Background(), map[string]interface{}{
		"indices": []interface{}{"KOSPI"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	rec := res.Payload.(Record)
	if !strings.Contains(rec.Body, "KOSPI 2650.50pt") {
		t.Fatalf("unexpected body: %q", rec.Body)
	}
	if !strings.Contains(rec.Body, "+1.94%") {
		t.Fatalf("day-over-day change missing: %q", rec.Body)
	}
	if res.Meta.SourceID != "yahoo_finance" {
		t.Fatalf("unexpected source id %q", res.Meta.SourceID)
	}
	// One day behind the report date lowers recency slightly.
	if res.Meta.Recency >= 0.9 || res.Meta.Recency < 0.5 {
		t.Fatalf("unexpected recency %v", res.Meta.Recency)
	}
}

func TestIndexProviderFailsWhenNoIndexResolves(t *testing.T) {
	p := NewIndexProvider(http.DefaultClient, testDate, "")
	_, err := p.Fetch(context.Background(), map[string]interface{}{
		"indices": []interface{}{"NASDAQ"},
	})
	if err == nil {
		t.Fatalf("expected error for unknown indices")
	}
}

func TestDartProviderFiltersByImportance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("crtfc_key") != "test-key" {
			fmt.Fprint(w, `{"status":"020","message":"invalid key"}`)
			return
		}
		fmt.Fprint(w, `{"status":"000","list":[
            {"corp_name":"ACME","report_nm":"기타경영사항","rcept_no":"1","rcept_dt":"20250314"},
            {"corp_name":"Samsung","report_nm":"주요사항보고서(유상증자결정)","rcept_no":"2","rcept_dt":"20250314"}
        ]}`)
	}))
	defer srv.Close()

	p := NewDartProvider(srv.Client(), "test-key", testDate)
	p.baseURL = srv.URL

	res, err := p.Fetch(context.Background(), map[string]interface{}{"importance": "high"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	rec := res.Payload.(Record)
	if strings.Contains(rec.Body, "ACME") {
		t.Fatalf("low-importance filing kept under high importance: %q", rec.Body)
	}
	if !strings.Contains(rec.Body, "Samsung") {
		t.Fatalf("flagged filing missing: %q", rec.Body)
	}
	if !strings.Contains(rec.Body, dartViewerURL+"2") {
		t.Fatalf("viewer URL missing: %q", rec.Body)
	}
}

func TestDartProviderEmptyDayIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"013","message":"no data"}`)
	}))
	defer srv.Close()

	p := NewDartProvider(srv.Client(), "test-key", testDate)
	p.baseURL = srv.URL

	res, err := p.Fetch(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("empty filing day must degrade, not fail: %v", err)
	}
	rec := res.Payload.(Record)
	if !strings.Contains(rec.Title, "No major filings") {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestDartProviderAPIErrorFailsStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"020","message":"key limit exceeded"}`)
	}))
	defer srv.Close()

	p := NewDartProvider(srv.Client(), "bad-key", testDate)
	p.baseURL = srv.URL

	if _, err := p.Fetch(context.Background(), map[string]interface{}{}); err == nil {
		t.Fatalf("expected API error to fail the step")
	}
}

func TestNewHTTPRunnerCoversWhitelist(t *testing.T) {
	r := NewHTTPRunner(HTTPRunnerConfig{
		Timeout:           5 * time.Second,
		DartAPIKey:        "key",
		NaverClientID:     "id",
		NaverClientSecret: "secret",
		UserAgent:         "krdaily-test",
	}, testDate)
	if err := r.Validate(); err != nil {
		t.Fatalf("http runner incomplete: %v", err)
	}
	// Without Naver credentials the news operation must still be served.
	r = NewHTTPRunner(HTTPRunnerConfig{Timeout: 5 * time.Second}, testDate)
	if err := r.Validate(); err != nil {
		t.Fatalf("http runner without news credentials incomplete: %v", err)
	}
}

func TestNaverNewsProviderParsesSearchResponse(t *testing.T) {
	var gotID, gotSort, gotDisplay string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Naver-Client-Id")
		gotSort = r.URL.Query().Get("sort")
		gotDisplay = r.URL.Query().Get("display")
		fmt.Fprintf(w, `{"items":[
            {"title":"<b>반도체</b> 수출 반등","description":"3월 수출이 늘었다 &amp; 재고도 줄었다","link":"https://n.news.naver.com/a/1","pubDate":"%s"},
            {"title":"코스피 마감","description":"","link":"","originallink":"https://example.com/b","pubDate":"bogus"}
        ]}`, testDate.Add(-24*time.Hour).Format("Mon, 02 Jan 2006 15:04:05 -0700"))
	}))
	defer srv.Close()

	p := NewNaverNewsProvider(srv.Client(), "test-id", "test-secret", testDate)
	p.baseURL = srv.URL

	res, err := p.Fetch(context.Background(), map[string]interface{}{
		"query": "반도체", "limit": float64(2),
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotID != "test-id" || gotSort != "date" || gotDisplay != "2" {
		t.Fatalf("request not shaped for the search API: id=%q sort=%q display=%q", gotID, gotSort, gotDisplay)
	}
	rec := res.Payload.(Record)
	if strings.Contains(rec.Body, "<b>") || !strings.Contains(rec.Body, "반도체 수출 반등") {
		t.Fatalf("markup not stripped: %q", rec.Body)
	}
	if !strings.Contains(rec.Body, "늘었다 & 재고도") {
		t.Fatalf("entities not unescaped: %q", rec.Body)
	}
	if !strings.Contains(rec.Body, "https://example.com/b") {
		t.Fatalf("originallink fallback missing: %q", rec.Body)
	}
	if res.Meta.SourceID != "naver_news" {
		t.Fatalf("unexpected source id %q", res.Meta.SourceID)
	}
	// One-day-old article lowers recency below the same-day ceiling.
	if res.Meta.Recency >= 0.9 || res.Meta.Recency < 0.5 {
		t.Fatalf("unexpected recency %v", res.Meta.Recency)
	}
}

func TestNaverNewsProviderEmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	p := NewNaverNewsProvider(srv.Client(), "id", "secret", testDate)
	p.baseURL = srv.URL

	res, err := p.Fetch(context.Background(), map[string]interface{}{"query": "niche topic"})
	if err != nil {
		t.Fatalf("empty search must degrade, not fail: %v", err)
	}
	if !strings.Contains(res.Payload.(Record).Title, "No recent news") {
		t.Fatalf("unexpected record: %+v", res.Payload)
	}
}

func TestNaverNewsProviderAuthErrorFailsStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorCode":"024"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewNaverNewsProvider(srv.Client(), "bad", "creds", testDate)
	p.baseURL = srv.URL

	if _, err := p.Fetch(context.Background(), map[string]interface{}{"query": "chips"}); err == nil {
		t.Fatalf("expected auth failure to fail the step")
	}
}
