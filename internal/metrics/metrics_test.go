package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // a second call must not re-register collectors
}

func TestObserveCrawlStart(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlsStartedTotal.WithLabelValues("docs.example.com"))
	ObserveCrawlStart("https://docs.example.com/guide/", nil)
	after := testutil.ToFloat64(crawlsStartedTotal.WithLabelValues("docs.example.com"))
	if after != before+1 {
		t.Errorf("started counter = %v; want %v", after, before+1)
	}

	beforeFailed := testutil.ToFloat64(crawlsFailedTotal.WithLabelValues("docs.example.com"))
	ObserveCrawlStart("https://docs.example.com/guide/", errors.New("boom"))
	afterFailed := testutil.ToFloat64(crawlsFailedTotal.WithLabelValues("docs.example.com"))
	if afterFailed != beforeFailed+1 {
		t.Errorf("failed counter = %v; want %v", afterFailed, beforeFailed+1)
	}
}

func TestObserveWorkersRemoved(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlWorkersRemovedTotal)
	ObserveWorkersRemoved(3)
	ObserveWorkersRemoved(0)
	ObserveWorkersRemoved(-1)
	after := testutil.ToFloat64(crawlWorkersRemovedTotal)
	if after != before+3 {
		t.Errorf("removed counter = %v; want %v", after, before+3)
	}
}

func TestObserveAsk(t *testing.T) {
	Init()

	before := testutil.ToFloat64(questionsTotal.WithLabelValues("normal"))
	ObserveAsk("normal", 2, 150*time.Millisecond)
	after := testutil.ToFloat64(questionsTotal.WithLabelValues("normal"))
	if after != before+2 {
		t.Errorf("questions counter = %v; want %v", after, before+2)
	}
}

func TestObserveSearchError(t *testing.T) {
	Init()

	before := testutil.ToFloat64(searchErrorsTotal.WithLabelValues("go-docs"))
	ObserveSearchError("go-docs")
	after := testutil.ToFloat64(searchErrorsTotal.WithLabelValues("go-docs"))
	if after != before+1 {
		t.Errorf("search error counter = %v; want %v", after, before+1)
	}
}

func TestObserveHTTPRequest(t *testing.T) {
	Init()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	ObserveHTTPRequest("GET", "/v1/crawls", 200, 25*time.Millisecond)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	if after != before+1 {
		t.Errorf("http requests counter = %v; want %v", after, before+1)
	}
}
