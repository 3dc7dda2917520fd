package v5

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"curvehub/internal/application/port"
)

const predictionBody = `{
	"timestamp": "2026-08-24T10:00:00Z",
	"current_price": 65000,
	"direction": "UP",
	"confidence_level": "HIGH",
	"confidence_score": 0.91,
	"forward_curve": {
		"+1H": {"target_price": 65210, "pct_change": 0.32, "lower_90": 65100, "upper_90": 65320},
		"+48H": {"target_price": 66400, "pct_change": 2.15, "lower_90": 65000, "upper_90": 67800}
	}
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second)
}

func TestFetchNormalizesPrediction(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prediction" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(predictionBody))
	}))

	curve, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if curve.Source != SourceName || curve.Type != "forward_curve" {
		t.Errorf("source/type = %s/%s", curve.Source, curve.Type)
	}
	if !curve.AnchorTime.IsZero() {
		t.Error("v5 curves carry no anchor")
	}
	if curve.ConfidenceLevel != "HIGH" || curve.ConfidenceScore != 0.91 {
		t.Errorf("confidence = %s/%v", curve.ConfidenceLevel, curve.ConfidenceScore)
	}
	if len(curve.Points) != 2 {
		t.Fatalf("points = %d, want 2 (only horizons present upstream)", len(curve.Points))
	}
	for _, p := range curve.Points {
		if p.Realized {
			t.Errorf("%s realized, v5 points are always pending", p.Horizon)
		}
	}
	if p := curve.Point("+48H"); p == nil || p.TargetPrice != 66400 {
		t.Errorf("+48H = %+v, want target 66400", p)
	}
}

func TestFetchDefaultsConfidence(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current_price": 65000, "forward_curve": {}}`))
	}))

	curve, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if curve.Direction != "NEUTRAL" || curve.ConfidenceLevel != "LOW" {
		t.Errorf("defaults = %s/%s, want NEUTRAL/LOW", curve.Direction, curve.ConfidenceLevel)
	}
}

func TestFetchClassifiesErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Fetch(context.Background())
	if got := port.FetchReason(err); got != "upstream_error:502" {
		t.Errorf("FetchReason = %q, want upstream_error:502", got)
	}
}

func TestFetchHistoryPassesLimitThrough(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[{"timestamp":"2026-08-24T09:00:00Z"}]`))
	}))

	raw, err := c.FetchHistory(context.Background(), 25)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if gotQuery != "limit=25" {
		t.Errorf("query = %q, want limit=25", gotQuery)
	}
	if !strings.Contains(string(raw), "timestamp") {
		t.Errorf("payload not passed through: %s", raw)
	}
}

func TestFetchSummaryPassthrough(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prediction/summary" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"signal":"BUY"}`))
	}))

	raw, err := c.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if string(raw) != `{"signal":"BUY"}` {
		t.Errorf("payload = %s, want verbatim pass-through", raw)
	}
}
