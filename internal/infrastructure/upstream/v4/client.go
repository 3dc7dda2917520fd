// Package v4 adapts the V4.32 forecast API to the internal curve shape.
//
// One fetch issues three calls: the required tracking endpoint plus the
// optional yesterday and recent-history endpoints, concurrently. A failure
// of an optional call degrades the result (the corresponding fields stay
// empty) but never fails the fetch.
package v4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"curvehub/internal/application/port"
	"curvehub/internal/domain"
)

const SourceName = "v4"

// V4 forecasts 8 horizons up to 24H, "+" prefixed as returned by the API.
var horizons = []string{"+1H", "+2H", "+4H", "+6H", "+8H", "+12H", "+18H", "+24H"}

type Client struct {
	baseURL string
	hc      *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Horizons() []string { return horizons }

type horizonWire struct {
	Price     float64 `json:"price"`
	PctChange float64 `json:"pct_change"`
	Lower90   float64 `json:"lower_90"`
	Upper90   float64 `json:"upper_90"`
	IsActual  bool    `json:"is_actual"`
}

type originalWire struct {
	OriginalPrice *float64 `json:"original_price"`
	OriginalPct   *float64 `json:"original_pct"`
}

type trackingWire struct {
	GeneratedAt         string                  `json:"generated_at"`
	AnchorTimestamp     string                  `json:"anchor_timestamp"`
	HoursElapsed        float64                 `json:"hours_elapsed"`
	CurrentPrice        float64                 `json:"current_price"`
	Direction           string                  `json:"direction"`
	Regime              string                  `json:"regime"`
	CurveQuality        float64                 `json:"curve_quality"`
	ForwardCurve        map[string]horizonWire  `json:"forward_curve"`
	OriginalPredictions map[string]originalWire `json:"original_predictions"`
}

type yesterdayWire struct {
	ForwardCurve map[string]horizonWire `json:"forward_curve"`
}

type historyEntryWire struct {
	Timestamp    string                 `json:"timestamp"`
	ForwardCurve map[string]horizonWire `json:"forward_curve"`
}

// Fetch performs one upstream round-trip and normalizes the response.
// All transport, status and decoding faults come back as *port.FetchError.
func (c *Client) Fetch(ctx context.Context) (*domain.Curve, error) {
	var (
		tracking     trackingWire
		yesterday    yesterdayWire
		history      []historyEntryWire
		trackingErr  error
		yesterdayErr error
		historyErr   error
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		trackingErr = c.getJSON(ctx, "/prediction/tracking", &tracking)
	}()
	go func() {
		defer wg.Done()
		yesterdayErr = c.getJSON(ctx, "/prediction/yesterday", &yesterday)
	}()
	go func() {
		defer wg.Done()
		historyErr = c.getJSON(ctx, "/history?limit=24", &history)
	}()
	wg.Wait()

	if trackingErr != nil {
		return nil, trackingErr
	}
	if yesterdayErr != nil {
		log.Debug().Str("source", SourceName).Err(yesterdayErr).Msg("yesterday endpoint unavailable")
	}
	if historyErr != nil {
		log.Debug().Str("source", SourceName).Err(historyErr).Msg("history endpoint unavailable")
	}

	return c.normalize(tracking, yesterday, history, yesterdayErr == nil, historyErr == nil), nil
}

func (c *Client) normalize(t trackingWire, y yesterdayWire, history []historyEntryWire, hasYesterday, hasHistory bool) *domain.Curve {
	curve := &domain.Curve{
		Type:         "v4_forward_curve",
		Source:       SourceName,
		Timestamp:    time.Now().UTC(),
		GeneratedAt:  t.GeneratedAt,
		AnchorTime:   parseInstant(t.AnchorTimestamp),
		HoursElapsed: t.HoursElapsed,
		CurrentPrice: t.CurrentPrice,
		AnchorPrice:  t.CurrentPrice,
		Direction:    defaulted(t.Direction, "neutral"),
		Regime:       defaulted(t.Regime, "neutral"),
		CurveQuality: t.CurveQuality,
		Model:        "V4.32",
		HasYesterday: hasYesterday,
		HasHistory:   hasHistory && len(history) > 0,
	}

	for _, h := range horizons {
		point, ok := t.ForwardCurve[h]
		if !ok {
			continue
		}
		p := domain.CurvePoint{
			Horizon:     h,
			TargetPrice: point.Price,
			PctChange:   point.PctChange,
			Lower90:     point.Lower90,
			Upper90:     point.Upper90,
			Realized:    point.IsActual,
		}
		if orig, ok := t.OriginalPredictions[h]; ok {
			p.OriginalPrice = orig.OriginalPrice
			p.OriginalPct = orig.OriginalPct
		}
		if yp, ok := y.ForwardCurve[h]; ok {
			p.YesterdayPrice = domain.Float(yp.Price)
		}
		curve.Points = append(curve.Points, p)
	}
	return curve
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &port.FetchError{Source: SourceName, Reason: port.ReasonDecodeError, Err: err}
	}
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.hc.Do(req)
	if err != nil {
		return &port.FetchError{Source: SourceName, Reason: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &port.FetchError{
			Source: SourceName,
			Reason: port.UpstreamStatusReason(resp.StatusCode),
			Err:    fmt.Errorf("GET %s: status %d", path, resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &port.FetchError{Source: SourceName, Reason: port.ReasonDecodeError, Err: err}
	}
	return nil
}

func classifyTransport(err error) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return port.ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return port.ReasonTimeout
	}
	return port.ReasonUpstreamError
}

// parseInstant parses an upstream ISO-8601 timestamp; schema drift yields
// the zero time instead of an error.
func parseInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	log.Debug().Str("source", SourceName).Str("value", s).Msg("unparseable upstream timestamp")
	return time.Time{}
}

func defaulted(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
