// Package v5 adapts the V5 Flash forecast API (single prediction endpoint,
// no anchor tracking) to the internal curve shape.
package v5

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"curvehub/internal/application/port"
	"curvehub/internal/domain"
)

const SourceName = "v5"

var horizons = []string{"+1H", "+2H", "+4H", "+6H", "+8H", "+12H", "+18H", "+24H", "+36H", "+48H"}

type Client struct {
	baseURL string
	hc      *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Horizons() []string { return horizons }

type pointWire struct {
	TargetPrice float64 `json:"target_price"`
	PctChange   float64 `json:"pct_change"`
	Lower90     float64 `json:"lower_90"`
	Upper90     float64 `json:"upper_90"`
}

type predictionWire struct {
	Timestamp       string               `json:"timestamp"`
	CurrentPrice    float64              `json:"current_price"`
	Direction       string               `json:"direction"`
	ConfidenceLevel string               `json:"confidence_level"`
	ConfidenceScore float64              `json:"confidence_score"`
	ForwardCurve    map[string]pointWire `json:"forward_curve"`
}

// Fetch retrieves the current prediction. The V5 model exposes no anchor or
// realization tracking, so every point comes back pending and the curve
// carries no anchor instant (the accuracy store skips such curves).
func (c *Client) Fetch(ctx context.Context) (*domain.Curve, error) {
	var pred predictionWire
	if err := c.getJSON(ctx, "/prediction", &pred); err != nil {
		return nil, err
	}

	curve := &domain.Curve{
		Type:            "forward_curve",
		Source:          SourceName,
		Timestamp:       time.Now().UTC(),
		GeneratedAt:     pred.Timestamp,
		CurrentPrice:    pred.CurrentPrice,
		Direction:       defaulted(pred.Direction, "NEUTRAL"),
		ConfidenceLevel: defaulted(pred.ConfidenceLevel, "LOW"),
		ConfidenceScore: pred.ConfidenceScore,
		Model:           "V5 Flash (LSTM+TFT)",
	}
	for _, h := range horizons {
		point, ok := pred.ForwardCurve[h]
		if !ok {
			continue
		}
		curve.Points = append(curve.Points, domain.CurvePoint{
			Horizon:     h,
			TargetPrice: point.TargetPrice,
			PctChange:   point.PctChange,
			Lower90:     point.Lower90,
			Upper90:     point.Upper90,
		})
	}
	return curve, nil
}

// FetchSummary passes the upstream quick-summary payload through verbatim.
func (c *Client) FetchSummary(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/prediction/summary", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FetchHistory passes the upstream curve history through verbatim.
func (c *Client) FetchHistory(ctx context.Context, limit int) (json.RawMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, fmt.Sprintf("/history?limit=%d", limit), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &port.FetchError{Source: SourceName, Reason: port.ReasonDecodeError, Err: err}
	}
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.hc.Do(req)
	if err != nil {
		reason := port.ReasonUpstreamError
		var ne net.Error
		if (errors.As(err, &ne) && ne.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			reason = port.ReasonTimeout
		}
		return &port.FetchError{Source: SourceName, Reason: reason, Err: err}
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

func defaulted(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
