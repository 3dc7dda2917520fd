// Package web is the hub's outward surface: the JSON API, the Binance
// proxies, the websocket fan-out and the static UI.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"curvehub/internal/application/port"
	"curvehub/internal/domain"
	"curvehub/internal/infrastructure/exchange/binance"
)

// CurveQuery is the read side of a running poller.
type CurveQuery interface {
	Source() string
	CurrentCurve() *domain.Curve
	History() []domain.Snapshot
}

// Passthrough proxies upstream endpoints the hub does not re-model.
type Passthrough interface {
	FetchSummary(ctx context.Context) (json.RawMessage, error)
	FetchHistory(ctx context.Context, limit int) (json.RawMessage, error)
}

type Config struct {
	Addr        string
	StaticDir   string
	SummaryDays int
	Heartbeat   time.Duration
}

type Server struct {
	echo *echo.Echo
	cfg  Config
	hub  *Hub

	curves      map[string]CurveQuery
	store       port.AccuracyStore // optional
	passthrough Passthrough        // optional, v5 only
	rest        *binance.RestClient
	instanceID  string
}

func NewServer(cfg Config, hub *Hub, curves []CurveQuery, store port.AccuracyStore, passthrough Passthrough, rest *binance.RestClient) *Server {
	if cfg.SummaryDays <= 0 {
		cfg.SummaryDays = 30
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 5 * time.Second
	}

	byName := make(map[string]CurveQuery, len(curves))
	for _, c := range curves {
		byName[c.Source()] = c
	}

	hostname, _ := os.Hostname()
	s := &Server{
		cfg:         cfg,
		hub:         hub,
		curves:      byName,
		store:       store,
		passthrough: passthrough,
		rest:        rest,
		instanceID:  fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8]),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	e.GET("/api/mode", s.handleMode)
	e.GET("/api/strategy_instances", s.handleStrategyInstances)
	e.GET("/api/strategy-events", s.handleStrategyEvents)
	e.GET("/api/binance-klines", s.handleKlines)
	e.GET("/api/binance-aggTrades", s.handleAggTrades)

	e.GET("/api/curve/current", s.handleCurveCurrent)
	e.GET("/api/curve/history", s.handleCurveHistory)
	e.GET("/api/curve/summary", s.handleCurveSummary)
	e.GET("/api/accuracy/summary", s.handleAccuracySummary)

	e.GET("/ws", s.handleWebsocket)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// telemetry sinks, keeps the browser console free of 404 noise
	stub := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.POST("/v1/traces", stub)
	e.POST("/v1/logs", stub)
	e.POST("/api/logs", stub)

	if cfg.StaticDir != "" {
		e.Static("/js", filepath.Join(cfg.StaticDir, "js"))
		e.GET("/", s.handleIndex)
		e.GET("/chart.html", s.handleIndex)
	}

	s.echo = e
	return s
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Addr).Str("instance", s.instanceID).Msg("http server listening")
	err := s.echo.Start(s.cfg.Addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// RunHeartbeat broadcasts a liveness message on a fixed tick so the UI can
// tell a quiet market from a dead hub.
func (s *Server) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.Broadcast(map[string]any{
				"type": "heartbeat",
				"data": map[string]any{
					"instance_name": "ForwardCurveHub",
					"instance_id":   s.instanceID,
					"heartbeat_at":  time.Now().UTC().Format(time.RFC3339),
				},
			})
		}
	}
}

func (s *Server) handleMode(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"mode":       "live",
		"simulation": false,
		"features":   map[string]any{"ws_channels": []string{"ticks:compressed:binance:btcusdt"}},
		"version":    "curvehub",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStrategyInstances(c echo.Context) error {
	return c.JSON(http.StatusOK, []string{"ForwardCurve"})
}

func (s *Server) handleStrategyEvents(c echo.Context) error {
	return c.JSON(http.StatusOK, []any{})
}

func (s *Server) handleKlines(c echo.Context) error {
	data, err := s.rest.Klines(c.Request().Context(), c.QueryParams())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) handleAggTrades(c echo.Context) error {
	data, err := s.rest.AggTrades(c.Request().Context(), c.QueryParams())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSONBlob(http.StatusOK, data)
}

// handleCurveCurrent returns the last polled curve for the requested source
// (default v5, matching the original single-source API).
func (s *Server) handleCurveCurrent(c echo.Context) error {
	q := s.lookup(c.QueryParam("source"))
	if q == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown source"})
	}
	curve := q.CurrentCurve()
	if curve == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "curve not available"})
	}
	return c.JSON(http.StatusOK, curve)
}

// handleCurveHistory serves the poller's ledger when a source is named, and
// falls back to the upstream history pass-through otherwise.
func (s *Server) handleCurveHistory(c echo.Context) error {
	if source := c.QueryParam("source"); source != "" {
		q := s.lookup(source)
		if q == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown source"})
		}
		return c.JSON(http.StatusOK, q.History())
	}

	if s.passthrough == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "history not available"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	data, err := s.passthrough.FetchHistory(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) handleCurveSummary(c echo.Context) error {
	if s.passthrough == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "summary not available"})
	}
	data, err := s.passthrough.FetchSummary(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) handleAccuracySummary(c echo.Context) error {
	if s.store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "accuracy store disabled"})
	}
	days, _ := strconv.Atoi(c.QueryParam("days"))
	if days <= 0 {
		days = s.cfg.SummaryDays
	}
	summary, err := s.store.Summary(c.Request().Context(), days)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

// handleWebsocket hands the connection to the hub, seeding it with the
// last-known curve of every source so the UI renders immediately.
func (s *Server) handleWebsocket(c echo.Context) error {
	var initial [][]byte
	for _, q := range s.curves {
		curve := q.CurrentCurve()
		if curve == nil {
			continue
		}
		if payload, err := json.Marshal(curve); err == nil {
			initial = append(initial, payload)
		}
	}
	// once upgraded the response writer is hijacked; nothing for echo to do
	_ = s.hub.Serve(c.Response(), c.Request(), initial)
	return nil
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.File(filepath.Join(s.cfg.StaticDir, "chart.html"))
}

func (s *Server) lookup(source string) CurveQuery {
	if source == "" {
		if q, ok := s.curves["v5"]; ok {
			return q
		}
		for _, q := range s.curves {
			return q
		}
		return nil
	}
	return s.curves[source]
}
