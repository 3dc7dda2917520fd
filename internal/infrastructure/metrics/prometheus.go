// Package metrics implements port.Metrics on Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"curvehub/internal/application/port"
)

type Recorder struct {
	pollCycles   *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	broadcasts   *prometheus.CounterVec
	clientsGauge prometheus.Gauge
}

func New() *Recorder {
	return &Recorder{
		pollCycles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curvehub_poll_cycles_total",
				Help: "Poll cycles per upstream source and outcome",
			},
			[]string{"source", "outcome"},
		),
		storeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curvehub_store_errors_total",
				Help: "Failed accuracy store writes per source",
			},
			[]string{"source"},
		),
		broadcasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curvehub_broadcasts_total",
				Help: "Messages fanned out to websocket clients by type",
			},
			[]string{"type"},
		),
		clientsGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "curvehub_ws_clients",
				Help: "Connected websocket clients",
			},
		),
	}
}

func (r *Recorder) PollCycle(source, outcome string) {
	r.pollCycles.WithLabelValues(source, outcome).Inc()
}

func (r *Recorder) StoreError(source string) {
	r.storeErrors.WithLabelValues(source).Inc()
}

func (r *Recorder) BroadcastSent(msgType string, clients int) {
	r.broadcasts.WithLabelValues(msgType).Add(float64(clients))
}

func (r *Recorder) ClientCount(n int) {
	r.clientsGauge.Set(float64(n))
}

var _ port.Metrics = (*Recorder)(nil)
