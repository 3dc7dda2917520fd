package domain

import "time"

// CurvePoint is one horizon of a forward curve as published to clients.
// Original/yesterday/stabilized fields are pointers so that an absent value
// serializes as null instead of a fake zero.
type CurvePoint struct {
	Horizon         string     `json:"horizon"`
	TargetPrice     float64    `json:"target_price"`
	PctChange       float64    `json:"pct_change"`
	Lower90         float64    `json:"lower_90"`
	Upper90         float64    `json:"upper_90"`
	Realized        bool       `json:"is_actual"`
	OriginalPrice   *float64   `json:"original_price"`
	OriginalPct     *float64   `json:"original_pct"`
	YesterdayPrice  *float64   `json:"yesterday_price"`
	StabilizedPrice *float64   `json:"stabilized_price"`
	StabilizedAt    *time.Time `json:"stabilized_at"`
	EvolutionCount  int        `json:"evolution_count"`
}

// Curve is one normalized poll result from an upstream forecast model.
// It is transient: one instance per poll cycle, enriched in place by the
// stabilization resolver before being stored and broadcast.
type Curve struct {
	Type            string       `json:"type"`
	Source          string       `json:"source"`
	Timestamp       time.Time    `json:"timestamp"`
	GeneratedAt     string       `json:"generated_at,omitempty"`
	AnchorTime      time.Time    `json:"anchor_timestamp"`
	HoursElapsed    float64      `json:"hours_elapsed"`
	CurrentPrice    float64      `json:"current_price"`
	AnchorPrice     float64      `json:"anchor_price"`
	Direction       string       `json:"direction"`
	Regime          string       `json:"regime,omitempty"`
	CurveQuality    float64      `json:"curve_quality"`
	ConfidenceLevel string       `json:"confidence_level,omitempty"`
	ConfidenceScore float64      `json:"confidence_score"`
	Model           string       `json:"model"`
	Points          []CurvePoint `json:"curve"`
	HasYesterday    bool         `json:"has_yesterday"`
	HasHistory      bool         `json:"has_history"`
	HistorySize     int          `json:"history_size"`
}

// AnchorDate returns the day-granularity key of the curve's anchor,
// or "" when the upstream supplied no anchor instant.
func (c *Curve) AnchorDate() string {
	if c.AnchorTime.IsZero() {
		return ""
	}
	return c.AnchorTime.UTC().Format("2006-01-02")
}

// Point returns the point for a horizon, or nil.
func (c *Curve) Point(horizon string) *CurvePoint {
	for i := range c.Points {
		if c.Points[i].Horizon == horizon {
			return &c.Points[i]
		}
	}
	return nil
}

// SnapshotPoint is the per-horizon forecast captured in a ledger snapshot.
type SnapshotPoint struct {
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"original_price"`
}

// Snapshot is one ledger entry: the pending-horizon forecasts observed at a
// single capture instant. Realized horizons contribute nothing, their
// stabilized value is already fixed by the time they first appear realized.
type Snapshot struct {
	CapturedAt   time.Time                `json:"timestamp"`
	AnchorTime   time.Time                `json:"anchor_timestamp"`
	HoursElapsed float64                  `json:"hours_elapsed"`
	Pending      map[string]SnapshotPoint `json:"predictions"`
}

// SnapshotOf captures the pending horizons of a curve.
func SnapshotOf(c *Curve, at time.Time) Snapshot {
	s := Snapshot{
		CapturedAt:   at,
		AnchorTime:   c.AnchorTime,
		HoursElapsed: c.HoursElapsed,
		Pending:      make(map[string]SnapshotPoint),
	}
	for _, p := range c.Points {
		if p.Realized {
			continue
		}
		s.Pending[p.Horizon] = SnapshotPoint{Price: p.TargetPrice, OriginalPrice: p.OriginalPrice}
	}
	return s
}

// Float returns a pointer to v, for the nullable curve fields.
func Float(v float64) *float64 { return &v }
