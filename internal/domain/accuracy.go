package domain

import "time"

// Anchor is one forecasting cycle, keyed by its anchor date.
type Anchor struct {
	Date         string
	Time         time.Time
	Price        float64
	Regime       string
	Direction    string
	CurveQuality float64
}

// HorizonPrediction is the durable record of one (anchor, horizon) pair.
// Original fields are write-once; actual fields go null -> set exactly once.
type HorizonPrediction struct {
	AnchorDate      string
	Horizon         string
	OriginalPrice   float64
	OriginalPct     float64
	StabilizedPrice *float64
	StabilizedPct   *float64
	ActualPrice     *float64
	ActualPct       *float64
	RealizedAt      *time.Time
}

// AccuracyMetric is derived from a realized prediction. Stabilized figures are
// nil when no stabilized value existed at realization time.
type AccuracyMetric struct {
	AnchorDate         string
	Horizon            string
	OriginalErrorPct   float64
	StabilizedErrorPct *float64
	OriginalAccuracy   float64
	StabilizedAccuracy *float64
	CalculatedAt       time.Time
}

// HorizonStats aggregates realized outcomes for one horizon.
type HorizonStats struct {
	Count    int     `json:"count"`
	MAPE     float64 `json:"mape"`
	MinError float64 `json:"min_error"`
	MaxError float64 `json:"max_error"`
	Accuracy float64 `json:"accuracy"`
}

// RegimeStats aggregates realized outcomes per market regime.
type RegimeStats struct {
	Count int     `json:"count"`
	MAPE  float64 `json:"mape"`
}

// Summary is the read-side aggregate over a trailing window of days.
type Summary struct {
	OverallMAPE     float64                 `json:"overall_mape"`
	OverallAccuracy float64                 `json:"overall_accuracy"`
	Horizons        map[string]HorizonStats `json:"horizon_stats"`
	Regimes         map[string]RegimeStats  `json:"regime_stats"`
	WindowDays      int                     `json:"days_analyzed"`
}
