package sqlite

import (
	"math"

	"curvehub/internal/domain"
)

type metric struct {
	OriginalErrorPct   float64
	StabilizedErrorPct *float64
	OriginalAccuracy   float64
	StabilizedAccuracy *float64
}

// computeMetric derives percentage error and accuracy against the realized
// price. Caller guarantees actual > 0.
func computeMetric(actual, original float64, stabilized *float64) metric {
	origErr := math.Abs(actual-original) / actual * 100
	m := metric{
		OriginalErrorPct: round(origErr, 4),
		OriginalAccuracy: round(100-origErr, 4),
	}
	if stabilized != nil {
		stabErr := math.Abs(actual-*stabilized) / actual * 100
		m.StabilizedErrorPct = domain.Float(round(stabErr, 4))
		m.StabilizedAccuracy = domain.Float(round(100-stabErr, 4))
	}
	return m
}

// stabilizedPctOf expresses the stabilized price as a percent move from the
// anchor price, matching the convention of the upstream pct_change fields.
func stabilizedPctOf(p *domain.CurvePoint, anchorPrice float64) *float64 {
	if p.StabilizedPrice == nil || anchorPrice <= 0 {
		return nil
	}
	return domain.Float(round((*p.StabilizedPrice-anchorPrice)/anchorPrice*100, 4))
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
