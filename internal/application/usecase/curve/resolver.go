package curve

import "curvehub/internal/domain"

// Resolve attaches the stabilized figure and evolution-trace length to every
// point of c, using the ledger contents in capture order (oldest first).
//
// For a horizon that is now realized, the stabilized figure is the price in
// the last snapshot where that horizon was still pending: the final forecast
// issued before the outcome was confirmed. If no such snapshot exists the
// stabilized value stays absent, it is never estimated. For a horizon still
// pending, "last known" is simply the current forecast.
//
// Pure function of (curve, snapshots); no hidden state.
func Resolve(c *domain.Curve, snapshots []domain.Snapshot) {
	for i := range c.Points {
		p := &c.Points[i]

		evolution := 0
		var lastPrice float64
		var lastAt *int // index into snapshots, nil when never pending
		for j := range snapshots {
			sp, ok := snapshots[j].Pending[p.Horizon]
			if !ok {
				continue
			}
			evolution++
			lastPrice = sp.Price
			idx := j
			lastAt = &idx
		}
		p.EvolutionCount = evolution

		if !p.Realized {
			p.StabilizedPrice = domain.Float(p.TargetPrice)
			p.StabilizedAt = nil
			continue
		}
		if lastAt == nil {
			p.StabilizedPrice = nil
			p.StabilizedAt = nil
			continue
		}
		p.StabilizedPrice = domain.Float(lastPrice)
		at := snapshots[*lastAt].CapturedAt
		p.StabilizedAt = &at
	}
}
