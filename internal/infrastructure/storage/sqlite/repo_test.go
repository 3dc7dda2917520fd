package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"curvehub/internal/domain"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := New(filepath.Join(t.TempDir(), "accuracy.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testCurve(anchor time.Time) *domain.Curve {
	return &domain.Curve{
		Source:      "v4",
		AnchorTime:  anchor,
		AnchorPrice: 65000,
		Regime:      "trending",
		Direction:   "bullish",
		Points: []domain.CurvePoint{
			{
				Horizon:       "+1H",
				TargetPrice:   65150,
				PctChange:     0.23,
				OriginalPrice: domain.Float(65100),
				OriginalPct:   domain.Float(0.15),
			},
			{
				Horizon:     "+2H",
				TargetPrice: 65300,
				PctChange:   0.46,
				// no original prediction: must not produce a row
			},
		},
	}
}

func TestRecordCurveSkipsAnchorless(t *testing.T) {
	r := openTestRepo(t)

	c := testCurve(time.Time{})
	if err := r.RecordCurve(context.Background(), c); err != nil {
		t.Fatalf("RecordCurve: %v", err)
	}

	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM daily_anchors`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("anchorless curve persisted %d anchor rows", n)
	}
}

func TestRecordCurveOriginalIsWriteOnce(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	anchor := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	if err := r.RecordCurve(ctx, testCurve(anchor)); err != nil {
		t.Fatalf("first RecordCurve: %v", err)
	}

	// Same anchor date, drifted original: the stored original must survive.
	c := testCurve(anchor)
	c.Points[0].OriginalPrice = domain.Float(99999)
	c.Points[0].StabilizedPrice = domain.Float(65180)
	if err := r.RecordCurve(ctx, c); err != nil {
		t.Fatalf("second RecordCurve: %v", err)
	}

	var original, stabilized float64
	err := r.db.QueryRow(`
		SELECT original_price, stabilized_price FROM predictions
		WHERE anchor_date = ? AND horizon = '+1H'
	`, "2026-08-24").Scan(&original, &stabilized)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if original != 65100 {
		t.Errorf("original_price overwritten: got %v, want 65100", original)
	}
	if stabilized != 65180 {
		t.Errorf("stabilized_price = %v, want 65180", stabilized)
	}

	var rows int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("predictions rows = %d, want 1 (point without original must be skipped)", rows)
	}
}

func TestRecordCurveRealizationIsSticky(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	anchor := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	first := time.Date(2026, 8, 24, 1, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return first }

	c := testCurve(anchor)
	c.Points[0].Realized = true
	c.Points[0].StabilizedPrice = domain.Float(65180)
	if err := r.RecordCurve(ctx, c); err != nil {
		t.Fatalf("RecordCurve: %v", err)
	}

	// Re-observe the realized point later with a different target price:
	// actual_* and became_actual_at keep their first values.
	r.now = func() time.Time { return first.Add(10 * time.Minute) }
	c2 := testCurve(anchor)
	c2.Points[0].Realized = true
	c2.Points[0].TargetPrice = 70000
	c2.Points[0].StabilizedPrice = domain.Float(65180)
	if err := r.RecordCurve(ctx, c2); err != nil {
		t.Fatalf("second RecordCurve: %v", err)
	}

	var actual float64
	var realizedAt string
	err := r.db.QueryRow(`
		SELECT actual_price, became_actual_at FROM predictions
		WHERE anchor_date = ? AND horizon = '+1H'
	`, "2026-08-24").Scan(&actual, &realizedAt)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if actual != 65150 {
		t.Errorf("actual_price = %v, want first-observed 65150", actual)
	}
	if realizedAt != fmtTime(first) {
		t.Errorf("became_actual_at = %q, want %q", realizedAt, fmtTime(first))
	}

	var metricRows int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM accuracy_metrics`).Scan(&metricRows); err != nil {
		t.Fatal(err)
	}
	if metricRows != 1 {
		t.Errorf("accuracy_metrics rows = %d, want 1", metricRows)
	}
}

// After a restart the ledger is empty, so a re-observed realized horizon
// arrives without a stabilized figure. The metric row's stabilized columns
// must keep their previously computed values.
func TestRecordCurveStabilizedMetricSurvivesRestart(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	anchor := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	c := testCurve(anchor)
	c.Points[0].Realized = true
	c.Points[0].StabilizedPrice = domain.Float(65180)
	if err := r.RecordCurve(ctx, c); err != nil {
		t.Fatalf("RecordCurve: %v", err)
	}

	c2 := testCurve(anchor)
	c2.Points[0].Realized = true
	if err := r.RecordCurve(ctx, c2); err != nil {
		t.Fatalf("second RecordCurve: %v", err)
	}

	var stabErr, stabAcc sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT stabilized_error_pct, stabilized_accuracy FROM accuracy_metrics
		WHERE anchor_date = ? AND horizon = '+1H'
	`, "2026-08-24").Scan(&stabErr, &stabAcc)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !stabErr.Valid || !stabAcc.Valid {
		t.Fatal("stabilized metric columns nulled by stabilized-less re-observation")
	}
	want := computeMetric(65150, 65100, domain.Float(65180))
	if stabErr.Float64 != *want.StabilizedErrorPct {
		t.Errorf("stabilized_error_pct = %v, want %v", stabErr.Float64, *want.StabilizedErrorPct)
	}
}

func TestRecordCurveZeroActualPriceYieldsNoMetric(t *testing.T) {
	r := openTestRepo(t)
	anchor := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	c := testCurve(anchor)
	c.Points[0].Realized = true
	c.Points[0].TargetPrice = 0
	if err := r.RecordCurve(context.Background(), c); err != nil {
		t.Fatalf("RecordCurve: %v", err)
	}

	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM accuracy_metrics`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("metric rows for zero actual price = %d, want 0", n)
	}
}

func TestSummaryWindow(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()

	record := func(at time.Time, anchorDay int, errPct float64) {
		r.now = func() time.Time { return at }
		anchor := time.Date(2026, 8, anchorDay, 0, 0, 0, 0, time.UTC)
		c := testCurve(anchor)
		c.Points[0].Realized = true
		c.Points[0].TargetPrice = 65000
		c.Points[0].OriginalPrice = domain.Float(65000 * (1 - errPct/100))
		if err := r.RecordCurve(ctx, c); err != nil {
			t.Fatalf("RecordCurve: %v", err)
		}
	}

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	record(now.AddDate(0, 0, -40), 1, 8) // outside a 30-day window
	record(now.AddDate(0, 0, -2), 20, 2)
	record(now.AddDate(0, 0, -1), 21, 4)

	r.now = func() time.Time { return now }
	s, err := r.Summary(ctx, 30)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if s.WindowDays != 30 {
		t.Errorf("WindowDays = %d, want 30", s.WindowDays)
	}
	if s.OverallMAPE != 3 {
		t.Errorf("OverallMAPE = %v, want 3 (old metric must fall outside the window)", s.OverallMAPE)
	}
	if s.OverallAccuracy != 97 {
		t.Errorf("OverallAccuracy = %v, want 97", s.OverallAccuracy)
	}

	h, ok := s.Horizons["+1H"]
	if !ok {
		t.Fatal("missing +1H horizon stats")
	}
	if h.Count != 2 {
		t.Errorf("+1H count = %d, want 2", h.Count)
	}
	if h.MinError != 2 || h.MaxError != 4 {
		t.Errorf("+1H min/max = %v/%v, want 2/4", h.MinError, h.MaxError)
	}

	reg, ok := s.Regimes["trending"]
	if !ok {
		t.Fatal("missing trending regime stats")
	}
	if reg.Count != 2 {
		t.Errorf("trending count = %d, want 2", reg.Count)
	}
}
