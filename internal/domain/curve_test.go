package domain

import (
	"testing"
	"time"
)

func TestAnchorDate(t *testing.T) {
	c := &Curve{AnchorTime: time.Date(2026, 8, 24, 23, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))}
	if got := c.AnchorDate(); got != "2026-08-24" {
		t.Errorf("AnchorDate = %q, want UTC date 2026-08-24", got)
	}

	var empty Curve
	if got := empty.AnchorDate(); got != "" {
		t.Errorf("AnchorDate of zero anchor = %q, want empty", got)
	}
}

func TestSnapshotOfCapturesOnlyPending(t *testing.T) {
	c := &Curve{
		HoursElapsed: 10,
		Points: []CurvePoint{
			{Horizon: "+1H", TargetPrice: 65150, Realized: true},
			{Horizon: "+2H", TargetPrice: 65300, OriginalPrice: Float(65250)},
		},
	}

	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	s := SnapshotOf(c, at)

	if !s.CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, want %v", s.CapturedAt, at)
	}
	if _, ok := s.Pending["+1H"]; ok {
		t.Error("realized horizon captured in snapshot")
	}
	sp, ok := s.Pending["+2H"]
	if !ok {
		t.Fatal("pending horizon missing from snapshot")
	}
	if sp.Price != 65300 {
		t.Errorf("snapshot price = %v, want 65300", sp.Price)
	}
	if sp.OriginalPrice == nil || *sp.OriginalPrice != 65250 {
		t.Errorf("snapshot original = %v, want 65250", sp.OriginalPrice)
	}
}
