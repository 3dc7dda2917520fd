package composite

import (
	"context"
	"errors"
	"testing"

	"curvehub/internal/domain"
)

type fakeStore struct {
	recorded int
	err      error
	summary  *domain.Summary
}

func (f *fakeStore) RecordCurve(ctx context.Context, c *domain.Curve) error {
	f.recorded++
	return f.err
}

func (f *fakeStore) Summary(ctx context.Context, days int) (*domain.Summary, error) {
	return f.summary, nil
}

func (f *fakeStore) Close() error { return nil }

func TestRecordCurveFansOutPastFailures(t *testing.T) {
	failing := &fakeStore{err: errors.New("disk full")}
	healthy := &fakeStore{}
	r := New(failing, healthy)

	err := r.RecordCurve(context.Background(), &domain.Curve{})
	if err == nil {
		t.Fatal("expected joined error from failing store")
	}
	if healthy.recorded != 1 {
		t.Errorf("healthy store writes = %d, want 1", healthy.recorded)
	}
}

func TestSummaryUsesFirstStore(t *testing.T) {
	first := &fakeStore{summary: &domain.Summary{WindowDays: 7}}
	second := &fakeStore{summary: &domain.Summary{WindowDays: 99}}
	r := New(first, second)

	s, err := r.Summary(context.Background(), 7)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.WindowDays != 7 {
		t.Errorf("WindowDays = %d, want 7 (first store)", s.WindowDays)
	}
}
