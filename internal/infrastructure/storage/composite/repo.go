// Package composite fans accuracy writes out to several stores, so a local
// sqlite file and a shared postgres instance can be kept in step.
package composite

import (
	"context"
	"errors"

	"curvehub/internal/application/port"
	"curvehub/internal/domain"
)

type Repo struct {
	stores []port.AccuracyStore
}

func New(stores ...port.AccuracyStore) *Repo {
	return &Repo{stores: stores}
}

// RecordCurve writes to every store and joins the failures; one failing
// store does not keep the others from persisting.
func (r *Repo) RecordCurve(ctx context.Context, c *domain.Curve) error {
	var errs []error
	for _, s := range r.stores {
		if err := s.RecordCurve(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summary reads from the first store only.
func (r *Repo) Summary(ctx context.Context, windowDays int) (*domain.Summary, error) {
	if len(r.stores) == 0 {
		return nil, errors.New("composite: no stores configured")
	}
	return r.stores[0].Summary(ctx, windowDays)
}

func (r *Repo) Close() error {
	var errs []error
	for _, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.AccuracyStore = (*Repo)(nil)
