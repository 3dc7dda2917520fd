package port

import (
	"context"

	"curvehub/internal/domain"
)

// AccuracyStore is the durable record of anchors, per-horizon predictions and
// computed error metrics. All writes are idempotent upserts keyed by the
// natural keys (anchor date, anchor date + horizon); RecordCurve is atomic
// per call.
type AccuracyStore interface {
	RecordCurve(ctx context.Context, c *domain.Curve) error
	Summary(ctx context.Context, windowDays int) (*domain.Summary, error)
	Close() error
}

// CurveCache is an optional side-channel for the latest published curve
// (cache + pub/sub). Failures are best-effort and never block a poll cycle.
type CurveCache interface {
	StoreLatest(ctx context.Context, source string, payload []byte) error
}
