// Package postgres implements the accuracy store on PostgreSQL with the same
// schema and upsert semantics as the sqlite backend. Used when several hub
// instances share one store.
package postgres

import (
	"context"
	"database/sql"
	"math"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"curvehub/internal/application/port"
	"curvehub/internal/domain"
)

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &Repo{db: db, now: time.Now}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS daily_anchors (
  anchor_date TEXT PRIMARY KEY,
  anchor_timestamp TIMESTAMPTZ NOT NULL,
  anchor_price DOUBLE PRECISION NOT NULL,
  regime TEXT,
  direction TEXT,
  curve_quality DOUBLE PRECISION,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
  id BIGSERIAL PRIMARY KEY,
  anchor_date TEXT NOT NULL REFERENCES daily_anchors(anchor_date),
  horizon TEXT NOT NULL,
  original_price DOUBLE PRECISION NOT NULL,
  original_pct DOUBLE PRECISION NOT NULL,
  stabilized_price DOUBLE PRECISION,
  stabilized_pct DOUBLE PRECISION,
  actual_price DOUBLE PRECISION,
  actual_pct DOUBLE PRECISION,
  became_actual_at TIMESTAMPTZ,
  UNIQUE(anchor_date, horizon)
);

CREATE TABLE IF NOT EXISTS accuracy_metrics (
  id BIGSERIAL PRIMARY KEY,
  anchor_date TEXT NOT NULL REFERENCES daily_anchors(anchor_date),
  horizon TEXT NOT NULL,
  original_error_pct DOUBLE PRECISION NOT NULL,
  stabilized_error_pct DOUBLE PRECISION,
  original_accuracy DOUBLE PRECISION NOT NULL,
  stabilized_accuracy DOUBLE PRECISION,
  calculated_at TIMESTAMPTZ NOT NULL,
  UNIQUE(anchor_date, horizon)
);
CREATE INDEX IF NOT EXISTS idx_metrics_calculated ON accuracy_metrics(calculated_at);
`)
	return err
}

func (r *Repo) RecordCurve(ctx context.Context, c *domain.Curve) error {
	if c == nil || c.AnchorTime.IsZero() {
		return nil
	}
	anchorDate := c.AnchorDate()
	now := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_anchors(anchor_date, anchor_timestamp, anchor_price, regime, direction, curve_quality, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(anchor_date) DO UPDATE SET
		anchor_timestamp=excluded.anchor_timestamp, anchor_price=excluded.anchor_price,
		regime=excluded.regime, direction=excluded.direction, curve_quality=excluded.curve_quality
	`, anchorDate, c.AnchorTime.UTC(), c.AnchorPrice, c.Regime, c.Direction, c.CurveQuality, now); err != nil {
		return err
	}

	for i := range c.Points {
		p := &c.Points[i]
		if p.OriginalPrice == nil {
			continue
		}

		var actualPrice, actualPct, realizedAt any
		if p.Realized {
			actualPrice = p.TargetPrice
			actualPct = p.PctChange
			realizedAt = now
		}
		var stabilizedPct any
		if p.StabilizedPrice != nil && c.AnchorPrice > 0 {
			stabilizedPct = (*p.StabilizedPrice - c.AnchorPrice) / c.AnchorPrice * 100
		}
		var stabilized any
		if p.StabilizedPrice != nil {
			stabilized = *p.StabilizedPrice
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO predictions(anchor_date, horizon, original_price, original_pct,
			  stabilized_price, stabilized_pct, actual_price, actual_pct, became_actual_at)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT(anchor_date, horizon) DO UPDATE SET
			stabilized_price=COALESCE(excluded.stabilized_price, predictions.stabilized_price),
			stabilized_pct=COALESCE(excluded.stabilized_pct, predictions.stabilized_pct),
			actual_price=COALESCE(predictions.actual_price, excluded.actual_price),
			actual_pct=COALESCE(predictions.actual_pct, excluded.actual_pct),
			became_actual_at=COALESCE(predictions.became_actual_at, excluded.became_actual_at)
		`, anchorDate, p.Horizon, *p.OriginalPrice, pctOrZero(p.OriginalPct),
			stabilized, stabilizedPct, actualPrice, actualPct, realizedAt); err != nil {
			return err
		}

		if !p.Realized || p.TargetPrice <= 0 {
			continue
		}
		origErr := math.Abs(p.TargetPrice-*p.OriginalPrice) / p.TargetPrice * 100
		var stabErr, stabAcc any
		if p.StabilizedPrice != nil {
			e := math.Abs(p.TargetPrice-*p.StabilizedPrice) / p.TargetPrice * 100
			stabErr = e
			stabAcc = 100 - e
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accuracy_metrics(anchor_date, horizon, original_error_pct,
			  stabilized_error_pct, original_accuracy, stabilized_accuracy, calculated_at)
			VALUES($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT(anchor_date, horizon) DO UPDATE SET
			original_error_pct=excluded.original_error_pct,
			stabilized_error_pct=COALESCE(excluded.stabilized_error_pct, accuracy_metrics.stabilized_error_pct),
			original_accuracy=excluded.original_accuracy,
			stabilized_accuracy=COALESCE(excluded.stabilized_accuracy, accuracy_metrics.stabilized_accuracy),
			calculated_at=excluded.calculated_at
		`, anchorDate, p.Horizon, origErr, stabErr, 100-origErr, stabAcc, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repo) Summary(ctx context.Context, windowDays int) (*domain.Summary, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	cutoff := r.now().UTC().AddDate(0, 0, -windowDays)

	out := &domain.Summary{
		Horizons:   make(map[string]domain.HorizonStats),
		Regimes:    make(map[string]domain.RegimeStats),
		WindowDays: windowDays,
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT horizon, COUNT(*), AVG(original_error_pct), MIN(original_error_pct),
		       MAX(original_error_pct), AVG(original_accuracy)
		FROM accuracy_metrics
		WHERE calculated_at >= $1
		GROUP BY horizon
		ORDER BY horizon
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var horizon string
		var st domain.HorizonStats
		if err := rows.Scan(&horizon, &st.Count, &st.MAPE, &st.MinError, &st.MaxError, &st.Accuracy); err != nil {
			return nil, err
		}
		st.MAPE = round(st.MAPE, 3)
		st.MinError = round(st.MinError, 3)
		st.MaxError = round(st.MaxError, 3)
		st.Accuracy = round(st.Accuracy, 2)
		out.Horizons[horizon] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var overall sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, `
		SELECT AVG(original_error_pct) FROM accuracy_metrics WHERE calculated_at >= $1
	`, cutoff).Scan(&overall); err != nil {
		return nil, err
	}
	out.OverallMAPE = round(overall.Float64, 3)
	out.OverallAccuracy = round(100-overall.Float64, 2)

	regimeRows, err := r.db.QueryContext(ctx, `
		SELECT da.regime, COUNT(*), AVG(am.original_error_pct)
		FROM accuracy_metrics am
		JOIN daily_anchors da ON am.anchor_date = da.anchor_date
		WHERE am.calculated_at >= $1
		GROUP BY da.regime
		ORDER BY COUNT(*) DESC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer regimeRows.Close()
	for regimeRows.Next() {
		var regime sql.NullString
		var st domain.RegimeStats
		if err := regimeRows.Scan(&regime, &st.Count, &st.MAPE); err != nil {
			return nil, err
		}
		st.MAPE = round(st.MAPE, 3)
		out.Regimes[regime.String] = st
	}
	return out, regimeRows.Err()
}

// round matches the sqlite backend's summary precision so the two stores
// report identical figures.
func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func pctOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

var _ port.AccuracyStore = (*Repo)(nil)
