// Package sqlite implements the accuracy store on an embedded sqlite file,
// mirroring the original deployment: three tables keyed by anchor date and
// (anchor date, horizon), all writes idempotent upserts.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"curvehub/internal/application/port"
	"curvehub/internal/domain"
)

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Repo, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db, now: time.Now}
	if err := r.migrate(context.Background()); err != nil {
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
  anchor_timestamp TEXT NOT NULL,
  anchor_price REAL NOT NULL,
  regime TEXT,
  direction TEXT,
  curve_quality REAL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  anchor_date TEXT NOT NULL,
  horizon TEXT NOT NULL,
  original_price REAL NOT NULL,
  original_pct REAL NOT NULL,
  stabilized_price REAL,
  stabilized_pct REAL,
  actual_price REAL,
  actual_pct REAL,
  became_actual_at TEXT,
  UNIQUE(anchor_date, horizon),
  FOREIGN KEY(anchor_date) REFERENCES daily_anchors(anchor_date)
);

CREATE TABLE IF NOT EXISTS accuracy_metrics (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  anchor_date TEXT NOT NULL,
  horizon TEXT NOT NULL,
  original_error_pct REAL NOT NULL,
  stabilized_error_pct REAL,
  original_accuracy REAL NOT NULL,
  stabilized_accuracy REAL,
  calculated_at TEXT NOT NULL,
  UNIQUE(anchor_date, horizon),
  FOREIGN KEY(anchor_date) REFERENCES daily_anchors(anchor_date)
);
CREATE INDEX IF NOT EXISTS idx_metrics_calculated ON accuracy_metrics(calculated_at);
`)
	return err
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// RecordCurve upserts the anchor row and, for every point carrying an
// original prediction, the prediction row; realized points with a non-zero
// target price also get their metric row recomputed. All writes happen in
// one transaction: a failed call leaves the store untouched.
//
// Invariants enforced here: original_* columns are write-once (the conflict
// clause never assigns them); actual_* columns transition null -> set once
// and keep their first value; stabilized columns and metric rows may be
// refreshed on every call, but a stabilized figure already stored is never
// nulled by a later observation that lacks one (restart with an empty
// ledger).
func (r *Repo) RecordCurve(ctx context.Context, c *domain.Curve) error {
	if c == nil || c.AnchorTime.IsZero() {
		return nil
	}
	anchorDate := c.AnchorDate()
	now := fmtTime(r.now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_anchors(anchor_date, anchor_timestamp, anchor_price, regime, direction, curve_quality, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(anchor_date) DO UPDATE SET
		anchor_timestamp=excluded.anchor_timestamp, anchor_price=excluded.anchor_price,
		regime=excluded.regime, direction=excluded.direction, curve_quality=excluded.curve_quality
	`, anchorDate, fmtTime(c.AnchorTime), c.AnchorPrice, c.Regime, c.Direction, c.CurveQuality, now); err != nil {
		return err
	}

	for i := range c.Points {
		p := &c.Points[i]
		if p.OriginalPrice == nil {
			continue
		}

		var actualPrice, actualPct any
		var realizedAt any
		if p.Realized {
			actualPrice = p.TargetPrice
			actualPct = p.PctChange
			realizedAt = now
		}
		stabilizedPct := stabilizedPctOf(p, c.AnchorPrice)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO predictions(anchor_date, horizon, original_price, original_pct,
			  stabilized_price, stabilized_pct, actual_price, actual_pct, became_actual_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(anchor_date, horizon) DO UPDATE SET
			stabilized_price=COALESCE(excluded.stabilized_price, predictions.stabilized_price),
			stabilized_pct=COALESCE(excluded.stabilized_pct, predictions.stabilized_pct),
			actual_price=COALESCE(predictions.actual_price, excluded.actual_price),
			actual_pct=COALESCE(predictions.actual_pct, excluded.actual_pct),
			became_actual_at=COALESCE(predictions.became_actual_at, excluded.became_actual_at)
		`, anchorDate, p.Horizon, *p.OriginalPrice, derefOr(p.OriginalPct, 0),
			nullable(p.StabilizedPrice), nullable(stabilizedPct), actualPrice, actualPct, realizedAt); err != nil {
			return err
		}

		// Guarded division: a realized target price of exactly zero yields
		// no metric row rather than a numeric fault.
		if !p.Realized || p.TargetPrice <= 0 {
			continue
		}
		m := computeMetric(p.TargetPrice, *p.OriginalPrice, p.StabilizedPrice)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accuracy_metrics(anchor_date, horizon, original_error_pct,
			  stabilized_error_pct, original_accuracy, stabilized_accuracy, calculated_at)
			VALUES(?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(anchor_date, horizon) DO UPDATE SET
			original_error_pct=excluded.original_error_pct,
			stabilized_error_pct=COALESCE(excluded.stabilized_error_pct, accuracy_metrics.stabilized_error_pct),
			original_accuracy=excluded.original_accuracy,
			stabilized_accuracy=COALESCE(excluded.stabilized_accuracy, accuracy_metrics.stabilized_accuracy),
			calculated_at=excluded.calculated_at
		`, anchorDate, p.Horizon, m.OriginalErrorPct, nullable(m.StabilizedErrorPct),
			m.OriginalAccuracy, nullable(m.StabilizedAccuracy), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Summary aggregates metrics calculated within the trailing window.
func (r *Repo) Summary(ctx context.Context, windowDays int) (*domain.Summary, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	cutoff := fmtTime(r.now().AddDate(0, 0, -windowDays))

	out := &domain.Summary{
		Horizons:   make(map[string]domain.HorizonStats),
		Regimes:    make(map[string]domain.RegimeStats),
		WindowDays: windowDays,
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT horizon, COUNT(*), AVG(original_error_pct), MIN(original_error_pct),
		       MAX(original_error_pct), AVG(original_accuracy)
		FROM accuracy_metrics
		WHERE calculated_at >= ?
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
		SELECT AVG(original_error_pct) FROM accuracy_metrics WHERE calculated_at >= ?
	`, cutoff).Scan(&overall); err != nil {
		return nil, err
	}
	out.OverallMAPE = round(overall.Float64, 3)
	out.OverallAccuracy = round(100-overall.Float64, 2)

	regimeRows, err := r.db.QueryContext(ctx, `
		SELECT da.regime, COUNT(*), AVG(am.original_error_pct)
		FROM accuracy_metrics am
		JOIN daily_anchors da ON am.anchor_date = da.anchor_date
		WHERE am.calculated_at >= ?
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

var _ port.AccuracyStore = (*Repo)(nil)
