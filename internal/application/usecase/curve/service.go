package curve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"curvehub/internal/application/port"
	"curvehub/internal/domain"
)

const (
	DefaultInterval      = 5 * time.Minute
	DefaultFallbackSleep = 60 * time.Second
)

type Deps struct {
	Source    port.CurveSource
	Store     port.AccuracyStore // optional
	Publisher port.Publisher
	Cache     port.CurveCache // optional
	Metrics   port.Metrics    // optional

	Interval      time.Duration // poll cadence, aligned to wall-clock boundaries
	AlignOffset   time.Duration // fixed offset past the boundary, avoids the upstream's own refresh
	FallbackSleep time.Duration // sleep after an unexpected cycle fault
	HistorySize   int           // ledger capacity
}

// Service is the forecast-curve lifecycle engine for one upstream source:
// it owns the polling cadence, the ledger, and the fetch -> resolve ->
// record -> publish cycle. One instance per upstream model; instances share
// nothing but the publisher.
type Service struct {
	deps   Deps
	ledger *Ledger

	mu        sync.RWMutex
	last      *domain.Curve
	lastState string

	now func() time.Time
}

func NewService(deps Deps) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.FallbackSleep <= 0 {
		deps.FallbackSleep = DefaultFallbackSleep
	}
	return &Service{
		deps:   deps,
		ledger: NewLedger(deps.HistorySize),
		now:    time.Now,
	}
}

func (s *Service) Source() string { return s.deps.Source.Name() }

// CurrentCurve returns the last successfully published curve, or nil.
func (s *Service) CurrentCurve() *domain.Curve {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// History returns the ledger contents, oldest first.
func (s *Service) History() []domain.Snapshot {
	return s.ledger.Snapshots()
}

// Run polls until ctx is cancelled. The loop is strictly sequential: cycle
// N's append and publish complete (or fail) before cycle N+1 begins. A
// failed fetch skips the cycle without touching the ledger and keeps the
// aligned cadence; an unexpected cycle fault is logged and followed by the
// fixed fallback sleep. Nothing escalates to loop termination.
func (s *Service) Run(ctx context.Context) error {
	log.Info().
		Str("source", s.Source()).
		Dur("interval", s.deps.Interval).
		Dur("offset", s.deps.AlignOffset).
		Int("history_capacity", s.ledger.Capacity()).
		Msg("curve poller started")

	for {
		err := s.runCycle(ctx)

		wait := nextAlignedWait(s.now(), s.deps.Interval, s.deps.AlignOffset)
		switch {
		case err == nil:
			s.record("ok")
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			// shutdown in flight; the select below returns
		case port.FetchReason(err) != "":
			s.record(port.FetchReason(err))
			log.Warn().Str("source", s.Source()).Err(err).Msg("fetch failed, cycle skipped")
		default:
			s.record("fault")
			log.Error().Str("source", s.Source()).Err(err).Msg("cycle fault, resuming after fallback sleep")
			wait = s.deps.FallbackSleep
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Str("source", s.Source()).Msg("curve poller stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runCycle executes one fetch -> append -> resolve -> record -> publish
// cycle. A panic inside the cycle is converted to an error so the poller
// daemon survives programming faults in adapters or decoding.
func (s *Service) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	c, err := s.deps.Source.Fetch(ctx)
	if err != nil {
		return err
	}

	s.ledger.Append(domain.SnapshotOf(c, s.now()))
	Resolve(c, s.ledger.Snapshots())
	c.HistorySize = s.ledger.Len()

	// Persistence is best-effort relative to real-time delivery: a failed
	// write must not stall the broadcast.
	if s.deps.Store != nil {
		if serr := s.deps.Store.RecordCurve(ctx, c); serr != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.StoreError(s.Source())
			}
			log.Error().Str("source", s.Source()).Err(serr).Msg("accuracy store write failed")
		}
	}

	s.deps.Publisher.Broadcast(c)

	if s.deps.Cache != nil {
		if payload, merr := json.Marshal(c); merr == nil {
			if cerr := s.deps.Cache.StoreLatest(ctx, s.Source(), payload); cerr != nil {
				log.Debug().Str("source", s.Source()).Err(cerr).Msg("curve cache write failed")
			}
		}
	}

	s.setCurrent(c)
	return nil
}

func (s *Service) record(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.PollCycle(s.Source(), outcome)
	}
}

func (s *Service) setCurrent(c *domain.Curve) {
	state := fmt.Sprintf("%.2f|%s|%s|%.2f", c.CurrentPrice, c.Direction, c.Regime, c.CurveQuality)

	s.mu.Lock()
	changed := state != s.lastState
	s.last = c
	s.lastState = state
	s.mu.Unlock()

	if changed {
		log.Info().
			Str("source", s.Source()).
			Float64("price", c.CurrentPrice).
			Str("direction", c.Direction).
			Str("regime", c.Regime).
			Msg("forward curve updated")
	}
}

// nextAlignedWait returns how long to sleep so the next cycle starts at the
// first wall-clock interval boundary strictly after now, plus offset. All
// pollers therefore observe the same upstream state at roughly the same
// logical instant, which cross-source comparison relies on.
func nextAlignedWait(now time.Time, interval, offset time.Duration) time.Duration {
	if interval <= 0 {
		interval = DefaultInterval
	}
	boundary := now.Truncate(interval).Add(interval)
	wait := boundary.Add(offset).Sub(now)
	if wait <= 0 {
		wait = interval
	}
	return wait
}
