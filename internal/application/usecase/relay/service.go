// Package relay forwards exchange trade ticks to connected UI clients.
package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"curvehub/internal/application/port"
)

// TradeMessage is the envelope fanned out for every tick.
type TradeMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Service pipes a tick feed into the publisher. It keeps only the latest
// tick; clients joining late get current state from their first live tick
// rather than a replay.
type Service struct {
	feed      port.TickFeed
	publisher port.Publisher

	mu   sync.RWMutex
	last *port.Tick
}

func NewService(feed port.TickFeed, publisher port.Publisher) *Service {
	return &Service{feed: feed, publisher: publisher}
}

// LatestTick returns the most recent tick, or nil before the first one.
func (s *Service) LatestTick() *port.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run consumes the feed until ctx is cancelled or the feed channel closes.
func (s *Service) Run(ctx context.Context) error {
	ticks, err := s.feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("feed", s.feed.Name()).Msg("tick relay started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				log.Info().Str("feed", s.feed.Name()).Msg("tick relay stopped")
				return nil
			}
			s.mu.Lock()
			s.last = &tick
			s.mu.Unlock()
			s.publisher.Broadcast(TradeMessage{Type: "trade", Data: tick.Raw})
		}
	}
}
