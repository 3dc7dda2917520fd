package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"curvehub/internal/application/port"
)

type fakeFeed struct {
	ch chan port.Tick
}

func (f *fakeFeed) Name() string { return "fake" }

func (f *fakeFeed) Subscribe(ctx context.Context) (<-chan port.Tick, error) {
	return f.ch, nil
}

type capturingPublisher struct {
	mu   sync.Mutex
	msgs []any
}

func (p *capturingPublisher) Broadcast(message any) {
	p.mu.Lock()
	p.msgs = append(p.msgs, message)
	p.mu.Unlock()
}

func (p *capturingPublisher) messages() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.msgs...)
}

func TestRelayBroadcastsAndTracksLatest(t *testing.T) {
	feed := &fakeFeed{ch: make(chan port.Tick, 2)}
	pub := &capturingPublisher{}
	s := NewService(feed, pub)

	feed.ch <- port.Tick{Raw: json.RawMessage(`{"e":"trade","p":"65000"}`), Price: 65000}
	feed.ch <- port.Tick{Raw: json.RawMessage(`{"e":"trade","p":"65100"}`), Price: 65100}
	close(feed.ch)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := pub.messages()
	if len(msgs) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(msgs))
	}
	tm, ok := msgs[0].(TradeMessage)
	if !ok {
		t.Fatalf("broadcast type = %T, want TradeMessage", msgs[0])
	}
	if tm.Type != "trade" {
		t.Errorf("envelope type = %q, want trade", tm.Type)
	}

	last := s.LatestTick()
	if last == nil || last.Price != 65100 {
		t.Errorf("LatestTick = %+v, want price 65100", last)
	}
}

func TestRelayStopsOnCancel(t *testing.T) {
	feed := &fakeFeed{ch: make(chan port.Tick)}
	s := NewService(feed, &capturingPublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on cancel")
	}
}
