package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeTradeServer accepts one ws connection and floods it with trade frames,
// then holds the connection open until the client disconnects.
func fakeTradeServer(t *testing.T, frames int) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		frame := []byte(`{"e":"trade","p":"65000.1"}`)
		for i := 0; i < frames; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTradeFeedDeliversTicks(t *testing.T) {
	feed := NewTradeFeed(fakeTradeServer(t, 3), "btcusdt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, err := feed.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case tick := <-ticks:
		if tick.Price != 65000.1 {
			t.Errorf("Price = %v, want 65000.1", tick.Price)
		}
		if !strings.Contains(string(tick.Raw), `"trade"`) {
			t.Errorf("Raw = %s, want verbatim frame", tick.Raw)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no tick received")
	}
}

// Shutdown while the tick channel is full and nobody is draining it: the
// feed must unwind cleanly and close the channel instead of panicking on a
// send to it.
func TestTradeFeedShutdownWithUndrainedChannel(t *testing.T) {
	feed := NewTradeFeed(fakeTradeServer(t, 1500), "btcusdt")

	ctx, cancel := context.WithCancel(context.Background())
	ticks, err := feed.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// let the reader fill the buffer and block on the next send
	time.Sleep(300 * time.Millisecond)
	cancel()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				return // closed cleanly
			}
		case <-deadline:
			t.Fatal("tick channel not closed after cancel")
		}
	}
}

func TestSubscribeValidatesConfig(t *testing.T) {
	if _, err := NewTradeFeed("", "btcusdt").Subscribe(context.Background()); err == nil {
		t.Error("expected error for empty ws url")
	}
	if _, err := NewTradeFeed("wss://example.com", "").Subscribe(context.Background()); err == nil {
		t.Error("expected error for empty symbol")
	}
}
