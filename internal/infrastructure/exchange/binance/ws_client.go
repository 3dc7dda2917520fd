// Package binance connects the hub to Binance spot market data: a trade
// stream over websocket for the tick relay and a REST client backing the
// kline/aggTrade proxy endpoints.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"curvehub/internal/application/port"
)

type TradeFeed struct {
	wsURL  string // e.g. wss://stream.binance.com:9443
	symbol string // lowercase pair, e.g. btcusdt
}

func NewTradeFeed(wsURL, symbol string) *TradeFeed {
	return &TradeFeed{
		wsURL:  strings.TrimRight(strings.TrimSpace(wsURL), "/"),
		symbol: strings.ToLower(strings.TrimSpace(symbol)),
	}
}

func (f *TradeFeed) Name() string { return "binance:" + f.symbol + "@trade" }

type tradeMsg struct {
	Event string `json:"e"`
	Price string `json:"p"`
}

// Subscribe opens the trade stream and keeps it alive until ctx is
// cancelled, reconnecting with capped exponential backoff. The returned
// channel closes only on shutdown, never on a transient disconnect.
func (f *TradeFeed) Subscribe(ctx context.Context) (<-chan port.Tick, error) {
	if f.wsURL == "" {
		return nil, errors.New("binance ws_base empty")
	}
	if f.symbol == "" {
		return nil, errors.New("binance symbol empty")
	}

	out := make(chan port.Tick, 1024)
	go f.run(ctx, fmt.Sprintf("%s/ws/%s@trade", f.wsURL, f.symbol), out)
	return out, nil
}

func (f *TradeFeed) run(ctx context.Context, wsURL string, out chan<- port.Tick) {
	defer close(out)

	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", f.Name()).Msg("ws connected")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg tradeMsg
			if e := json.Unmarshal(b, &msg); e != nil {
				log.Error().Str("feed", f.Name()).Err(e).Msg("json unmarshal failed")
				return
			}
			if msg.Event != "trade" {
				return
			}
			price, _ := strconv.ParseFloat(strings.TrimSpace(msg.Price), 64)
			tick := port.Tick{
				Raw:        json.RawMessage(append([]byte(nil), b...)),
				Price:      price,
				ReceivedAt: time.Now().UTC(),
			}
			// the consumer may already be gone during shutdown; never block
			// past cancellation
			select {
			case out <- tick:
			case <-ctx.Done():
			}
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

// readLoop reads messages until the connection drops or ctx is cancelled.
// onMsg runs on the calling goroutine, so once readLoop returns no further
// callbacks can fire and the caller may safely close downstream channels.
func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		pingTicker := time.NewTicker(25 * time.Second)
		defer pingTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				// unblocks the pending ReadMessage below
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-pingTicker.C:
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		onMsg(b)
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
