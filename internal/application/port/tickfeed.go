package port

import (
	"context"
	"encoding/json"
	"time"
)

// Tick is one raw exchange trade event. The payload is relayed to clients
// verbatim; Price is parsed best-effort for local state.
type Tick struct {
	Raw        json.RawMessage
	Price      float64
	ReceivedAt time.Time
}

// TickFeed streams live trade events from an exchange. Subscribe returns a
// channel that closes when ctx is cancelled; reconnects are the feed's own
// concern.
type TickFeed interface {
	Name() string
	Subscribe(ctx context.Context) (<-chan Tick, error)
}
