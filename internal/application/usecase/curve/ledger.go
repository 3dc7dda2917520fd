package curve

import (
	"sync"

	"curvehub/internal/domain"
)

// DefaultHistorySize covers ~25 hours at the 5-minute cadence.
const DefaultHistorySize = 300

// Ledger is the bounded rolling history of curve snapshots: a fixed-capacity
// FIFO ring with a write cursor. Appends are O(1); once at capacity the
// oldest entry is evicted per insertion regardless of age.
//
// The poller is the only writer. Reads come from the resolver (newest-last
// scan) and the web layer (client replay), so access is mutex-guarded.
type Ledger struct {
	mu   sync.Mutex
	buf  []domain.Snapshot
	head int // index of the oldest entry
	size int
}

func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Ledger{buf: make([]domain.Snapshot, capacity)}
}

func (l *Ledger) Capacity() int { return len(l.buf) }

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Append records a snapshot, evicting the oldest entry when full.
func (l *Ledger) Append(s domain.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < len(l.buf) {
		l.buf[(l.head+l.size)%len(l.buf)] = s
		l.size++
		return
	}
	l.buf[l.head] = s
	l.head = (l.head + 1) % len(l.buf)
}

// Snapshots returns a copy of the ledger contents, oldest first.
func (l *Ledger) Snapshots() []domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Snapshot, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}
