package port

// Metrics records operational counters. Implementations must be safe for
// concurrent use; a nil Metrics dependency disables recording.
type Metrics interface {
	PollCycle(source, outcome string)
	StoreError(source string)
	BroadcastSent(msgType string, clients int)
	ClientCount(n int)
}
