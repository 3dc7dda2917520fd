package port

// Publisher fans a single JSON-serializable message out to all currently
// registered subscribers, at-most-once best-effort. A subscriber that errors
// on send is dropped from membership, not retried.
type Publisher interface {
	Broadcast(message any)
}
