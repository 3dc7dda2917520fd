package port

import (
	"context"
	"errors"
	"fmt"

	"curvehub/internal/domain"
)

// Fetch failure reasons. UpstreamErrorReason carries the status code appended
// as ":<code>".
const (
	ReasonTimeout       = "timeout"
	ReasonUpstreamError = "upstream_error"
	ReasonDecodeError   = "decode_error"
)

// FetchError is the typed outcome of a failed upstream round-trip. Sources
// never let raw transport or decoding faults cross their boundary.
type FetchError struct {
	Source string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s fetch failed (%s): %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s fetch failed (%s)", e.Source, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UpstreamStatusReason builds the reason tag for a non-success status code.
func UpstreamStatusReason(code int) string {
	return fmt.Sprintf("%s:%d", ReasonUpstreamError, code)
}

// FetchReason extracts the reason tag from an error, or "" if it is not a
// FetchError.
func FetchReason(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// CurveSource performs one upstream round-trip and normalizes whatever shape
// the upstream returns into the internal curve representation.
type CurveSource interface {
	Name() string
	Horizons() []string
	Fetch(ctx context.Context) (*domain.Curve, error)
}
