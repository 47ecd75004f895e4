package ntp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBound indicates Request is called before an address is known.
	ErrNotBound = errors.New("not bound")
	// ErrFailed indicates the client permanently failed.
	ErrFailed = errors.New("client failed")
)

// Reasons of ValidationError.
const (
	ReasonAddress = "address"
	ReasonPort    = "port"
	ReasonLength  = "length"
	ReasonMode    = "mode"
	ReasonStratum = "stratum"
)

// ValidationError indicates a rejected reply.
type ValidationError struct {
	Reason string
	Value  int
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reply %s %d", e.Reason, e.Value)
}
