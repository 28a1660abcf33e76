// Package errs defines the typed error kinds a caller of reconcile/store/
// registry can distinguish against, per the error handling design: a
// StoreError degrades silently at its origin, the others are returned to the
// caller so behavior can differ (retry, confirm, ignore).
package errs

import "fmt"

// StoreError wraps an underlying I/O failure from the session store. Store
// methods log it and return a zero value to their own callers rather than
// propagate it; the reconcile engine's mutations (SaveNewSession,
// UpdateSessionName and the like) return a *StoreError to their callers
// when the store reports such a failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InvariantViolation signals a mutation that was refused to avoid corrupting
// an invariant (duplicate window binding, saving over a durable id without
// opting into deletion, and so on).
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Reason
}

// MalformedRequest signals a wire request missing a required field (a
// caller-side mistake, not a domain-state conflict). Per the error handling
// design this is absorbed silently: the api/ws layer drops the message with
// no reply rather than routing it through sendErrorValue.
type MalformedRequest struct {
	Reason string
}

func (e *MalformedRequest) Error() string {
	return "malformed request: " + e.Reason
}

// StalePlatformHandle signals that the platform failed to resolve a window
// id that the engine believed was still live. Treated as transient: bindings
// are cleaned up but the id is not added to the closed set.
type StalePlatformHandle struct {
	WindowID int
}

func (e *StalePlatformHandle) Error() string {
	return fmt.Sprintf("stale platform handle for window %d", e.WindowID)
}

// NameConflict signals a case-insensitive name collision with an existing
// durable session. The caller may retry the same operation with an explicit
// opt-in to delete the existing holder.
type NameConflict struct {
	ExistingID int64
}

func (e *NameConflict) Error() string {
	return fmt.Sprintf("name already in use by session %d", e.ExistingID)
}
