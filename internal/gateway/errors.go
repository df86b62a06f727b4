package gateway

import (
	"errors"
	"fmt"

	"github.com/Mayank009/cashew/internal/billing"
)

// Kind classifies gateway failures by how callers should react.
type Kind int

const (
	// KindPermanent failures must not be retried.
	KindPermanent Kind = iota
	KindNotFound
	KindUnauthorized
	// KindRateLimited and KindTransient are safe to retry with backoff.
	KindRateLimited
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Error is returned by every Gateway method on failure.
type Error struct {
	Kind Kind
	Op   string
	// Code is the gateway's own error code, if any.
	Code string
	Err  error
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
	ErrTransient    = &Error{Kind: KindTransient}
	ErrPermanent    = &Error{Kind: KindPermanent}
)

func (e *Error) Error() string {
	msg := "gateway"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	msg += fmt.Sprintf(": %s", e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels above, and billing.ErrNotFound for
// not-found failures.
func (e *Error) Is(target error) bool {
	if target == billing.ErrNotFound {
		return e.Kind == KindNotFound
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Code == "" && t.Err == nil && t.Kind == e.Kind
}

// Retryable reports whether err is a gateway failure worth retrying.
func Retryable(err error) bool {
	var gerr *Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Kind == KindTransient || gerr.Kind == KindRateLimited
}

// KindOf returns the gateway kind of err, or KindPermanent when err is not
// a gateway error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindPermanent
}
