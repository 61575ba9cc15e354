package reconciliation

import (
	"errors"
	"fmt"

	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/app/service/ordersync"
)

var (
	// ErrValidation rejects a request before anything is mutated.
	ErrValidation = errors.New("validation failed")
	// ErrClaimLost means another request owns the checkout. Callers treat
	// it as success without action.
	ErrClaimLost = errors.New("checkout already claimed")
	// ErrProviderInitiate means the provider did not accept the payment;
	// no order exists and the checkout was cancelled.
	ErrProviderInitiate = errors.New("payment provider failed to initiate")
	// ErrAuthenticity is a callback whose signature or hash did not verify.
	ErrAuthenticity = gateway.ErrAuthenticity
	// ErrUnrecognizedCallback is a callback whose reference matches nothing.
	ErrUnrecognizedCallback = errors.New("unrecognized payment callback")
	// ErrExternalSync is surfaced by the order sync after its last attempt.
	ErrExternalSync = ordersync.ErrSyncFailed

	ErrNotFound       = errors.New("not found")
	ErrCheckoutClosed = errors.New("checkout is no longer payable")
	ErrConflict       = errors.New("operation conflicts with current state")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
