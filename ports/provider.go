package ports

import (
	"context"
	"fmt"
)

// ProviderErrorCode classifies identity provider failures. The session core
// depends only on this taxonomy, never on the provider's transport.
type ProviderErrorCode string

const (
	ProviderErrInvalidNumber   ProviderErrorCode = "invalid_number"
	ProviderErrInvalidCode     ProviderErrorCode = "invalid_code"
	ProviderErrCodeExpired     ProviderErrorCode = "code_expired"
	ProviderErrTooManyRequests ProviderErrorCode = "too_many_requests"
	ProviderErrQuotaExceeded   ProviderErrorCode = "quota_exceeded"
	ProviderErrUnavailable     ProviderErrorCode = "unavailable"
)

// ProviderError carries the provider's failure taxonomy across the port
type ProviderError struct {
	Code   ProviderErrorCode
	Reason string
}

func (e *ProviderError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("provider error: %s", e.Code)
	}
	return fmt.Sprintf("provider error: %s: %s", e.Code, e.Reason)
}

// DispatchResult is the outcome of a successful passcode dispatch
type DispatchResult struct {
	Handle string // Opaque handle tying a confirm attempt to this dispatch
}

// ConfirmResult is the verified identity assertion issued on a correct passcode
type ConfirmResult struct {
	Subject string // Provider-issued unique subject id
	Phone   string // Phone number the passcode proved ownership of
}

// ChallengeProvider is the external identity provider that performs the
// cryptographic passcode verification
type ChallengeProvider interface {
	// SendPasscode dispatches a passcode to the phone number and returns a pending handle
	SendPasscode(ctx context.Context, phone string) (DispatchResult, error)

	// ConfirmPasscode submits a passcode against a pending handle
	ConfirmPasscode(ctx context.Context, handle, code string) (ConfirmResult, error)
}
