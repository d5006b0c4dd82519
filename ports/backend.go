package ports

import (
	"context"
	"fmt"

	"github.com/tiffinwaleofficial/student-app-sub003/core"
)

// BackendError carries the backend's rejection across the port. The message
// is surfaced to the user verbatim.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (%d): %s", e.Status, e.Message)
}

// ExchangeResult is the credential pair and profile issued by the backend
type ExchangeResult struct {
	AccessToken  string
	RefreshToken string
	User         core.UserSnapshot
}

// SessionBackend is the remote session API consumed through a fixed
// request/response contract
type SessionBackend interface {
	// Exchange trades a verified identity assertion for a session credential
	Exchange(ctx context.Context, assertion core.Assertion) (ExchangeResult, error)

	// Refresh trades a refresh token for a fresh credential pair
	Refresh(ctx context.Context, refreshToken string) (ExchangeResult, error)

	// Revoke invalidates the session server side. Best effort only.
	Revoke(ctx context.Context, refreshToken string) error

	// Validate asks the backend whether an access token is still honored
	Validate(ctx context.Context, accessToken string) (bool, error)

	// UserExists reports whether an account is registered for the phone number
	UserExists(ctx context.Context, phone string) (bool, error)
}
