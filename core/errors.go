package core

import (
	"errors"
)

var (
	// ErrInvalidPhoneFormat is returned when a phone number does not match the regional mobile pattern
	ErrInvalidPhoneFormat = errors.New("invalid phone number format")

	// ErrInvalidCodeFormat is returned when a passcode is not six digits
	ErrInvalidCodeFormat = errors.New("invalid passcode format")

	// ErrChallengeDispatchFailed is returned when the identity provider refuses to send a passcode
	ErrChallengeDispatchFailed = errors.New("failed to dispatch passcode challenge")

	// ErrChallengeAlreadyInFlight is returned when a dispatch is already outstanding for the same number
	ErrChallengeAlreadyInFlight = errors.New("challenge dispatch already in flight")

	// ErrChallengeSuperseded is returned when a provider response arrives for a replaced challenge
	ErrChallengeSuperseded = errors.New("challenge superseded by a newer one")

	// ErrNoChallengeInProgress is returned when confirm is called without a pending challenge
	ErrNoChallengeInProgress = errors.New("no challenge in progress")

	// ErrInvalidCode is returned when the provider rejects the submitted passcode
	ErrInvalidCode = errors.New("invalid passcode")

	// ErrCodeExpired is returned when the submitted passcode has expired
	ErrCodeExpired = errors.New("passcode has expired")

	// ErrProviderUnavailable is returned when the identity provider cannot be reached
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrLoginRejected is returned when the backend refuses to exchange an assertion
	ErrLoginRejected = errors.New("login rejected")

	// ErrRefreshRejected is returned when the backend refuses to rotate the credential
	ErrRefreshRejected = errors.New("refresh rejected")

	// ErrNotAuthenticated is returned when an operation requires an authenticated session
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrResendCooldown is returned when a resend is attempted before the cooldown has elapsed
	ErrResendCooldown = errors.New("resend attempted before cooldown elapsed")
)
