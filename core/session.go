package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionState represents the lifecycle state of the installation's session
type SessionState string

const (
	// SessionUninitialized is the state before the persisted credential has been loaded
	SessionUninitialized SessionState = "uninitialized"

	// SessionUnauthenticated is the state when no usable credential exists
	SessionUnauthenticated SessionState = "unauthenticated"

	// SessionAuthenticated is the state when a validated credential is held
	SessionAuthenticated SessionState = "authenticated"
)

// ChallengeState represents the lifecycle state of a phone verification attempt
type ChallengeState string

const (
	// ChallengeIdle means no verification attempt is pending
	ChallengeIdle ChallengeState = "idle"

	// ChallengePending means a passcode has been dispatched and awaits confirmation
	ChallengePending ChallengeState = "pending"
)

// Storage keys for the persisted session credential. The token pair and the
// user snapshot are always written and cleared together.
const (
	StorageKeyAccessToken  = "auth:access_token"
	StorageKeyRefreshToken = "auth:refresh_token"
	StorageKeyUserSnapshot = "auth:user_snapshot"
)

// PhoneChallenge tracks a single phone verification attempt between dispatch
// and confirmation. The handle ties a confirm call to the dispatch that
// produced it; a replaced challenge keeps its handle but loses its relevance.
type PhoneChallenge struct {
	Phone     string    // Normalized phone number the passcode was sent to
	Handle    string    // Opaque handle issued by the identity provider
	Bypass    bool      // True when the challenge was manufactured locally for a test number
	CreatedAt time.Time // When the passcode was dispatched
}

// SessionCredential is the locally persisted bearer token pair that
// represents an authenticated installation.
type SessionCredential struct {
	AccessToken  string    // Opaque bearer string with an embedded expiry claim
	RefreshToken string    // Opaque string exchanged for a fresh pair
	IssuedAt     time.Time // When the pair was obtained
	ExpiresAt    time.Time // Expiry derived from the access token claim
}

// AssertionMethod tags how an identity assertion was obtained
type AssertionMethod string

const (
	// AssertionMethodOTP marks an assertion produced by a confirmed phone passcode
	AssertionMethodOTP AssertionMethod = "otp"

	// AssertionMethodPassword marks an assertion carrying a phone and password pair
	AssertionMethodPassword AssertionMethod = "password"
)

// Assertion is a verified or verifiable identity claim handed to the session
// layer in exchange for a credential. OTP assertions carry a provider-issued
// subject; password assertions carry the secret for the backend to check.
type Assertion struct {
	Method  AssertionMethod
	Subject string // Provider-issued unique subject id (OTP method)
	Phone   string // Normalized phone number
	Secret  string // Password (password method only)
}

// UserSnapshot is the cached profile persisted beside the token pair so the
// app can render the account screen before any network round trip.
type UserSnapshot struct {
	ID            string          `json:"id"`
	Phone         string          `json:"phone"`
	Name          string          `json:"name"`
	Email         string          `json:"email,omitempty"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	MealPlan      string          `json:"meal_plan,omitempty"`
	Verified      bool            `json:"verified"`
}

// VerdictReason names why a credential failed validation
type VerdictReason string

const (
	// ReasonNoCredential means storage held no credential at all
	ReasonNoCredential VerdictReason = "no_credential"

	// ReasonMalformedCredential means the stored credential could not be parsed
	ReasonMalformedCredential VerdictReason = "malformed_credential"

	// ReasonStorageUnavailable means the storage read itself failed
	ReasonStorageUnavailable VerdictReason = "storage_unavailable"
)

// ValidationVerdict is a pure judgment over a credential snapshot. Verdicts
// are plain comparable values so cached and fresh results can be checked for
// equality.
type ValidationVerdict struct {
	Valid        bool
	Expired      bool
	NeedsRefresh bool
	Reason       VerdictReason
}
