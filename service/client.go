package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tiffinwaleofficial/student-app-sub003/core"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// DefaultResendCooldown is the fixed wait between passcode resends for the
// same number
const DefaultResendCooldown = 30 * time.Second

// Client is the surface the rest of the application talks to. Every method
// returns an error value; nothing panics across this boundary.
type Client struct {
	challenges *ChallengeService
	validator  *TokenValidator
	sessions   *SessionStore
	backend    ports.SessionBackend
	cooldown   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	lastSend map[string]time.Time
}

// NewClient creates the facade. A non-positive cooldown falls back to
// DefaultResendCooldown.
func NewClient(challenges *ChallengeService, validator *TokenValidator, sessions *SessionStore, backend ports.SessionBackend, cooldown time.Duration, logger *slog.Logger) *Client {
	if cooldown <= 0 {
		cooldown = DefaultResendCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		challenges: challenges,
		validator:  validator,
		sessions:   sessions,
		backend:    backend,
		cooldown:   cooldown,
		logger:     logger.With("component", "client"),
		now:        time.Now,
		lastSend:   make(map[string]time.Time),
	}
}

// Initialize loads the persisted session on cold start
func (c *Client) Initialize(ctx context.Context) error {
	return c.sessions.Initialize(ctx)
}

// IsAuthenticated reports whether a validated credential is held
func (c *Client) IsAuthenticated() bool {
	return c.sessions.IsAuthenticated()
}

// IsInitialized reports whether the cold start load has run
func (c *Client) IsInitialized() bool {
	return c.sessions.IsInitialized()
}

// IsLoading reports whether a login or initialization is in flight
func (c *Client) IsLoading() bool {
	return c.sessions.IsLoading()
}

// User returns the cached profile, if any
func (c *Client) User() (core.UserSnapshot, bool) {
	return c.sessions.User()
}

// Validate returns the current verdict over the stored credential
func (c *Client) Validate(ctx context.Context, scopeKey string) core.ValidationVerdict {
	return c.validator.Validate(ctx, scopeKey)
}

// SendOTP dispatches a passcode to the phone number and starts the resend
// cooldown for it
func (c *Client) SendOTP(ctx context.Context, phoneNumber string) error {
	normalized, err := core.NormalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	if err := c.challenges.Send(ctx, normalized); err != nil {
		return err
	}

	c.recordSend(normalized)
	return nil
}

// VerifyOTP confirms the pending passcode and, on success, logs the
// verified identity in
func (c *Client) VerifyOTP(ctx context.Context, code string) error {
	assertion, err := c.challenges.Confirm(ctx, code)
	if err != nil {
		return err
	}

	return c.sessions.Login(ctx, assertion)
}

// ResendOTP discards the pending challenge and dispatches a fresh passcode.
// Attempts inside the cooldown window are refused before any provider call.
func (c *Client) ResendOTP(ctx context.Context, phoneNumber string) error {
	normalized, err := core.NormalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	if remaining := c.cooldownRemaining(normalized); remaining > 0 {
		return fmt.Errorf("%w: retry in %s", core.ErrResendCooldown, remaining.Round(time.Second))
	}

	if err := c.challenges.Resend(ctx, normalized); err != nil {
		return err
	}

	c.recordSend(normalized)
	return nil
}

// Login authenticates with a phone number and password
func (c *Client) Login(ctx context.Context, phoneNumber, password string) error {
	normalized, err := core.NormalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	return c.sessions.Login(ctx, core.Assertion{
		Method: core.AssertionMethodPassword,
		Phone:  normalized,
		Secret: password,
	})
}

// LoginWithPhoneAssertion authenticates with an assertion obtained outside
// this client, such as one minted by a separate verification flow
func (c *Client) LoginWithPhoneAssertion(ctx context.Context, assertion core.Assertion) error {
	return c.sessions.Login(ctx, assertion)
}

// Logout tears the session down
func (c *Client) Logout(ctx context.Context) error {
	return c.sessions.Logout(ctx)
}

// Refresh rotates the credential pair
func (c *Client) Refresh(ctx context.Context) error {
	return c.sessions.Refresh(ctx)
}

// CheckUserExists reports whether an account is registered for the number
func (c *Client) CheckUserExists(ctx context.Context, phoneNumber string) (bool, error) {
	normalized, err := core.NormalizePhone(phoneNumber)
	if err != nil {
		return false, err
	}

	return c.backend.UserExists(ctx, normalized)
}

func (c *Client) recordSend(normalized string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSend[normalized] = c.now()
}

func (c *Client) cooldownRemaining(normalized string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastSend[normalized]
	if !ok {
		return 0
	}
	elapsed := c.now().Sub(last)
	if elapsed >= c.cooldown {
		return 0
	}
	return c.cooldown - elapsed
}
