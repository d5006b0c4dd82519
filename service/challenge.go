package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tiffinwaleofficial/student-app-sub003/core"
	"github.com/tiffinwaleofficial/student-app-sub003/metrics"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// BypassConfig gates the test number shortcut. The bypass is active only
// when at least one allow-listed number and a sentinel code are configured;
// with an empty list the provider path is the only path.
type BypassConfig struct {
	Numbers []string // Allow-listed phone numbers, any accepted input format
	Code    string   // Fixed sentinel passcode for allow-listed numbers
}

// ChallengeService drives a phone number ownership proof to completion.
// It holds at most one pending challenge per installation; starting a new
// one replaces the previous handle.
type ChallengeService struct {
	provider ports.ChallengeProvider
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	bypassNumbers map[string]struct{}
	bypassCode    string

	mu            sync.Mutex
	pending       *core.PhoneChallenge
	dispatchPhone string // Number with a provider dispatch currently on the wire
	dispatchGen   uint64 // Identity of the outstanding dispatch
	gen           uint64
}

// NewChallengeService creates a challenge service
func NewChallengeService(provider ports.ChallengeProvider, bypass BypassConfig, logger *slog.Logger, m *metrics.Metrics) *ChallengeService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "challenge")

	c := &ChallengeService{
		provider: provider,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}

	if len(bypass.Numbers) > 0 && core.IsValidPasscode(bypass.Code) {
		c.bypassNumbers = make(map[string]struct{}, len(bypass.Numbers))
		c.bypassCode = bypass.Code
		for _, raw := range bypass.Numbers {
			normalized, err := core.NormalizePhone(raw)
			if err != nil {
				logger.Warn("ignoring invalid bypass number", "number", maskPhone(raw))
				continue
			}
			c.bypassNumbers[normalized] = struct{}{}
		}
	}

	return c
}

// State reports whether a challenge is pending
func (c *ChallengeService) State() core.ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return core.ChallengePending
	}
	return core.ChallengeIdle
}

// Send validates the phone number, dispatches a passcode through the
// identity provider and records the pending handle. Allow-listed test
// numbers skip the provider and receive a locally manufactured handle.
func (c *ChallengeService) Send(ctx context.Context, phoneNumber string) error {
	normalized, err := core.NormalizePhone(phoneNumber)
	if err != nil {
		c.metrics.ObserveOTPSend("invalid_number")
		return err
	}

	if c.isBypassNumber(normalized) {
		c.installBypassChallenge(normalized)
		c.metrics.ObserveOTPSend("bypass")
		return nil
	}

	gen, err := c.beginDispatch(normalized)
	if err != nil {
		c.metrics.ObserveOTPSend("in_flight")
		return err
	}

	result, dispatchErr := c.provider.SendPasscode(ctx, normalized)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dispatchGen != gen {
		// A newer dispatch took over while this one was on the wire.
		// Its response no longer means anything.
		c.logger.Debug("discarding superseded dispatch response", "phone", maskPhone(normalized))
		c.metrics.ObserveOTPSend("superseded")
		return core.ErrChallengeSuperseded
	}
	c.dispatchPhone = ""

	if dispatchErr != nil {
		c.metrics.ObserveOTPSend(metrics.ResultError)
		c.logger.Warn("passcode dispatch failed", "phone", maskPhone(normalized), "error", dispatchErr)
		return fmt.Errorf("%w: %w", core.ErrChallengeDispatchFailed, dispatchErr)
	}

	c.pending = &core.PhoneChallenge{
		Phone:     normalized,
		Handle:    result.Handle,
		CreatedAt: c.now(),
	}
	c.metrics.ObserveOTPSend(metrics.ResultOK)
	c.logger.Info("passcode dispatched", "phone", maskPhone(normalized))
	return nil
}

// Confirm submits the passcode for the pending challenge. On success it
// returns the verified identity assertion and clears the challenge. A wrong
// code keeps the challenge for another attempt; an expired code clears it
// so the caller must resend.
func (c *ChallengeService) Confirm(ctx context.Context, code string) (core.Assertion, error) {
	if !core.IsValidPasscode(code) {
		c.metrics.ObserveOTPConfirm("invalid_format")
		return core.Assertion{}, core.ErrInvalidCodeFormat
	}

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		c.metrics.ObserveOTPConfirm("no_challenge")
		return core.Assertion{}, core.ErrNoChallengeInProgress
	}
	challenge := *c.pending

	if challenge.Bypass {
		defer c.mu.Unlock()
		if code != c.bypassCode {
			c.metrics.ObserveOTPConfirm("invalid_code")
			return core.Assertion{}, core.ErrInvalidCode
		}
		c.pending = nil
		c.metrics.ObserveOTPConfirm("bypass")
		return core.Assertion{
			Method:  core.AssertionMethodOTP,
			Subject: bypassSubject(challenge.Phone),
			Phone:   challenge.Phone,
		}, nil
	}
	c.mu.Unlock()

	result, confirmErr := c.provider.ConfirmPasscode(ctx, challenge.Handle, code)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || c.pending.Handle != challenge.Handle {
		// The challenge was replaced or consumed while the confirm was on
		// the wire. The provider's answer belongs to a dead handle.
		c.metrics.ObserveOTPConfirm("superseded")
		return core.Assertion{}, core.ErrChallengeSuperseded
	}

	if confirmErr != nil {
		return core.Assertion{}, c.mapConfirmError(confirmErr)
	}

	c.pending = nil
	c.metrics.ObserveOTPConfirm(metrics.ResultOK)
	c.logger.Info("passcode confirmed", "phone", maskPhone(challenge.Phone))
	return core.Assertion{
		Method:  core.AssertionMethodOTP,
		Subject: result.Subject,
		Phone:   result.Phone,
	}, nil
}

// Resend discards the pending challenge unconditionally and dispatches a
// fresh one. The cooldown between resends is the caller's responsibility;
// this method only refuses to race an outstanding dispatch for the same
// number.
func (c *ChallengeService) Resend(ctx context.Context, phoneNumber string) error {
	normalized, err := core.NormalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.dispatchPhone == normalized {
		c.mu.Unlock()
		return core.ErrChallengeAlreadyInFlight
	}
	// The previous challenge is dead regardless of what happens next
	c.pending = nil
	c.mu.Unlock()

	return c.Send(ctx, normalized)
}

// beginDispatch claims the dispatch slot for a number. The check and the
// claim happen under one lock acquisition.
func (c *ChallengeService) beginDispatch(phone string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dispatchPhone == phone {
		return 0, core.ErrChallengeAlreadyInFlight
	}

	c.gen++
	c.dispatchGen = c.gen
	c.dispatchPhone = phone
	return c.gen, nil
}

// mapConfirmError translates the provider taxonomy into the service's
// failure set. Must be called with the lock held: an expired code clears
// the pending challenge.
func (c *ChallengeService) mapConfirmError(err error) error {
	var perr *ports.ProviderError
	if errors.As(err, &perr) {
		switch perr.Code {
		case ports.ProviderErrInvalidCode:
			c.metrics.ObserveOTPConfirm("invalid_code")
			return core.ErrInvalidCode
		case ports.ProviderErrCodeExpired:
			c.pending = nil
			c.metrics.ObserveOTPConfirm("code_expired")
			return core.ErrCodeExpired
		}
	}

	c.metrics.ObserveOTPConfirm(metrics.ResultError)
	c.logger.Warn("passcode confirm failed", "error", err)
	return fmt.Errorf("%w: %w", core.ErrProviderUnavailable, err)
}

func (c *ChallengeService) isBypassNumber(normalized string) bool {
	_, ok := c.bypassNumbers[normalized]
	return ok
}

// installBypassChallenge manufactures a deterministic local challenge for an
// allow-listed test number without touching the provider
func (c *ChallengeService) installBypassChallenge(normalized string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.dispatchGen = c.gen
	c.dispatchPhone = ""
	c.pending = &core.PhoneChallenge{
		Phone:     normalized,
		Handle:    "local:" + strings.TrimPrefix(normalized, "+"),
		Bypass:    true,
		CreatedAt: c.now(),
	}
	c.logger.Info("bypass challenge created", "phone", maskPhone(normalized))
}

func bypassSubject(normalized string) string {
	return "test:" + strings.TrimPrefix(normalized, "+")
}

// maskPhone hides all but the last four digits in log output
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
