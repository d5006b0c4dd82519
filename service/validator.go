package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tiffinwaleofficial/student-app-sub003/core"
	"github.com/tiffinwaleofficial/student-app-sub003/metrics"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// DefaultVerdictTTL bounds how long a validation verdict may be served from
// cache before it is re-derived from the stored credential
const DefaultVerdictTTL = 30 * time.Second

// scopeGlobal keys cache entries for calls without a scope
const scopeGlobal = "__global__"

type cachedVerdict struct {
	verdict  core.ValidationVerdict
	storedAt time.Time
}

// TokenValidator answers whether the stored credential can currently
// authorize a request. It never mutates session state, with one fail-safe
// exception: a credential that cannot be parsed is purged from storage so
// nothing downstream ever operates on it.
type TokenValidator struct {
	storage ports.Storage
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedVerdict
}

// NewTokenValidator creates a validator. A non-positive ttl falls back to
// DefaultVerdictTTL.
func NewTokenValidator(storage ports.Storage, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *TokenValidator {
	if ttl <= 0 {
		ttl = DefaultVerdictTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenValidator{
		storage: storage,
		ttl:     ttl,
		logger:  logger.With("component", "validator"),
		metrics: m,
		now:     time.Now,
		cache:   make(map[string]cachedVerdict),
	}
}

// Validate returns a verdict over the stored credential, served from cache
// within the TTL window. Every credential-derived outcome is cached before
// returning; a failed storage read is not, so a transient fault cannot be
// memoized as a verdict.
func (v *TokenValidator) Validate(ctx context.Context, scopeKey string) core.ValidationVerdict {
	key := scopeKey
	if key == "" {
		key = scopeGlobal
	}

	v.mu.Lock()
	if entry, ok := v.cache[key]; ok && v.now().Sub(entry.storedAt) < v.ttl {
		v.mu.Unlock()
		v.metrics.ObserveVerdictCache("hit")
		return entry.verdict
	}
	v.mu.Unlock()
	v.metrics.ObserveVerdictCache("miss")

	raw, err := v.storage.Get(ctx, core.StorageKeyAccessToken)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			verdict := core.ValidationVerdict{
				Expired: true,
				Reason:  core.ReasonNoCredential,
			}
			v.put(key, verdict)
			return verdict
		}

		v.logger.Warn("credential read failed", "error", err)
		return core.ValidationVerdict{
			Expired: true,
			Reason:  core.ReasonStorageUnavailable,
		}
	}

	verdict := v.deriveVerdict(raw)

	if verdict.Reason == core.ReasonMalformedCredential {
		// Fail safe: an unparseable credential is cleared together with
		// everything persisted beside it
		if err := v.storage.Delete(ctx,
			core.StorageKeyAccessToken,
			core.StorageKeyRefreshToken,
			core.StorageKeyUserSnapshot,
		); err != nil {
			v.logger.Warn("failed to purge malformed credential", "error", err)
		} else {
			v.logger.Warn("purged malformed credential")
		}
	}

	v.put(key, verdict)
	return verdict
}

// InvalidateCache drops every cached verdict. Called after each credential
// mutation, strictly after the mutation itself, so a stale "valid" can never
// outlive the credential it described.
func (v *TokenValidator) InvalidateCache() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cache = make(map[string]cachedVerdict)
}

func (v *TokenValidator) put(key string, verdict core.ValidationVerdict) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cache[key] = cachedVerdict{verdict: verdict, storedAt: v.now()}
}

// deriveVerdict judges a raw credential string. Parse failures never
// escape: anything structurally broken is malformed, anything whose expiry
// cannot be read is expired.
func (v *TokenValidator) deriveVerdict(raw string) core.ValidationVerdict {
	if strings.Count(raw, ".") != 2 {
		return core.ValidationVerdict{
			Expired: true,
			Reason:  core.ReasonMalformedCredential,
		}
	}

	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return core.ValidationVerdict{
			Expired: true,
			Reason:  core.ReasonMalformedCredential,
		}
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return core.ValidationVerdict{
			Expired:      true,
			NeedsRefresh: true,
		}
	}

	if !exp.Time.After(v.now()) {
		return core.ValidationVerdict{
			Expired:      true,
			NeedsRefresh: true,
		}
	}

	return core.ValidationVerdict{Valid: true}
}
