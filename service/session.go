package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tiffinwaleofficial/student-app-sub003/core"
	"github.com/tiffinwaleofficial/student-app-sub003/metrics"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// SessionStore is the single source of truth for whether this installation
// is authenticated, and the only writer of the persisted credential.
type SessionStore struct {
	backend   ports.SessionBackend
	storage   ports.Storage
	validator *TokenValidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.RWMutex
	state    core.SessionState
	cred     *core.SessionCredential
	user     *core.UserSnapshot
	loading  bool
	initCh   chan struct{} // Non-nil while initialization is in flight
	logoutCh chan struct{} // Non-nil while a logout sequence is in flight
}

// NewSessionStore creates a session store in the uninitialized state
func NewSessionStore(backend ports.SessionBackend, storage ports.Storage, validator *TokenValidator, logger *slog.Logger, m *metrics.Metrics) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionStore{
		backend:   backend,
		storage:   storage,
		validator: validator,
		logger:    logger.With("component", "session"),
		metrics:   m,
		now:       time.Now,
		state:     core.SessionUninitialized,
	}
}

// State returns the current lifecycle state
func (s *SessionStore) State() core.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a validated credential is held
func (s *SessionStore) IsAuthenticated() bool {
	return s.State() == core.SessionAuthenticated
}

// IsInitialized reports whether the persisted credential has been loaded
func (s *SessionStore) IsInitialized() bool {
	return s.State() != core.SessionUninitialized
}

// IsLoading reports whether a login or initialization is in flight
func (s *SessionStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// User returns a copy of the cached profile, if any
func (s *SessionStore) User() (core.UserSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return core.UserSnapshot{}, false
	}
	return *s.user, true
}

// Credential returns a copy of the held credential, if any
func (s *SessionStore) Credential() (core.SessionCredential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return core.SessionCredential{}, false
	}
	return *s.cred, true
}

// Initialize loads the persisted credential on cold start. A valid
// credential yields an authenticated session; anything else clears storage
// and yields an unauthenticated one. Calling it again is a no-op, and
// concurrent callers wait for the first run to finish.
func (s *SessionStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != core.SessionUninitialized {
		s.mu.Unlock()
		return nil
	}
	if s.initCh != nil {
		ch := s.initCh
		s.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := make(chan struct{})
	s.initCh = ch
	s.loading = true
	s.mu.Unlock()

	state, cred, user := s.loadPersisted(ctx)

	s.mu.Lock()
	s.state = state
	s.cred = cred
	s.user = user
	s.loading = false
	s.initCh = nil
	s.mu.Unlock()
	close(ch)

	s.logger.Info("session initialized", "state", string(state))
	return nil
}

// loadPersisted derives the initial state from storage. Any credential that
// does not validate cleanly is cleared so half a session can never survive
// a restart.
func (s *SessionStore) loadPersisted(ctx context.Context) (core.SessionState, *core.SessionCredential, *core.UserSnapshot) {
	verdict := s.validator.Validate(ctx, "")
	if !verdict.Valid {
		if err := s.clearStorage(ctx); err != nil {
			s.logger.Warn("failed to clear stale credential", "error", err)
		}
		s.validator.InvalidateCache()
		return core.SessionUnauthenticated, nil, nil
	}

	access, err := s.storage.Get(ctx, core.StorageKeyAccessToken)
	if err != nil {
		s.logger.Warn("credential vanished during initialization", "error", err)
		return core.SessionUnauthenticated, nil, nil
	}

	refresh, err := s.storage.Get(ctx, core.StorageKeyRefreshToken)
	if err != nil {
		// The pair is written atomically, so a missing refresh token means
		// the stored state is not trustworthy
		s.logger.Warn("refresh token missing, discarding credential", "error", err)
		if cerr := s.clearStorage(ctx); cerr != nil {
			s.logger.Warn("failed to clear inconsistent credential", "error", cerr)
		}
		s.validator.InvalidateCache()
		return core.SessionUnauthenticated, nil, nil
	}

	var user *core.UserSnapshot
	if raw, err := s.storage.Get(ctx, core.StorageKeyUserSnapshot); err == nil {
		var snapshot core.UserSnapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err == nil {
			user = &snapshot
		} else {
			s.logger.Warn("discarding unreadable user snapshot", "error", err)
		}
	}

	return core.SessionAuthenticated, credentialFromTokens(access, refresh, s.now()), user
}

// Login exchanges a verified identity assertion for a session credential.
// An already authenticated session is logged out first; a fresh identity
// replaces the old session entirely.
func (s *SessionStore) Login(ctx context.Context, assertion core.Assertion) error {
	s.mu.Lock()
	switch s.state {
	case core.SessionUninitialized:
		s.mu.Unlock()
		if err := s.Initialize(ctx); err != nil {
			return err
		}
		s.mu.Lock()
	case core.SessionAuthenticated:
		s.mu.Unlock()
		if err := s.logout(ctx, "relogin"); err != nil {
			return err
		}
		s.mu.Lock()
	}
	s.loading = true
	s.mu.Unlock()
	defer s.setLoading(false)

	result, err := s.backend.Exchange(ctx, assertion)
	if err != nil {
		s.metrics.ObserveLogin(string(assertion.Method), metrics.ResultError)
		var berr *ports.BackendError
		if errors.As(err, &berr) {
			return fmt.Errorf("%w: %s", core.ErrLoginRejected, berr.Message)
		}
		return fmt.Errorf("login failed: %w", err)
	}

	if err := s.persistCredential(ctx, result); err != nil {
		s.metrics.ObserveLogin(string(assertion.Method), metrics.ResultError)
		return err
	}

	user := result.User
	s.mu.Lock()
	s.state = core.SessionAuthenticated
	s.cred = credentialFromTokens(result.AccessToken, result.RefreshToken, s.now())
	s.user = &user
	s.mu.Unlock()

	s.metrics.ObserveLogin(string(assertion.Method), metrics.ResultOK)
	s.logger.Info("login succeeded", "method", string(assertion.Method), "user", result.User.ID)
	return nil
}

// Refresh rotates the credential pair through the backend. A backend
// rejection means the session is no longer honored and is torn down
// locally; a network failure leaves the session as it was.
func (s *SessionStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	if s.state != core.SessionAuthenticated || s.cred == nil {
		s.mu.RUnlock()
		return core.ErrNotAuthenticated
	}
	refreshToken := s.cred.RefreshToken
	s.mu.RUnlock()

	result, err := s.backend.Refresh(ctx, refreshToken)
	if err != nil {
		var berr *ports.BackendError
		if errors.As(err, &berr) {
			s.logger.Warn("refresh rejected, tearing down session", "status", berr.Status)
			if lerr := s.logout(ctx, "refresh_rejected"); lerr != nil {
				return lerr
			}
			return fmt.Errorf("%w: %s", core.ErrRefreshRejected, berr.Message)
		}
		return fmt.Errorf("refresh failed: %w", err)
	}

	// A logout may have raced the backend call; do not resurrect a session
	// the user just left
	if !s.IsAuthenticated() {
		return core.ErrNotAuthenticated
	}

	if err := s.persistCredential(ctx, result); err != nil {
		return err
	}

	user := result.User
	s.mu.Lock()
	s.cred = credentialFromTokens(result.AccessToken, result.RefreshToken, s.now())
	s.user = &user
	s.mu.Unlock()

	s.logger.Info("credential refreshed", "user", result.User.ID)
	return nil
}

// Logout tears the session down. The remote revoke is best effort; the
// local transition to unauthenticated happens regardless, because losing
// connectivity must never trap a user in a session. Calling it while a
// logout is already running waits for that one instead of starting
// another, and calling it while unauthenticated is a no-op.
func (s *SessionStore) Logout(ctx context.Context) error {
	return s.logout(ctx, "user")
}

func (s *SessionStore) logout(ctx context.Context, trigger string) error {
	s.mu.Lock()
	if s.logoutCh != nil {
		ch := s.logoutCh
		s.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.state != core.SessionAuthenticated {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.logoutCh = ch
	refreshToken := ""
	if s.cred != nil {
		refreshToken = s.cred.RefreshToken
	}
	s.mu.Unlock()

	// The transition and the guard release are unconditional so a failure
	// mid sequence cannot leave the store stuck half logged out
	defer func() {
		s.mu.Lock()
		s.state = core.SessionUnauthenticated
		s.cred = nil
		s.user = nil
		s.logoutCh = nil
		s.mu.Unlock()
		close(ch)
	}()

	if refreshToken != "" {
		if err := s.backend.Revoke(ctx, refreshToken); err != nil {
			s.logger.Warn("remote revoke failed", "error", err)
		}
	}

	if err := s.clearStorage(ctx); err != nil {
		s.logger.Warn("failed to clear persisted credential", "error", err)
	}

	s.validator.InvalidateCache()

	s.metrics.ObserveLogout(trigger)
	s.logger.Info("logged out", "trigger", trigger)
	return nil
}

// persistCredential writes the token pair and the user snapshot as one
// atomic batch, then drops every cached verdict. The invalidation is
// ordered strictly after the write.
func (s *SessionStore) persistCredential(ctx context.Context, result ports.ExchangeResult) error {
	snapshot, err := json.Marshal(result.User)
	if err != nil {
		return fmt.Errorf("failed to encode user snapshot: %w", err)
	}

	if err := s.storage.SetMany(ctx, map[string]string{
		core.StorageKeyAccessToken:  result.AccessToken,
		core.StorageKeyRefreshToken: result.RefreshToken,
		core.StorageKeyUserSnapshot: string(snapshot),
	}); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.validator.InvalidateCache()
	return nil
}

func (s *SessionStore) clearStorage(ctx context.Context) error {
	return s.storage.Delete(ctx,
		core.StorageKeyAccessToken,
		core.StorageKeyRefreshToken,
		core.StorageKeyUserSnapshot,
	)
}

func (s *SessionStore) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// credentialFromTokens builds the in-memory credential, deriving the issue
// and expiry times from the token claims when they can be read
func credentialFromTokens(accessToken, refreshToken string, now time.Time) *core.SessionCredential {
	cred := &core.SessionCredential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     now,
	}

	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return cred
	}
	if iat, err := token.Claims.GetIssuedAt(); err == nil && iat != nil {
		cred.IssuedAt = iat.Time
	}
	if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
		cred.ExpiresAt = exp.Time
	}
	return cred
}
