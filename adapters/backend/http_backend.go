package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tiffinwaleofficial/student-app-sub003/core"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// DefaultTimeout bounds a single backend round trip
const DefaultTimeout = 15 * time.Second

// HTTPBackend talks to the session API over its JSON contract
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend client. A zero timeout falls back to
// DefaultTimeout.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type exchangeRequest struct {
	Method  string `json:"method"`
	Subject string `json:"subject,omitempty"`
	Phone   string `json:"phone"`
	Secret  string `json:"secret,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	User         core.UserSnapshot `json:"user"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Exchange trades a verified identity assertion for a session credential
func (b *HTTPBackend) Exchange(ctx context.Context, assertion core.Assertion) (ports.ExchangeResult, error) {
	req := exchangeRequest{
		Method:  string(assertion.Method),
		Subject: assertion.Subject,
		Phone:   assertion.Phone,
		Secret:  assertion.Secret,
	}

	var resp tokenResponse
	if err := b.post(ctx, "/auth/exchange", req, &resp); err != nil {
		return ports.ExchangeResult{}, err
	}

	return ports.ExchangeResult{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}, nil
}

// Refresh trades a refresh token for a fresh credential pair
func (b *HTTPBackend) Refresh(ctx context.Context, refreshToken string) (ports.ExchangeResult, error) {
	var resp tokenResponse
	if err := b.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return ports.ExchangeResult{}, err
	}

	return ports.ExchangeResult{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}, nil
}

// Revoke invalidates the session server side
func (b *HTTPBackend) Revoke(ctx context.Context, refreshToken string) error {
	return b.post(ctx, "/auth/logout", revokeRequest{RefreshToken: refreshToken}, nil)
}

// Validate asks the backend whether an access token is still honored. A 401
// response is an explicit "no", not a transport failure.
func (b *HTTPBackend) Validate(ctx context.Context, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/auth/validate", nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
		return body.Valid, nil
	default:
		return false, b.asBackendError(resp)
	}
}

// UserExists reports whether an account is registered for the phone number
func (b *HTTPBackend) UserExists(ctx context.Context, phone string) (bool, error) {
	endpoint := b.baseURL + "/auth/exists?phone=" + url.QueryEscape(phone)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, b.asBackendError(resp)
	}

	var body existsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return body.Exists, nil
}

// post sends a JSON request and decodes the expected payload. A nil out
// discards the response body.
func (b *HTTPBackend) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.asBackendError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// asBackendError turns a non-2xx response into a typed rejection carrying
// the backend's own message
func (b *HTTPBackend) asBackendError(resp *http.Response) error {
	var body errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	message := body.Error
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &ports.BackendError{Status: resp.StatusCode, Message: message}
}
