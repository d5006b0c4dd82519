package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// DefaultTimeout bounds a single provider round trip
const DefaultTimeout = 10 * time.Second

// HTTPProvider talks to the identity provider over its JSON API
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider client. A zero timeout falls back to
// DefaultTimeout.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	Phone string `json:"phone"`
}

type sendResponse struct {
	Handle string `json:"handle"`
}

type confirmRequest struct {
	Handle string `json:"handle"`
	Code   string `json:"code"`
}

type confirmResponse struct {
	Subject string `json:"subject"`
	Phone   string `json:"phone"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// SendPasscode dispatches a passcode to the phone number
func (p *HTTPProvider) SendPasscode(ctx context.Context, phone string) (ports.DispatchResult, error) {
	var resp sendResponse
	if err := p.post(ctx, "/otp/send", sendRequest{Phone: phone}, &resp); err != nil {
		return ports.DispatchResult{}, err
	}
	return ports.DispatchResult{Handle: resp.Handle}, nil
}

// ConfirmPasscode submits a passcode against a pending handle
func (p *HTTPProvider) ConfirmPasscode(ctx context.Context, handle, code string) (ports.ConfirmResult, error) {
	var resp confirmResponse
	if err := p.post(ctx, "/otp/confirm", confirmRequest{Handle: handle, Code: code}, &resp); err != nil {
		return ports.ConfirmResult{}, err
	}
	return ports.ConfirmResult{Subject: resp.Subject, Phone: resp.Phone}, nil
}

// post sends a JSON request and decodes either the expected payload or the
// provider's error taxonomy
func (p *HTTPProvider) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &ports.ProviderError{Code: ports.ProviderErrUnavailable, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ports.ProviderError{Code: ports.ProviderErrUnavailable, Reason: "malformed provider response"}
		}
		return nil
	}

	var apiErr errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)

	code := ports.ProviderErrorCode(apiErr.ErrorCode)
	if code == "" {
		code = codeForStatus(resp.StatusCode)
	}

	return &ports.ProviderError{Code: code, Reason: apiErr.Message}
}

// codeForStatus maps HTTP statuses to the provider taxonomy when the body
// carries no explicit code
func codeForStatus(status int) ports.ProviderErrorCode {
	switch status {
	case http.StatusTooManyRequests:
		return ports.ProviderErrTooManyRequests
	case http.StatusPaymentRequired, http.StatusForbidden:
		return ports.ProviderErrQuotaExceeded
	case http.StatusGone:
		return ports.ProviderErrCodeExpired
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return ports.ProviderErrInvalidCode
	default:
		return ports.ProviderErrUnavailable
	}
}
