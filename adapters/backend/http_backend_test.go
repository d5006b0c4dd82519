package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tiffinwaleofficial/student-app-sub003/core"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

func TestExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/exchange", r.URL.Path)

		var body struct {
			Method  string `json:"method"`
			Subject string `json:"subject"`
			Phone   string `json:"phone"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "otp", body.Method)
		require.Equal(t, "user-77", body.Subject)
		require.Equal(t, "+919876543210", body.Phone)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"user": map[string]interface{}{
				"id":             "user-77",
				"phone":          "+919876543210",
				"name":           "Asha Iyer",
				"wallet_balance": "250.50",
				"verified":       true,
			},
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	result, err := b.Exchange(context.Background(), core.Assertion{
		Method:  core.AssertionMethodOTP,
		Subject: "user-77",
		Phone:   "+919876543210",
	})
	require.NoError(t, err)
	require.Equal(t, "access-1", result.AccessToken)
	require.Equal(t, "refresh-1", result.RefreshToken)
	require.Equal(t, "Asha Iyer", result.User.Name)
	require.True(t, result.User.WalletBalance.Equal(decimal.RequireFromString("250.50")))
	require.True(t, result.User.Verified)
}

func TestExchangeRejectionCarriesBackendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "account suspended for unpaid dues"})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	_, err := b.Exchange(context.Background(), core.Assertion{Method: core.AssertionMethodOTP})
	var backendErr *ports.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, http.StatusUnauthorized, backendErr.Status)
	require.Equal(t, "account suspended for unpaid dues", backendErr.Message)
}

func TestRejectionWithoutBodyUsesStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	_, err := b.Refresh(context.Background(), "refresh-1")
	var backendErr *ports.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, http.StatusServiceUnavailable, backendErr.Status)
	require.Equal(t, http.StatusText(http.StatusServiceUnavailable), backendErr.Message)
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh", r.URL.Path)

		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "refresh-1", body.RefreshToken)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"user":          map[string]interface{}{"id": "user-77"},
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	result, err := b.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "access-2", result.AccessToken)
	require.Equal(t, "refresh-2", result.RefreshToken)
}

func TestRevoke(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/logout", r.URL.Path)

		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body.RefreshToken

		json.NewEncoder(w).Encode(map[string]string{"message": "logged out"})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	require.NoError(t, b.Revoke(context.Background(), "refresh-1"))
	require.Equal(t, "refresh-1", got)
}

func TestValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]bool{"valid": true})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	valid, err := b.Validate(context.Background(), "access-1")
	require.NoError(t, err)
	require.True(t, valid)
}

func TestValidateUnauthorizedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	valid, err := b.Validate(context.Background(), "stale-token")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestValidateServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	_, err := b.Validate(context.Background(), "access-1")
	var backendErr *ports.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, http.StatusBadGateway, backendErr.Status)
}

func TestUserExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/exists", r.URL.Path)
		require.Equal(t, "+919876543210", r.URL.Query().Get("phone"))
		json.NewEncoder(w).Encode(map[string]bool{"exists": true})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	exists, err := b.UserExists(context.Background(), "+919876543210")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestNetworkFailureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)

	_, err := b.Exchange(context.Background(), core.Assertion{Method: core.AssertionMethodOTP})
	require.Error(t, err)

	var backendErr *ports.BackendError
	require.False(t, errors.As(err, &backendErr), "network failures must not look like rejections")
}
