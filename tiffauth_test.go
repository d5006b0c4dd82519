package tiffauth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	tiffauth "github.com/tiffinwaleofficial/student-app-sub003"
	"github.com/tiffinwaleofficial/student-app-sub003/adapters/backend"
	"github.com/tiffinwaleofficial/student-app-sub003/config"
	"github.com/tiffinwaleofficial/student-app-sub003/emulator"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startEmulator(t *testing.T) (*emulator.Emulator, string) {
	t.Helper()

	emu := emulator.New(emulator.Options{Logger: testLogger()})
	srv := httptest.NewServer(emu.Router())
	t.Cleanup(srv.Close)
	return emu, srv.URL
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPasscodeLoginAndSignaledExpiry(t *testing.T) {
	emu, url := startEmulator(t)

	cfg := config.Default()
	cfg.Provider.BaseURL = url
	cfg.Backend.BaseURL = url

	ctx := context.Background()
	sys, err := tiffauth.New(ctx, cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, sys.Start(ctx))
	t.Cleanup(func() { require.NoError(t, sys.Close()) })

	client := sys.Client()
	require.True(t, client.IsInitialized())
	require.False(t, client.IsAuthenticated())

	phone := "+919876543210"
	require.NoError(t, client.SendOTP(ctx, phone))

	code, ok := emu.LastCode(phone)
	require.True(t, ok, "emulator must have issued a passcode")
	require.NoError(t, client.VerifyOTP(ctx, code))

	require.True(t, client.IsAuthenticated())
	user, ok := client.User()
	require.True(t, ok)
	require.Equal(t, "Aarav Sharma", user.Name)

	verdict := client.Validate(ctx, "")
	require.True(t, verdict.Valid)

	// An unauthorized response anywhere in the app publishes this signal;
	// the coordinator must answer it with a logout.
	require.NoError(t, sys.Events().PublishSessionExpired(ctx, ports.SessionExpiredEvent{
		Reason: "unauthorized_response",
	}))
	waitFor(t, 2*time.Second, func() bool { return !client.IsAuthenticated() },
		"expiry signal never logged the session out")

	verdict = client.Validate(ctx, "")
	require.False(t, verdict.Valid)
	require.True(t, verdict.Expired)

	_, err = sys.Registry().Gather()
	require.NoError(t, err)
}

func TestSessionSurvivesRestart(t *testing.T) {
	_, url := startEmulator(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.Default()
	cfg.Provider.BaseURL = url
	cfg.Backend.BaseURL = url
	cfg.Storage.Driver = config.StorageDriverRedis
	cfg.Storage.RedisURL = "redis://" + mr.Addr()

	ctx := context.Background()

	first, err := tiffauth.New(ctx, cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.Client().Login(ctx, "+919876543210", "tiffin123"))
	require.True(t, first.Client().IsAuthenticated())
	require.NoError(t, first.Close())

	second, err := tiffauth.New(ctx, cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	t.Cleanup(func() { require.NoError(t, second.Close()) })

	require.True(t, second.Client().IsAuthenticated(), "persisted credential must survive a restart")
	user, ok := second.Client().User()
	require.True(t, ok)
	require.Equal(t, "Aarav Sharma", user.Name)
}

func TestRemoteRevocationPropagates(t *testing.T) {
	_, url := startEmulator(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.Default()
	cfg.Provider.BaseURL = url
	cfg.Backend.BaseURL = url
	cfg.Storage.Driver = config.StorageDriverRedis
	cfg.Storage.RedisURL = "redis://" + mr.Addr()
	cfg.Session.RevalidateInterval = config.Duration(25 * time.Millisecond)

	ctx := context.Background()
	sys, err := tiffauth.New(ctx, cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, sys.Start(ctx))
	t.Cleanup(func() { require.NoError(t, sys.Close()) })

	client := sys.Client()
	require.NoError(t, client.Login(ctx, "+919876543210", "tiffin123"))
	require.True(t, client.IsAuthenticated())

	// Revoke the session behind the client's back, as an admin would
	refreshToken, err := mr.Get("tiffauth:auth:refresh_token")
	require.NoError(t, err)
	require.NotEmpty(t, refreshToken)
	require.NoError(t, backend.NewHTTPBackend(url, 2*time.Second).Revoke(ctx, refreshToken))

	waitFor(t, 3*time.Second, func() bool { return !client.IsAuthenticated() },
		"remote revocation never propagated to the local session")
}

func TestBrokenConfigIsRefused(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.BaseURL = ""

	_, err := tiffauth.New(context.Background(), cfg, testLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}
