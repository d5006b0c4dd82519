package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

func newTestRedis(t *testing.T) *RedisStorage {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStorage(client, "")
}

func TestRedisStorageMissingKey(t *testing.T) {
	s := newTestRedis(t)

	_, err := s.Get(context.Background(), "absent")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStorageSetGet(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	if err := s.Set(ctx, "access_token", "tok-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(ctx, "access_token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "tok-1" {
		t.Fatalf("expected tok-1, got %q", got)
	}
}

func TestRedisStorageAppliesPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStorage(client, "sessions:")
	if err := s.Set(context.Background(), "access_token", "tok-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := mr.Get("sessions:access_token")
	if err != nil {
		t.Fatalf("expected prefixed key in redis: %v", err)
	}
	if raw != "tok-1" {
		t.Fatalf("expected tok-1 under prefixed key, got %q", raw)
	}
}

func TestRedisStorageSetMany(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	err := s.SetMany(ctx, map[string]string{
		"access_token":  "tok-1",
		"refresh_token": "ref-1",
		"user_snapshot": `{"id":"user-1"}`,
	})
	if err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	for key, want := range map[string]string{
		"access_token":  "tok-1",
		"refresh_token": "ref-1",
		"user_snapshot": `{"id":"user-1"}`,
	} {
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", key, err)
		}
		if got != want {
			t.Fatalf("Get(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestRedisStorageDelete(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	if err := s.SetMany(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	if err := s.Delete(ctx, "a", "b", "never-existed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := s.Get(ctx, "a"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected a to be gone, got %v", err)
	}
	if _, err := s.Get(ctx, "b"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected b to be gone, got %v", err)
	}
}

func TestRedisStorageDeleteNothing(t *testing.T) {
	s := newTestRedis(t)

	if err := s.Delete(context.Background()); err != nil {
		t.Fatalf("expected empty delete to be a no-op, got %v", err)
	}
}

func TestNewRedisStorageFromURL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := NewRedisStorageFromURL(context.Background(), "redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisStorageFromURL failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Set(context.Background(), "access_token", "tok-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(context.Background(), "access_token")
	if err != nil || got != "tok-1" {
		t.Fatalf("expected tok-1, got %q, %v", got, err)
	}
}

func TestNewRedisStorageFromURLRejectsBadURL(t *testing.T) {
	_, err := NewRedisStorageFromURL(context.Background(), "not a url", "")
	if err == nil {
		t.Fatal("expected an error for an unparsable url")
	}
}
