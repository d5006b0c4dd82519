package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []ports.SessionExpiredEvent
}

func (p *capturePublisher) PublishSessionExpired(ctx context.Context, event ports.SessionExpiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *capturePublisher) last(t *testing.T) ports.SessionExpiredEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("expected at least one published event")
	}
	return p.events[len(p.events)-1]
}

func TestRevalidatorSignalsExpiryOnExplicitRejection(t *testing.T) {
	store, backend, _, _ := newTestSession(t)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := store.Login(context.Background(), otpAssertion()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	backend.validateFunc = func(string) (bool, error) { return false, nil }

	pub := &capturePublisher{}
	r := NewRevalidator(store, backend, pub, 10*time.Millisecond, testLogger(), nil)
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return pub.count() >= 1 }, "no expiry event published")

	if got := pub.last(t).Reason; got != "remote_validation" {
		t.Fatalf("expected remote_validation reason, got %q", got)
	}
}

func TestRevalidatorIgnoresNetworkFailures(t *testing.T) {
	store, backend, _, _ := newTestSession(t)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := store.Login(context.Background(), otpAssertion()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	var mu sync.Mutex
	checks := 0
	backend.validateFunc = func(string) (bool, error) {
		mu.Lock()
		checks++
		mu.Unlock()
		return false, errors.New("timeout")
	}

	pub := &capturePublisher{}
	r := NewRevalidator(store, backend, pub, 10*time.Millisecond, testLogger(), nil)
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return checks >= 3
	}, "revalidator never ran")

	if pub.count() != 0 {
		t.Fatalf("expected no expiry events for network failures, got %d", pub.count())
	}
	if !store.IsAuthenticated() {
		t.Fatal("expected the session to survive advisory failures")
	}
}

func TestRevalidatorSkipsUnauthenticatedSessions(t *testing.T) {
	store, backend, _, _ := newTestSession(t)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var mu sync.Mutex
	checks := 0
	backend.validateFunc = func(string) (bool, error) {
		mu.Lock()
		checks++
		mu.Unlock()
		return true, nil
	}

	pub := &capturePublisher{}
	r := NewRevalidator(store, backend, pub, 10*time.Millisecond, testLogger(), nil)
	r.Start(context.Background())
	defer r.Stop()

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if checks != 0 {
		t.Fatalf("expected no backend checks without a session, got %d", checks)
	}
}

func TestRevalidatorStopEndsTheLoop(t *testing.T) {
	store, backend, _, _ := newTestSession(t)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := store.Login(context.Background(), otpAssertion()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	var mu sync.Mutex
	checks := 0
	backend.validateFunc = func(string) (bool, error) {
		mu.Lock()
		checks++
		mu.Unlock()
		return true, nil
	}

	r := NewRevalidator(store, backend, &capturePublisher{}, 10*time.Millisecond, testLogger(), nil)
	r.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return checks >= 1
	}, "revalidator never ran")
	r.Stop()

	mu.Lock()
	after := checks
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if checks != after {
		t.Fatalf("expected no checks after Stop, got %d more", checks-after)
	}
}
