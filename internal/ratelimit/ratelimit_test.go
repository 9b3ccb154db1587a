package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUpToLimit(t *testing.T) {
	l := New(Config{Limit: 3, Window: time.Minute})
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.Allow("client", now) {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}
	if l.Allow("client", now) {
		t.Fatalf("expected request beyond limit to be denied")
	}
}

func TestWindowSlides(t *testing.T) {
	l := New(Config{Limit: 2, Window: time.Minute})
	now := time.Now()

	if !l.Allow("client", now) || !l.Allow("client", now.Add(time.Second)) {
		t.Fatalf("expected first two requests to be allowed")
	}
	if l.Allow("client", now.Add(2*time.Second)) {
		t.Fatalf("expected third request inside the window to be denied")
	}
	if !l.Allow("client", now.Add(time.Minute+time.Millisecond)) {
		t.Fatalf("expected request to be allowed once the first stamp slid out")
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	now := time.Now()

	if !l.Allow("a", now) {
		t.Fatalf("expected first identity to be allowed")
	}
	if !l.Allow("b", now) {
		t.Fatalf("expected second identity to have its own budget")
	}
	if l.Allow("a", now) {
		t.Fatalf("expected first identity to be exhausted")
	}
}

func TestDeniedRequestsAreNotRecorded(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	now := time.Now()

	l.Allow("client", now)
	for i := 0; i < 5; i++ {
		l.Allow("client", now.Add(time.Duration(i)*time.Second))
	}
	if !l.Allow("client", now.Add(time.Minute+time.Millisecond)) {
		t.Fatalf("expected denied attempts not to extend the window")
	}
}

func TestEvictionNeverResetsAnActiveIdentity(t *testing.T) {
	l := New(Config{Limit: 2, Window: time.Minute, MaxEntries: 2, EntryTTL: time.Hour})
	now := time.Now()

	if !l.Allow("a", now) || !l.Allow("b", now) {
		t.Fatalf("expected both identities to be allowed while filling the map")
	}
	if !l.Allow("a", now.Add(time.Second)) {
		t.Fatalf("expected second request from a full map to be allowed")
	}
	if l.Allow("a", now.Add(2*time.Second)) {
		t.Fatalf("expected the identity's own window to survive eviction pressure")
	}
}

func TestRemaining(t *testing.T) {
	l := New(Config{Limit: 2, Window: time.Minute})
	now := time.Now()

	if got := l.Remaining("client", now); got != 2 {
		t.Fatalf("expected 2 remaining for fresh identity, got %d", got)
	}
	l.Allow("client", now)
	if got := l.Remaining("client", now); got != 1 {
		t.Fatalf("expected 1 remaining after one request, got %d", got)
	}
	l.Allow("client", now)
	if got := l.Remaining("client", now); got != 0 {
		t.Fatalf("expected 0 remaining at the limit, got %d", got)
	}
}
