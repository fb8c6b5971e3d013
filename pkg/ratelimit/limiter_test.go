package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, time.Second)

	// Test initial capacity
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	// Test exhaustion
	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// Test refill after waiting
	time.Sleep(time.Second + 100*time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected tokens to be refilled after waiting")
	}

	// Test reset
	tb.tokens = 0
	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestPerAccountIsolation(t *testing.T) {
	p := NewPerAccount(2, time.Minute)

	a := p.Get("alice")
	b := p.Get("bob")

	// Exhaust alice's budget
	if !a.Allow() || !a.Allow() {
		t.Fatal("Expected alice to have an initial budget of 2")
	}
	if a.Allow() {
		t.Error("Expected alice to be exhausted")
	}

	// Bob must be unaffected
	if !b.Allow() {
		t.Error("Expected bob to have an untouched budget")
	}
}

func TestPerAccountReturnsSameLimiter(t *testing.T) {
	p := NewPerAccount(1, time.Minute)

	first := p.Get("alice")
	first.Allow()

	// Second lookup must observe the consumed token
	if p.Get("alice").Allow() {
		t.Error("Expected the same limiter instance for repeated lookups")
	}

	p.Forget("alice")
	if !p.Get("alice").Allow() {
		t.Error("Expected a fresh limiter after Forget")
	}
}
