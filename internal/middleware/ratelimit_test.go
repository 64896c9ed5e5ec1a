package middleware

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Max:    5,
		Window: time.Minute,
		KeyFn:  KeyByIP,
	})

	for i := 0; i < 5; i++ {
		if !rl.Allow("test-ip") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_BlocksAfterMax(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Max:    3,
		Window: time.Minute,
		KeyFn:  KeyByIP,
	})

	for i := 0; i < 3; i++ {
		rl.Allow("test-ip")
	}

	if rl.Allow("test-ip") {
		t.Fatal("4th request should be blocked")
	}
}

func TestRateLimiter_DifferentKeysIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Max:    2,
		Window: time.Minute,
		KeyFn:  KeyByIP,
	})

	rl.Allow("ip-a")
	rl.Allow("ip-a")

	// ip-a is exhausted
	if rl.Allow("ip-a") {
		t.Fatal("ip-a should be blocked")
	}

	// ip-b should still be allowed
	if !rl.Allow("ip-b") {
		t.Fatal("ip-b should be allowed (independent key)")
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Max:    2,
		Window: 50 * time.Millisecond,
		KeyFn:  KeyByIP,
	})

	rl.Allow("test")
	rl.Allow("test")

	if rl.Allow("test") {
		t.Fatal("should be blocked within window")
	}

	// Wait for window to expire
	time.Sleep(60 * time.Millisecond)

	if !rl.Allow("test") {
		t.Fatal("should be allowed after window reset")
	}
}

func TestCallerKey_PrefersAuthenticatedUID(t *testing.T) {
	// Two admins behind one NAT must never share a budget once
	// authenticated.
	a := callerKey("admin-1", "10.0.0.1", "curl/8")
	b := callerKey("admin-2", "10.0.0.1", "curl/8")
	if a == b {
		t.Fatalf("authenticated callers share key %q", a)
	}
	if a != "uid:admin-1" {
		t.Errorf("key = %q, want uid:admin-1", a)
	}

	// Anonymous callers fall back to IP + user-agent fingerprint.
	anon := callerKey("", "10.0.0.1", "curl/8")
	if anon == a || anon == b {
		t.Error("anonymous key must not collide with uid keys")
	}
	if anon != callerKey("", "10.0.0.1", "curl/8") {
		t.Error("anonymous key must be stable for the same caller")
	}
}

func TestRateLimiter_ReadConfig(t *testing.T) {
	rl := NewReadRateLimiter()
	for i := 0; i < 120; i++ {
		if !rl.Allow("uid:abc123") {
			t.Fatalf("read request %d should be allowed (max 120)", i+1)
		}
	}
	if rl.Allow("uid:abc123") {
		t.Fatal("121st read should be blocked")
	}
}

func TestRateLimiter_WriteConfig(t *testing.T) {
	rl := NewWriteRateLimiter()
	for i := 0; i < 30; i++ {
		if !rl.Allow("uid:abc123") {
			t.Fatalf("write request %d should be allowed (max 30)", i+1)
		}
	}
	if rl.Allow("uid:abc123") {
		t.Fatal("31st write should be blocked")
	}
}

func TestRateLimiter_VoteConfig(t *testing.T) {
	rl := NewVoteRateLimiter()
	for i := 0; i < 10; i++ {
		if !rl.Allow("ip:127.0.0.1") {
			t.Fatalf("vote request %d should be allowed (max 10)", i+1)
		}
	}
	if rl.Allow("ip:127.0.0.1") {
		t.Fatal("11th vote should be blocked")
	}
}

func TestRateLimiter_AdminConfig(t *testing.T) {
	rl := NewAdminRateLimiter()
	for i := 0; i < 20; i++ {
		if !rl.Allow("uid:admin1") {
			t.Fatalf("admin request %d should be allowed (max 20)", i+1)
		}
	}
	if rl.Allow("uid:admin1") {
		t.Fatal("21st admin request should be blocked")
	}
}
