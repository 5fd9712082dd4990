package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testAbusePolicy() AuthAbusePolicy {
	return AuthAbusePolicy{
		FreeAttempts: 1,
		BaseDelay:    time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		ResetWindow:  time.Minute,
	}
}

func TestInMemoryAuthAbuseGuardExponentialCooldown(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(testAbusePolicy())
	ctx := context.Background()

	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.1"); err != nil || retry != 0 {
		t.Fatalf("expected no cooldown initially, got retry=%v err=%v", retry, err)
	}
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, w := range want {
		got, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.1")
		if err != nil {
			t.Fatalf("register failure #%d: %v", i+1, err)
		}
		if got != w {
			t.Fatalf("failure #%d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestInMemoryAuthAbuseGuardResetClearsCooldown(t *testing.T) {
	policy := testAbusePolicy()
	policy.FreeAttempts = 0
	guard := NewInMemoryAuthAbuseGuard(policy)
	ctx := context.Background()
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E200", "10.0.0.2")
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "E200", "10.0.0.2"); retry <= 0 {
		t.Fatal("expected active cooldown before reset")
	}
	if err := guard.Reset(ctx, AuthAbuseScopeLogin, "E200", "10.0.0.2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "E200", "10.0.0.2"); retry != 0 {
		t.Fatalf("expected cooldown to be cleared, got %v", retry)
	}
}

func TestInMemoryAuthAbuseGuardDimensionAndScopeIsolation(t *testing.T) {
	policy := testAbusePolicy()
	policy.FreeAttempts = 0
	guard := NewInMemoryAuthAbuseGuard(policy)
	ctx := context.Background()
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E300", "10.0.0.3")

	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "e300", "10.0.0.9"); retry <= 0 {
		t.Fatal("expected identity dimension to trigger cooldown")
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "E999", "10.0.0.3"); retry <= 0 {
		t.Fatal("expected ip dimension to trigger cooldown")
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "E999", "10.0.0.9"); retry != 0 {
		t.Fatalf("expected unrelated identity+ip to be unaffected, got %v", retry)
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeAdminLogin, "E300", "10.0.0.3"); retry != 0 {
		t.Fatalf("expected admin scope to be unaffected, got %v", retry)
	}
}

func TestInMemoryAuthAbuseGuardResetWindowExpires(t *testing.T) {
	policy := testAbusePolicy()
	policy.FreeAttempts = 0
	guard := NewInMemoryAuthAbuseGuard(policy)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return clock }
	ctx := context.Background()

	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E400", "10.0.0.4")
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E400", "10.0.0.4")
	clock = clock.Add(2 * time.Minute)
	got, _ := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E400", "10.0.0.4")
	if got != time.Second {
		t.Fatalf("expected counter reset after window, got %v", got)
	}
}

func TestRedisAuthAbuseGuardMatchesInMemoryPolicy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	guard := NewRedisAuthAbuseGuard(client, "test", testAbusePolicy())
	ctx := context.Background()

	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.1"); err != nil || retry != 0 {
		t.Fatalf("expected no cooldown initially, got retry=%v err=%v", retry, err)
	}
	first, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.1")
	if err != nil || first != 0 {
		t.Fatalf("expected free attempt, got %v err=%v", first, err)
	}
	second, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.1")
	if err != nil || second != time.Second {
		t.Fatalf("expected 1s cooldown, got %v err=%v", second, err)
	}
	retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.77")
	if err != nil || retry <= 0 || retry > time.Second {
		t.Fatalf("expected active identity cooldown, got %v err=%v", retry, err)
	}
	if err := guard.Reset(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "E100", "10.0.0.1"); err != nil || retry != 0 {
		t.Fatalf("expected cleared cooldown, got %v err=%v", retry, err)
	}
}

func TestRedisAuthAbuseGuardKeysAreHashed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	guard := NewRedisAuthAbuseGuard(client, "test", testAbusePolicy())
	if _, err := guard.RegisterFailure(context.Background(), AuthAbuseScopeLogin, "E100", "10.0.0.1"); err != nil {
		t.Fatalf("register failure: %v", err)
	}
	for _, key := range mr.Keys() {
		if strings.Contains(key, "E100") || strings.Contains(key, "e100") || strings.Contains(key, "10.0.0.1") {
			t.Fatalf("raw identity leaked into key %q", key)
		}
	}
}
