package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/engine-service-portal/internal/security"
)

type fixedLimiter struct {
	allow bool
	retry time.Duration
	err   error
}

func (m fixedLimiter) Allow(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{Allowed: m.allow, RetryAfter: m.retry, ResetAt: time.Now().Add(m.retry)}, m.err
}

type keyRecorder struct {
	keys []string
}

func (r *keyRecorder) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	r.keys = append(r.keys, key)
	return Decision{Allowed: true, Remaining: max(limit-1, 0), ResetAt: time.Now().Add(window)}, nil
}

func serveLimited(rl *RateLimiter, method, path, bearer string) *httptest.ResponseRecorder {
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1111"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestDistributedRateLimiterBackendErrorModes(t *testing.T) {
	down := fixedLimiter{err: errors.New("redis down")}
	cases := []struct {
		name  string
		mode  FailureMode
		scope string
		path  string
		want  int
	}{
		{name: "api fails open", mode: FailOpen, scope: "api", path: "/protected", want: http.StatusOK},
		{name: "auth fails closed", mode: FailClosed, scope: "auth", path: "/login-user", want: http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rl := NewDistributedRateLimiter(down, 10, time.Minute, tc.mode, tc.scope)
			rr := serveLimited(rl, http.MethodPost, tc.path, "")
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if tc.want == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "60" {
				t.Fatalf("expected full-window Retry-After, got %q", rr.Header().Get("Retry-After"))
			}
		})
	}
}

func TestDistributedRateLimiterHeaders(t *testing.T) {
	denied := serveLimited(
		NewDistributedRateLimiter(fixedLimiter{retry: 5 * time.Second}, 1, time.Minute, FailClosed, "auth"),
		http.MethodPost, "/register-user", "",
	)
	if denied.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", denied.Code)
	}
	if got := denied.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("expected Retry-After=5, got %q", got)
	}
	if denied.Header().Get("X-RateLimit-Limit") != "1" || denied.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected limit headers: %v", denied.Header())
	}
	if _, err := strconv.ParseInt(denied.Header().Get("X-RateLimit-Reset"), 10, 64); err != nil {
		t.Fatalf("expected numeric X-RateLimit-Reset, got %q", denied.Header().Get("X-RateLimit-Reset"))
	}
	if !strings.Contains(denied.Body.String(), `"success":false`) {
		t.Fatalf("expected failure envelope, got %s", denied.Body.String())
	}

	allowed := serveLimited(
		NewDistributedRateLimiter(fixedLimiter{allow: true, retry: time.Minute}, 3, time.Minute, FailClosed, "api"),
		http.MethodGet, "/me", "",
	)
	if allowed.Code != http.StatusOK || allowed.Header().Get("X-RateLimit-Limit") != "3" {
		t.Fatalf("unexpected allowed response: %d %v", allowed.Code, allowed.Header())
	}
	if got := allowed.Header().Get("Retry-After"); got != "" {
		t.Fatalf("did not expect Retry-After on allowed response, got %q", got)
	}
}

func TestSubjectOrIPKeyFunc(t *testing.T) {
	jwtMgr, err := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	session, _, err := jwtMgr.Sign(42, security.ScopeSession, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, _, err := jwtMgr.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).Sign(42, security.ScopeSession, time.Minute)
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}

	rec := &keyRecorder{}
	rl := NewDistributedRateLimiterWithKey(rec, 10, time.Minute, FailClosed, "api", SubjectOrIPKeyFunc(jwtMgr))
	for _, bearer := range []string{session, "not-a-token", expired, ""} {
		if rr := serveLimited(rl, http.MethodGet, "/protected", bearer); rr.Code != http.StatusOK {
			t.Fatalf("expected pass, got %d", rr.Code)
		}
	}
	want := []string{"api:sub:42", "api:10.0.0.1", "api:10.0.0.1", "api:10.0.0.1"}
	for i, k := range want {
		if rec.keys[i] != k {
			t.Fatalf("request %d: expected key %q, got %q", i+1, k, rec.keys[i])
		}
	}
}

func TestLocalFixedWindowLimiterWindowRollover(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	l := NewLocalFixedWindowLimiter().(*localFixedWindowLimiter)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 2 {
		if d, _ := l.Allow(ctx, "auth:10.0.0.1", 2, time.Minute); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if d, _ := l.Allow(ctx, "auth:10.0.0.2", 2, time.Minute); !d.Allowed {
		t.Fatal("another client has its own window")
	}
	d, _ := l.Allow(ctx, "auth:10.0.0.1", 2, time.Minute)
	if d.Allowed || d.RetryAfter != time.Minute {
		t.Fatalf("expected third request denied with full window retry, got %+v", d)
	}

	now = now.Add(61 * time.Second)
	d, _ = l.Allow(ctx, "auth:10.0.0.1", 2, time.Minute)
	if !d.Allowed || d.Remaining != 1 {
		t.Fatalf("expected new window to allow, got %+v", d)
	}
}
