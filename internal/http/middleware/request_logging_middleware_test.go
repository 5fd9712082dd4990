package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/engine-service-portal/internal/security"
	"github.com/sandeepkv93/engine-service-portal/internal/service"
)

type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func captureDefaultLogger(t *testing.T) *captureHandler {
	t.Helper()
	orig := slog.Default()
	h := &captureHandler{}
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return h
}

func recordAttrs(rec slog.Record) map[string]string {
	out := map[string]string{}
	rec.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}

func TestStructuredRequestLoggerLevelsByStatus(t *testing.T) {
	logs := captureDefaultLogger(t)

	r := chi.NewRouter()
	r.Use(StructuredRequestLogger)
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	r.Get("/slow-down", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	for _, path := range []string{"/ok", "/boom", "/slow-down"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "198.51.100.10:3456"
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(logs.records) != 3 {
		t.Fatalf("expected 3 log records, got %d", len(logs.records))
	}
	want := []slog.Level{slog.LevelInfo, slog.LevelError, slog.LevelWarn}
	for i, lvl := range want {
		if logs.records[i].Level != lvl {
			t.Fatalf("record %d: expected %v, got %v", i, lvl, logs.records[i].Level)
		}
	}
	attrs := recordAttrs(logs.records[0])
	if attrs["route"] != "/ok" || attrs["status"] != "200" || attrs["client_ip"] == "" {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}
	if _, ok := attrs["path"]; ok {
		t.Fatalf("path should be omitted when it equals the route: %+v", attrs)
	}
	if attrs := recordAttrs(logs.records[2]); attrs["retry_after"] != "30" {
		t.Fatalf("expected retry_after on throttled line, got %+v", attrs)
	}
}

func TestStructuredRequestLoggerStatusFallbackTo200(t *testing.T) {
	logs := captureDefaultLogger(t)
	h := StructuredRequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/none", nil))

	if len(logs.records) != 1 {
		t.Fatalf("expected one log record, got %d", len(logs.records))
	}
	if attrs := recordAttrs(logs.records[0]); attrs["status"] != "200" || attrs["path"] != "/none" {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}
}

func TestStructuredRequestLoggerTagsAuthenticatedSubject(t *testing.T) {
	logs := captureDefaultLogger(t)
	jwtMgr, err := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	tokens := service.NewTokenService(jwtMgr, service.NewInMemoryTokenDenylist(), time.Minute, time.Minute)
	issued, err := tokens.IssueAdmin(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := chi.NewRouter()
	r.Use(StructuredRequestLogger)
	r.With(AuthMiddleware(tokens)).Get("/me", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me", nil))

	attrs := recordAttrs(logs.records[0])
	if attrs["subject_id"] != "42" || attrs["scope"] != security.ScopeAdmin {
		t.Fatalf("expected subject tags, got %+v", attrs)
	}
	if attrs := recordAttrs(logs.records[1]); attrs["subject_id"] != "" {
		t.Fatalf("anonymous request must not carry a subject: %+v", attrs)
	}
}
