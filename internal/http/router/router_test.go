package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/sandeepkv93/engine-service-portal/internal/health"
	"github.com/sandeepkv93/engine-service-portal/internal/http/handler"
	"github.com/sandeepkv93/engine-service-portal/internal/security"
	"github.com/sandeepkv93/engine-service-portal/internal/service"
	servicegomock "github.com/sandeepkv93/engine-service-portal/internal/service/gomock"
)

type staticChecker struct{ healthy bool }

func (c staticChecker) Check(context.Context) health.CheckResult {
	return health.CheckResult{Name: "static", Healthy: c.healthy}
}

func newRouterForTest(t *testing.T, svc service.AuthServiceInterface, readiness *health.ProbeRunner) (http.Handler, *service.TokenService) {
	t.Helper()
	jwtMgr, err := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	tokens := service.NewTokenService(jwtMgr, service.NewInMemoryTokenDenylist(), 15*time.Minute, 5*time.Minute)
	return NewRouter(Dependencies{
		AuthHandler:      handler.NewAuthHandler(svc),
		Authenticator:    tokens,
		CORSOrigins:      []string{"https://portal.example.com"},
		AuthRateLimitRPM: 3,
		APIRateLimitRPM:  100,
		Readiness:        readiness,
	}), tokens
}

func TestHealthRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	h, _ := newRouterForTest(t, servicegomock.NewMockAuthServiceInterface(ctrl),
		health.NewProbeRunner(time.Second, 0, staticChecker{healthy: false}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected live 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected ready 503, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	ctrl := gomock.NewController(t)
	h, tokens := newRouterForTest(t, servicegomock.NewMockAuthServiceInterface(ctrl), nil)

	for _, path := range []string{"/protected", "/me", "/admin/protected"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}

	session, _ := tokens.Issue(2)
	req := httptest.NewRequest(http.MethodGet, "/admin/protected", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for session scope on admin route, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on /protected, got %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on every response")
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := servicegomock.NewMockAuthServiceInterface(ctrl)
	svc.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(nil, &service.AuthError{Kind: service.KindUnauthorized, Message: "Invalid credentials."}).
		Times(3)
	h, _ := newRouterForTest(t, svc, nil)

	var last *httptest.ResponseRecorder
	for range 4 {
		req := httptest.NewRequest(http.MethodPost, "/login-user", strings.NewReader(`{"employeeCode":"E1","password":"x"}`))
		req.RemoteAddr = "192.0.2.10:4000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on fourth attempt, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ctrl := gomock.NewController(t)
	h, _ := newRouterForTest(t, servicegomock.NewMockAuthServiceInterface(ctrl), nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Code != "NOT_FOUND" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
}

func TestHandlerPanicUsesFailureEnvelope(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := servicegomock.NewMockAuthServiceInterface(ctrl)
	svc.EXPECT().Register(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, service.RegisterInput) (*service.Identity, error) {
			panic("credential store exploded")
		},
	)
	h, _ := newRouterForTest(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/register-user", strings.NewReader(
		`{"employeeCode":"E100","displayName":"A. Singh","contactEmail":"a@x.com","password":"Secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Code      string `json:"code"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	if body.Success || body.Code != "INTERNAL" || body.Message == "" || body.RequestID == "" {
		t.Fatalf("unexpected panic response: %+v", body)
	}
	if strings.Contains(rr.Body.String(), "exploded") {
		t.Fatalf("panic value leaked to client: %s", rr.Body.String())
	}
}
