package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) *Config {
	return &Config{
		Env:                          env,
		DatabaseURL:                  "postgres://x",
		JWTSecret:                    "abcdefghijklmnopqrstuvwxyz123456",
		AdminCode:                    "admin-code-1234",
		BcryptCost:                   12,
		JWTAccessTTL:                 time.Hour,
		JWTAdminTTL:                  15 * time.Minute,
		AuthRateLimitPerMin:          30,
		APIRateLimitPerMin:           120,
		AuthAbuseProtectionEnabled:   true,
		AuthAbuseFreeAttempts:        5,
		AuthAbuseBaseDelay:           2 * time.Second,
		AuthAbuseMultiplier:          2,
		AuthAbuseMaxDelay:            5 * time.Minute,
		AuthAbuseResetWindow:         30 * time.Minute,
		CORSAllowedOrigins:           []string{"http://localhost:3000"},
		OTELTraceSamplingRatio:       1.0,
		OTELMetricsExportInterval:    10 * time.Second,
		OTELLogLevel:                 "info",
		ReadinessProbeTimeout:        time.Second,
		ShutdownTimeout:              20 * time.Second,
		ShutdownHTTPDrainTimeout:     10 * time.Second,
		ShutdownObservabilityTimeout: 8 * time.Second,
	}
}

func TestValidateAcceptsBaseline(t *testing.T) {
	if err := validConfig("production").Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsWeakSecrets(t *testing.T) {
	cfg := validConfig("development")
	cfg.JWTSecret = "short"
	cfg.AdminCode = "123"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"JWT_SECRET", "ADMIN_CODE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidateBoundsTokenLifetimeAndCost(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"access ttl above one hour", func(c *Config) { c.JWTAccessTTL = 2 * time.Hour }, "JWT_ACCESS_TTL"},
		{"admin ttl zero", func(c *Config) { c.JWTAdminTTL = 0 }, "JWT_ADMIN_TTL"},
		{"bcrypt cost too low", func(c *Config) { c.BcryptCost = 4 }, "BCRYPT_COST"},
		{"bcrypt cost too high", func(c *Config) { c.BcryptCost = 14 }, "BCRYPT_COST"},
		{"redis without addr", func(c *Config) { c.RedisEnabled = true; c.RedisAddr = " " }, "REDIS_ADDR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig("development")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %s error, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateWildcardCORSOnlyInLocalProfiles(t *testing.T) {
	dev := validConfig("development")
	dev.CORSAllowedOrigins = []string{"*"}
	if err := dev.Validate(); err != nil {
		t.Fatalf("expected development wildcard to pass, got %v", err)
	}

	prod := validConfig("production")
	prod.CORSAllowedOrigins = []string{"*"}
	if err := prod.Validate(); err == nil {
		t.Fatal("expected production wildcard to fail")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "postgres://localhost/esp")
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("ADMIN_CODE", "admin-code-1234")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTAccessTTL != 30*time.Minute {
		t.Fatalf("unexpected access ttl %s", cfg.JWTAccessTTL)
	}
	if cfg.BcryptCost != 10 {
		t.Fatalf("unexpected bcrypt cost %d", cfg.BcryptCost)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.OTELMetricsEnabled {
		t.Fatal("expected metrics disabled by default in test profile")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/esp")
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("ADMIN_CODE", "admin-code-1234")
	t.Setenv("JWT_ADMIN_TTL", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_ADMIN_TTL") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
