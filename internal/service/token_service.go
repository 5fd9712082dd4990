package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/engine-service-portal/internal/observability"
	"github.com/sandeepkv93/engine-service-portal/internal/security"
)

var ErrTokenRevoked = errors.New("token revoked")

type IssuedToken struct {
	Token     string
	TokenID   string
	Scope     string
	ExpiresAt time.Time
}

type TokenService struct {
	jwtMgr    *security.JWTManager
	denylist  TokenDenylist
	accessTTL time.Duration
	adminTTL  time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, denylist TokenDenylist, accessTTL, adminTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, denylist: denylist, accessTTL: accessTTL, adminTTL: adminTTL}
}

func (s *TokenService) Issue(subjectID uint) (*IssuedToken, error) {
	return s.issue(subjectID, security.ScopeSession, s.accessTTL)
}

func (s *TokenService) IssueAdmin(subjectID uint) (*IssuedToken, error) {
	return s.issue(subjectID, security.ScopeAdmin, s.adminTTL)
}

func (s *TokenService) issue(subjectID uint, scope string, ttl time.Duration) (*IssuedToken, error) {
	token, claims, err := s.jwtMgr.Sign(subjectID, scope, ttl)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{
		Token:     token,
		TokenID:   claims.ID,
		Scope:     scope,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify is purely cryptographic: signature, issuer, audience and expiry.
func (s *TokenService) Verify(token string) (*security.Claims, error) {
	return s.jwtMgr.Parse(token)
}

// Authenticate verifies the token and then rejects it if it was revoked.
func (s *TokenService) Authenticate(ctx context.Context, token string) (*security.Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		observability.RecordTokenValidation(ctx, validationOutcome(err))
		return nil, err
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		observability.RecordTokenValidation(ctx, "denylist_error")
		return nil, fmt.Errorf("check token denylist: %w", err)
	}
	if revoked {
		observability.RecordTokenValidation(ctx, "revoked")
		return nil, ErrTokenRevoked
	}
	observability.RecordTokenValidation(ctx, "valid")
	return claims, nil
}

func (s *TokenService) Revoke(ctx context.Context, claims *security.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return errors.New("token id and expiry are required")
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		observability.RecordTokenRevocation(ctx, s.denylist.Backend(), "error")
		return err
	}
	observability.RecordTokenRevocation(ctx, s.denylist.Backend(), "success")
	return nil
}

func validationOutcome(err error) string {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "expired"
	case errors.Is(err, security.ErrTokenMissing):
		return "missing"
	default:
		return "malformed"
	}
}
