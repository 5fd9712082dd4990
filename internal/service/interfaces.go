package service

import (
	"context"

	"github.com/sandeepkv93/engine-service-portal/internal/security"
)

//go:generate mockgen -destination=gomock/auth_service_mock.go -package=gomock . AuthServiceInterface,TokenAuthenticator

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*Identity, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Elevate(ctx context.Context, in ElevateInput) (*Identity, error)
	AdminLogin(ctx context.Context, in AdminLoginInput) (*LoginResult, error)
	Logout(ctx context.Context, claims *security.Claims) error
	Me(ctx context.Context, subjectID uint) (*Identity, error)
}

// TokenAuthenticator is what the access middleware needs from the token layer.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*security.Claims, error)
}

var (
	_ AuthServiceInterface = (*AuthService)(nil)
	_ TokenAuthenticator   = (*TokenService)(nil)
)
