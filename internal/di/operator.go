package di

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"github.com/sandeepkv93/engine-service-portal/internal/config"
	"github.com/sandeepkv93/engine-service-portal/internal/repository"
	"github.com/sandeepkv93/engine-service-portal/internal/security"
	"github.com/sandeepkv93/engine-service-portal/internal/service"
)

// Operator is the object graph the seed tool runs against: the same auth
// flows the API uses, without HTTP, redis or telemetry.
type Operator struct {
	Config      *config.Config
	DB          *gorm.DB
	Auth        *service.AuthService
	Credentials repository.CredentialRepository
}

var OperatorSet = wire.NewSet(
	provideOpenDB,
	RepositorySet,
	SecuritySet,
	provideOperatorTokenService,
	provideOperatorAbuseGuard,
	service.NewAuthService,
	NewOperator,
)

func NewOperator(cfg *config.Config, db *gorm.DB, auth *service.AuthService, creds repository.CredentialRepository) *Operator {
	return &Operator{Config: cfg, DB: db, Auth: auth, Credentials: creds}
}

func (o *Operator) Close() error {
	sqlDB, err := o.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func provideOperatorTokenService(cfg *config.Config, jwt *security.JWTManager) *service.TokenService {
	return service.NewTokenService(jwt, service.NewInMemoryTokenDenylist(), cfg.JWTAccessTTL, cfg.JWTAdminTTL)
}

func provideOperatorAbuseGuard() service.AuthAbuseGuard {
	return service.NewNoopAuthAbuseGuard()
}
