package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/engine-service-portal/internal/database"
)

// dependencyCheck turns a probe function into a Checker; any error marks the
// dependency unhealthy and becomes the reported reason.
type dependencyCheck struct {
	name  string
	probe func(ctx context.Context) error
}

func (c dependencyCheck) Check(ctx context.Context) CheckResult {
	if err := c.probe(ctx); err != nil {
		return CheckResult{Name: c.name, Error: err.Error()}
	}
	return CheckResult{Name: c.name, Healthy: true}
}

func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return dependencyCheck{name: "db", probe: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}
}

// NewSchemaChecker reports unready until the credentials schema matches the
// models, so a replica started before `migrate up` never takes traffic.
func NewSchemaChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return dependencyCheck{name: "schema", probe: func(ctx context.Context) error {
		steps, err := database.Plan(db.WithContext(ctx))
		if err != nil {
			return err
		}
		if len(steps) > 0 {
			return fmt.Errorf("pending migrations: %s", strings.Join(steps, "; "))
		}
		return nil
	}}
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return dependencyCheck{name: "redis", probe: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}
