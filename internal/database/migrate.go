package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/engine-service-portal/internal/domain"
	"github.com/sandeepkv93/engine-service-portal/internal/observability"
)

type MigrationStatus struct {
	Table   string   `json:"table"`
	Exists  bool     `json:"exists"`
	Missing []string `json:"missing_columns,omitempty"`
}

func models() []any {
	return []any{&domain.Credential{}}
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "migrate", time.Since(start))
	}()
	if err := db.AutoMigrate(models()...); err != nil {
		observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "success")
	return nil
}

// Status compares the live schema to the domain models without changing it.
func Status(db *gorm.DB) ([]MigrationStatus, error) {
	m := db.Migrator()
	out := make([]MigrationStatus, 0, len(models()))
	for _, model := range models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		st := MigrationStatus{Table: stmt.Schema.Table, Exists: m.HasTable(model)}
		if st.Exists {
			for _, field := range stmt.Schema.Fields {
				if field.DBName == "" {
					continue
				}
				if !m.HasColumn(model, field.DBName) {
					st.Missing = append(st.Missing, field.DBName)
				}
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Plan lists the changes AutoMigrate would make, derived from Status.
func Plan(db *gorm.DB) ([]string, error) {
	statuses, err := Status(db)
	if err != nil {
		return nil, err
	}
	var steps []string
	for _, st := range statuses {
		if !st.Exists {
			steps = append(steps, "create table "+st.Table)
			continue
		}
		for _, col := range st.Missing {
			steps = append(steps, "add column "+st.Table+"."+col)
		}
	}
	return steps, nil
}
