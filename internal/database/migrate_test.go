package database

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLiteForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), GormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestPlanOnEmptySchema(t *testing.T) {
	db := openSQLiteForTest(t)

	steps, err := Plan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(steps) != 1 || steps[0] != "create table credentials" {
		t.Fatalf("unexpected plan: %v", steps)
	}

	statuses, err := Status(db)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Exists {
		t.Fatalf("unexpected status: %+v", statuses)
	}
}

func TestMigrateIsIdempotentAndCompletesPlan(t *testing.T) {
	db := openSQLiteForTest(t)
	for i := 0; i < 2; i++ {
		if err := Migrate(db); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	steps, err := Plan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("expected empty plan after migrate, got %v", steps)
	}
	statuses, _ := Status(db)
	if !statuses[0].Exists || len(statuses[0].Missing) != 0 {
		t.Fatalf("unexpected status after migrate: %+v", statuses[0])
	}
}

func TestPlanReportsMissingColumns(t *testing.T) {
	db := openSQLiteForTest(t)
	if err := db.Exec("CREATE TABLE credentials (id integer primary key, employee_code text)").Error; err != nil {
		t.Fatalf("create partial table: %v", err)
	}

	steps, err := Plan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	joined := strings.Join(steps, ",")
	for _, want := range []string{"add column credentials.password_hash", "add column credentials.admin_key_hash"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in plan %v", want, steps)
		}
	}
	if strings.Contains(joined, "credentials.employee_code") {
		t.Fatalf("existing column reported missing: %v", steps)
	}
}
