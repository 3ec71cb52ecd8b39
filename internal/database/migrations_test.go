package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/wednesday-pm/taskrelay/internal/tasks"
	"github.com/wednesday-pm/taskrelay/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsNormalizesLegacyRows(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := autoMigrate(database); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	user := users.User{Name: "Alice", Email: " Alice@Example.COM ", PasswordHash: "x", Role: users.RoleMember}
	if err := database.Create(&user).Error; err != nil {
		testContext.Fatalf("failed to insert user: %v", err)
	}
	legacy := []tasks.Task{
		{Title: "a", Status: tasks.StatusNotStarted, Priority: tasks.Priority("URGENT"), ProjectID: 1, CreatorID: user.ID},
		{Title: "b", Status: tasks.StatusNotStarted, Priority: tasks.Priority("MEDIUM"), ProjectID: 1, CreatorID: user.ID},
	}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert tasks: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored users.User
	if err := database.Where("id = ?", user.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.Email != "alice@example.com" {
		testContext.Fatalf("expected normalized email, got %q", stored.Email)
	}

	var priorities []string
	if err := database.Model(&tasks.Task{}).Order("id ASC").Pluck("priority", &priorities).Error; err != nil {
		testContext.Fatalf("failed to reload tasks: %v", err)
	}
	if len(priorities) != 2 || priorities[0] != "CRITICAL" || priorities[1] != "NORMAL" {
		testContext.Fatalf("unexpected priorities %v", priorities)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationNormalizeUserEmails).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-applying migrations must be a no-op: %v", err)
	}
	var count int64
	database.Model(&migrationRecord{}).Count(&count)
	if count != 2 {
		testContext.Fatalf("expected two migration records, got %d", count)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "taskrelay.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("open failed: %v", err)
	}
	for _, table := range []string{"users", "projects", "tasks", "task_assignments", "subtasks", "notes", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
}
