package database

import (
	"errors"
	"time"

	"github.com/wednesday-pm/taskrelay/internal/tasks"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeUserEmails     = "2024-06-01_normalize_user_emails"
	migrationMapLegacyTaskPriorities = "2024-06-15_map_legacy_task_priorities"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeUserEmails, apply: normalizeUserEmails},
		{name: migrationMapLegacyTaskPriorities, apply: mapLegacyTaskPriorities},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func normalizeUserEmails(db *gorm.DB) error {
	return db.Exec("UPDATE users SET email = lower(trim(email)) WHERE email <> lower(trim(email))").Error
}

func mapLegacyTaskPriorities(db *gorm.DB) error {
	if err := db.Model(&tasks.Task{}).
		Where("priority = ?", "URGENT").
		Update("priority", tasks.PriorityCritical).Error; err != nil {
		return err
	}
	return db.Model(&tasks.Task{}).
		Where("priority = ?", "MEDIUM").
		Update("priority", tasks.PriorityNormal).Error
}
