package db

import (
	"context"
	"fmt"

	"github.com/petermazzocco/go-image-host/models"
	"gorm.io/gorm"
)

type Migration struct {
	Version     int
	Description string
	Up          func(*gorm.DB) error
	Down        func(*gorm.DB) error
}

type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// schemaMigration is one applied migration.
type schemaMigration struct {
	ID          uint   `gorm:"primaryKey"`
	Version     int    `gorm:"uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	AppliedAt   int64  `gorm:"autoCreateTime"`
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: allMigrations(),
	}
}

// Migrate runs every migration that has not been applied yet, each in its
// own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.run(ctx, migration); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("failed to create migration history table: %w", err)
	}

	var last schemaMigration
	if err := m.db.WithContext(ctx).Order("version DESC").First(&last).Error; err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last.Version {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", last.Version)
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := migration.Down(tx); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		if err := tx.Delete(&last).Error; err != nil {
			return fmt.Errorf("failed to update migration history: %w", err)
		}
		return nil
	})
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, migration := range m.migrations {
		statuses = append(statuses, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied[migration.Version],
		})
	}
	return statuses, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]bool, error) {
	if err := m.db.WithContext(ctx).AutoMigrate(&schemaMigration{}); err != nil {
		return nil, fmt.Errorf("failed to create migration history table: %w", err)
	}

	var history []schemaMigration
	if err := m.db.WithContext(ctx).Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}

	applied := make(map[int]bool, len(history))
	for _, h := range history {
		applied[h.Version] = true
	}
	return applied, nil
}

func (m *Migrator) run(ctx context.Context, migration Migration) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := migration.Up(tx); err != nil {
			return err
		}
		return tx.Create(&schemaMigration{
			Version:     migration.Version,
			Description: migration.Description,
		}).Error
	})
}

func allMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create images, tags and image_tags",
			Up: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&models.Image{},
					&models.Tag{},
					&models.ImageTag{},
				)
			},
			Down: func(db *gorm.DB) error {
				// One table per call, children first.
				for _, table := range []interface{}{&models.ImageTag{}, &models.Tag{}, &models.Image{}} {
					if err := db.Migrator().DropTable(table); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
