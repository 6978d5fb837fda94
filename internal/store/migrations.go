package store

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate runs all schema migrations using gormigrate.
func (s *Store) Migrate() error {
	m := gormigrate.New(s.DB, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: pgvector extension, required before any vector column
		{
			ID: "001_vector_extension",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP EXTENSION IF EXISTS vector").Error
			},
		},

		// Migration 002: mirror tables
		{
			ID: "002_mirror_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Project{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Devlog{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Comment{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("comments", "logs", "projects")
			},
		},

		// Migration 003: users and shell history
		{
			ID: "003_users_shell_history",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&User{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&ShellHistory{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("shell_history", "users")
			},
		},

		// Migration 004: sync cursor store
		{
			ID: "004_sync_metadata",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&SyncMetadata{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sync_metadata")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
