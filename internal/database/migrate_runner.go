package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"inkwell/internal/middleware"

	"gorm.io/gorm"
)

// The ledger table is created with raw SQL rather than AutoMigrate so
// that SQL-mode schema management never depends on model reflection.
const migrationLedgerDDL = `
CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_migration_logs_applied_at ON migration_logs (applied_at);`

// MigrationLog is one row of the applied-migration ledger.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

// MigrationStore tracks which migrations have run and executes new ones.
type MigrationStore interface {
	GetAppliedMigrations(ctx context.Context) ([]int, error)
	ApplyMigration(ctx context.Context, version int, name, sql string) error
	RemoveMigration(ctx context.Context, version int) error
}

type migrationStore struct {
	db *gorm.DB
}

// NewMigrationStore returns a ledger-backed MigrationStore.
func NewMigrationStore(db *gorm.DB) MigrationStore {
	return &migrationStore{db: db}
}

func (s *migrationStore) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	var versions []int
	err := s.db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error
	if err != nil {
		// A missing ledger table just means nothing has run yet.
		if errors.Is(err, gorm.ErrRecordNotFound) || isMissingTableError(err) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return versions, nil
}

// ApplyMigration runs the script and records it in the ledger inside one
// transaction, so a failed script never leaves a ledger entry behind.
func (s *migrationStore) ApplyMigration(ctx context.Context, version int, name, sql string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", version, name, err)
		}
		if err := tx.Create(&MigrationLog{Version: version, Name: name}).Error; err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("Migration applied", slog.Int("version", version), slog.String("name", name))
	return nil
}

// RemoveMigration runs the down script and deletes the ledger row in the
// same transaction.
func (s *migrationStore) RemoveMigration(ctx context.Context, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("failed to run rollback SQL for migration %d (%s): %w", version, m.Name, err)
		}
		if err := tx.Where("version = ?", version).Delete(&MigrationLog{}).Error; err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("Migration rolled back", slog.Int("version", version))
	return nil
}

// RunMigrations brings the database up to the newest registered version.
// It refuses to touch a ledger that mentions versions this binary does
// not know about, because that means the database is ahead of the code.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec(migrationLedgerDDL).Error; err != nil {
		return fmt.Errorf("failed to ensure migration logs table: %w", err)
	}

	store := NewMigrationStore(db)
	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if unknown := unknownVersions(applied); len(unknown) > 0 {
		sort.Ints(unknown)
		names := make([]string, 0, len(unknown))
		for _, v := range unknown {
			names = append(names, fmt.Sprintf("%06d", v))
		}
		return fmt.Errorf(
			"migration_logs contains unknown versions not present in code: %s (reset the development database to rebuild)",
			strings.Join(names, ", "),
		)
	}

	done := appliedSet(applied)
	pending := 0
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		pending++
		middleware.Logger.Info("Applying migration", slog.Int("version", m.Version), slog.String("name", m.Name))
		if err := store.ApplyMigration(ctx, m.Version, m.Name, m.UpScript); err != nil {
			return err
		}
	}
	if pending == 0 {
		middleware.Logger.Debug("Schema already up to date", slog.Int("versions", len(applied)))
	}
	return nil
}

// RollbackMigration reverts a single version. The version must be
// registered and must currently be applied.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	if GetMigrationByVersion(version) == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	store := NewMigrationStore(db)
	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if !appliedSet(applied)[version] {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	return store.RemoveMigration(ctx, version)
}

func appliedSet(versions []int) map[int]bool {
	set := make(map[int]bool, len(versions))
	for _, v := range versions {
		set[v] = true
	}
	return set
}

// unknownVersions returns ledger entries with no registered migration.
func unknownVersions(applied []int) []int {
	known := make(map[int]struct{}, len(migrations))
	for _, m := range migrations {
		known[m.Version] = struct{}{}
	}

	var unknown []int
	for _, v := range applied {
		if _, ok := known[v]; !ok {
			unknown = append(unknown, v)
		}
	}
	return unknown
}

// isMissingTableError matches the driver-specific "table does not exist"
// failures: postgres reports a missing relation, sqlite "no such table".
func isMissingTableError(err error) bool {
	msg := err.Error()
	if strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist") {
		return true
	}
	return strings.Contains(msg, "no such table")
}
