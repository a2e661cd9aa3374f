package database

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"inkwell/internal/middleware"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration pairs the forward and reverse SQL for one schema version.
// Files follow the usual NNNNNN_name.up.sql / NNNNNN_name.down.sql
// naming, versions ascending.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

var migrations []Migration

func init() {
	if err := RegisterMigrations(embeddedMigrations); err != nil {
		middleware.Logger.Error("Embedded migrations failed to load", slog.String("error", err.Error()))
	}
}

// RegisterMigrations loads every up/down pair from the filesystem into
// the ordered registry. Files with unparseable names are skipped; an up
// script without a matching down script is an error, because it would
// leave a version that cannot be rolled back.
func RegisterMigrations(efs embed.FS) error {
	ups, err := fs.Glob(efs, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	for _, path := range ups {
		base := strings.TrimSuffix(strings.TrimPrefix(path, "migrations/"), ".up.sql")
		versionRaw, name, ok := strings.Cut(base, "_")
		if !ok {
			middleware.Logger.Warn("Ignoring migration without a version prefix", slog.String("file", path))
			continue
		}
		version, err := strconv.Atoi(versionRaw)
		if err != nil {
			middleware.Logger.Warn("Ignoring migration with a non-numeric version", slog.String("file", path))
			continue
		}

		up, err := efs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		down, err := efs.ReadFile("migrations/" + base + ".down.sql")
		if err != nil {
			return fmt.Errorf("migration %s has no down script: %w", base, err)
		}

		migrations = append(migrations, Migration{
			Version:    version,
			Name:       name,
			UpScript:   string(up),
			DownScript: string(down),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return nil
}

// GetMigrations returns the registry in ascending version order.
func GetMigrations() []Migration {
	return migrations
}

// GetMigrationByVersion returns the registered migration with the given
// version, or nil when no such version exists.
func GetMigrationByVersion(version int) *Migration {
	for i := range migrations {
		if migrations[i].Version == version {
			return &migrations[i]
		}
	}
	return nil
}
