// Command migrate manages the database schema from the command line.
//
// Subcommands:
//
//	up             apply pending SQL migrations
//	auto           run gorm AutoMigrate for every registered model
//	status         print schema mode and pending migrations
//	down <version> roll back a single migration
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"inkwell/internal/config"
	"inkwell/internal/database"

	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usageError()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Schema changes are the whole point here, so connect without the
	// automatic apply the server does on boot.
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		return migrateUp(ctx, db)
	case "auto":
		return migrateAuto(ctx, db, cfg)
	case "status":
		return printStatus(ctx, db, cfg)
	case "down":
		return migrateDown(ctx, db, flag.Arg(1))
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("usage: go run ./cmd/migrate/main.go <up|auto|status|down> [version]")
}

func migrateUp(ctx context.Context, db *gorm.DB) error {
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sql migrations failed: %w", err)
	}
	log.Println("sql migrations applied")
	return nil
}

func migrateAuto(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return fmt.Errorf("auto schema apply failed: %w", err)
	}
	log.Println("automigrations applied")
	return nil
}

func printStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status failed: %w", err)
	}
	log.Printf("mode=%s env=%s run_sql=%t run_auto=%t applied=%d pending=%d",
		status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate,
		len(status.AppliedVersions), len(status.PendingMigrations))
	for _, m := range status.PendingMigrations {
		log.Printf("pending: %s", m.String())
	}
	return nil
}

func migrateDown(ctx context.Context, db *gorm.DB, arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: go run ./cmd/migrate/main.go down <version>")
	}
	version, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", arg, err)
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	log.Printf("rolled back migration %d", version)
	return nil
}
