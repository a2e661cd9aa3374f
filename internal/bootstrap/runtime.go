// Package bootstrap wires the process-level runtime pieces that both
// the API server and the CLIs need before they can do anything useful.
package bootstrap

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemoData applies the embedded demo preset after connecting.
	SeedDemoData bool
}

// InitRuntime connects to DB and Redis and optionally applies the demo
// preset. The returned monitor owns the Prometheus registry shared by
// everything initialized here.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, *observability.Monitor, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	mon := observability.NewMonitor()

	// Redis is optional; the client comes back nil when unreachable and
	// the server degrades to cache-less operation.
	cache.InitRedis(cfg.RedisURL, mon)
	r := cache.GetClient()

	if err := ensureDevRootAdmin(cfg, db); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	if opts.SeedDemoData {
		if err := seed.ApplyPreset(db, "demo"); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to apply demo preset: %w", err)
		}
	}

	return db, r, mon, nil
}

// rootIdentity is the credential set for the development root admin.
type rootIdentity struct {
	username string
	email    string
	hash     string
}

func resolveRootIdentity(cfg *config.Config) (rootIdentity, error) {
	id := rootIdentity{
		username: strings.TrimSpace(cfg.DevRootUsername),
		email:    strings.TrimSpace(strings.ToLower(cfg.DevRootEmail)),
	}
	if id.username == "" {
		id.username = "inkwell_root"
	}
	if id.email == "" {
		id.email = "root@inkwell.local"
	}

	if cfg.DevRootPassword == "" {
		return rootIdentity{}, fmt.Errorf("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), bcrypt.DefaultCost)
	if err != nil {
		return rootIdentity{}, fmt.Errorf("hash root password: %w", err)
	}
	id.hash = string(hashed)
	return id, nil
}

// ensureDevRootAdmin guarantees user ID 1 exists and is an admin when
// running in development with DEV_BOOTSTRAP_ROOT enabled. Outside that
// combination it does nothing.
func ensureDevRootAdmin(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	id, err := resolveRootIdentity(cfg)
	if err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := upsertRootUser(tx, cfg, id); err != nil {
			return err
		}
		return syncUsersSequence(tx)
	})
	if err != nil {
		return err
	}

	log.Printf("development root admin bootstrap ensured for user ID 1 (%s)", id.email)
	return nil
}

func upsertRootUser(tx *gorm.DB, cfg *config.Config, id rootIdentity) error {
	var root models.User
	findErr := tx.First(&root, 1).Error

	switch {
	case errors.Is(findErr, gorm.ErrRecordNotFound):
		return tx.Create(&models.User{
			ID:       1,
			Username: id.username,
			Email:    id.email,
			Password: id.hash,
			IsAdmin:  true,
		}).Error

	case findErr != nil:
		return findErr

	default:
		updates := map[string]any{"is_admin": true}
		if cfg.DevRootForceCredentials {
			updates["username"] = id.username
			updates["email"] = id.email
			updates["password"] = id.hash
		}
		return tx.Model(&models.User{}).Where("id = ?", 1).Updates(updates).Error
	}
}

// syncUsersSequence keeps the users ID sequence ahead of the explicit
// ID 1 insert. PostgreSQL only; other dialects have nothing to fix.
func syncUsersSequence(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	err := tx.Exec(`
		SELECT setval(
			pg_get_serial_sequence('users', 'id'),
			GREATEST((SELECT COALESCE(MAX(id), 1) FROM users), 1),
			true
		)
	`).Error
	if err != nil {
		return fmt.Errorf("failed to reset users sequence: %w", err)
	}
	return nil
}
