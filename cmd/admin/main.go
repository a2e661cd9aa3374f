// Command admin manages admin accounts directly against the database.
//
// Subcommands:
//
//	promote <user_id|email>            grant admin to an existing user
//	demote <user_id|email>             revoke admin from a user
//	list-admins                        print every admin account
//	create <email> <username> <pass>   create a new admin account
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return usageError()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	switch args[0] {
	case "promote":
		if len(args) < 2 {
			return usageError()
		}
		return setAdmin(db, args[1], true)
	case "demote":
		if len(args) < 2 {
			return usageError()
		}
		return setAdmin(db, args[1], false)
	case "list-admins":
		return listAdmins(db)
	case "create":
		if len(args) < 4 {
			return usageError()
		}
		return createAdmin(db, args[1], args[2], args[3])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usageError() error {
	return errors.New(`usage:
  go run ./cmd/admin/main.go promote <user_id|email>
  go run ./cmd/admin/main.go demote <user_id|email>
  go run ./cmd/admin/main.go list-admins
  go run ./cmd/admin/main.go create <email> <username> <password>`)
}

// setAdmin flips the admin flag on an existing account, addressed by
// numeric ID or by email. Promote and demote are the same operation
// with opposite targets.
func setAdmin(db *gorm.DB, ident string, admin bool) error {
	var user models.User
	var err error
	if id, convErr := strconv.ParseUint(ident, 10, 64); convErr == nil {
		err = db.First(&user, id).Error
	} else {
		err = db.Where("email = ?", strings.ToLower(ident)).First(&user).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user %q not found", ident)
		}
		return fmt.Errorf("database error: %w", err)
	}

	if user.IsAdmin == admin {
		if admin {
			fmt.Printf("user %s (ID: %d) is already an admin\n", user.Username, user.ID)
		} else {
			fmt.Printf("user %s (ID: %d) is not an admin\n", user.Username, user.ID)
		}
		return nil
	}

	if err := db.Model(&user).Update("is_admin", admin).Error; err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if admin {
		fmt.Printf("✅ promoted %s (ID: %d) to admin\n", user.Username, user.ID)
	} else {
		fmt.Printf("✅ demoted %s (ID: %d) from admin\n", user.Username, user.ID)
	}
	return nil
}

func listAdmins(db *gorm.DB) error {
	var admins []models.User
	if err := db.Where("is_admin = ?", true).Order("id ASC").Find(&admins).Error; err != nil {
		return fmt.Errorf("fetch admins: %w", err)
	}

	if len(admins) == 0 {
		fmt.Println("no admin accounts exist")
		return nil
	}

	fmt.Printf("admins (%d):\n", len(admins))
	for _, a := range admins {
		fmt.Printf("  ID: %d | Username: %s | Email: %s\n", a.ID, a.Username, a.Email)
	}
	return nil
}

// createAdmin inserts a ready-made admin account. Handy for fresh
// environments where no user exists to promote.
func createAdmin(db *gorm.DB, email, username, password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username: username,
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: string(hashed),
		IsAdmin:  true,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("create admin (email or username may already be taken): %w", err)
	}

	fmt.Printf("✅ created admin %s (ID: %d)\n", user.Username, user.ID)
	return nil
}
