// Command main runs the database seeder for Inkwell.
package main

import (
	"flag"
	"log"
	"strings"

	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	preset := flag.String("preset", "", "Apply a named preset instead of generated data ("+strings.Join(seed.Presets(), ", ")+")")
	category := flag.String("distribution", "", "Generate posts with a named kind mix (qa-heavy, longform)")
	skipBcrypt := flag.Bool("skip-bcrypt", false, "Store seed passwords as plain text (fast, dev only)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	if *preset != "" {
		log.Printf("Applying preset: %s (ignoring other flags)\n", *preset)
	} else {
		log.Printf("Target: %d users, %d posts, clean=%v\n", *numUsers, *numPosts, *shouldClean)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		ShouldClean: *shouldClean,
		SkipBcrypt:  *skipBcrypt,
	})

	if *preset != "" {
		if err := s.ApplyPreset(*preset); err != nil {
			log.Fatalf("❌ Preset seeding failed: %v", err)
		}
		log.Println("✨ All done! Preset data is in place.")
		log.Println("📧 All preset users have the password: password123")
		return
	}

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	users, err := s.SeedSocialMesh(*numUsers)
	if err != nil {
		log.Fatalf("❌ User seeding failed: %v", err)
	}

	if *category != "" && len(users) > 0 {
		perUser := *numPosts / len(users)
		if perUser < 1 {
			perUser = 1
		}
		if err := s.SeedPostsWithDistribution(users, perUser, *category); err != nil {
			log.Fatalf("❌ Distribution seeding failed: %v", err)
		}
	} else {
		if _, err := s.SeedEngagement(users, *numPosts); err != nil {
			log.Fatalf("❌ Engagement seeding failed: %v", err)
		}
	}

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Println("📧 All test users have the password: password123")
}
