package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/database"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to revert with down (0 reverts all)")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run scripts/run_migrations.go [-steps N] [up|down|version]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "up":
		if err := database.MigrateUp(db); err != nil {
			log.Fatalf("Migrate up: %v", err)
		}
	case "down":
		if err := database.MigrateDown(db, *steps); err != nil {
			log.Fatalf("Migrate down: %v", err)
		}
	case "version":
	default:
		log.Printf("Unknown command %q", flag.Arg(0))
		os.Exit(2)
	}

	version, dirty, err := database.MigrationVersion(db)
	if err != nil {
		log.Fatalf("Read migration version: %v", err)
	}
	log.Printf("Schema at version %d (dirty: %t)", version, dirty)
}
