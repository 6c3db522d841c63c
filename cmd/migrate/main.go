package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

func main() {
	if err := env.SetupEnvFile(); err != nil {
		log.Printf("[Migrate] %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Migrate] load config: %v", err)
	}
	db := cfg.Database
	log.Printf("[Migrate] Connecting to %s@%s:%s/%s", db.User, db.Host, db.Port, db.Name)

	m, err := migrate.New(env.GetEnv("MIGRATIONS_SOURCE", "file://migrations"), db.MigrateURL())
	if err != nil {
		log.Fatalf("[Migrate] init: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("[Migrate] close: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Println("[Migrate] No change: database is up to date")
		case err != nil:
			log.Fatalf("[Migrate] up: %v", err)
		default:
			log.Println("[Migrate] Migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("[Migrate] down: %v", err)
		}
		log.Println("[Migrate] Rolled back the last migration")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatalf("[Migrate] goto needs a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("[Migrate] invalid version: %v", err)
		}
		err = m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Printf("[Migrate] No change: database is already at version %d", version)
		case err != nil:
			log.Fatalf("[Migrate] goto %d: %v", version, err)
		default:
			log.Printf("[Migrate] Migrated to version %d", version)
		}

	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Println("[Migrate] No migrations applied yet")
		case err != nil:
			log.Fatalf("[Migrate] version: %v", err)
		default:
			suffix := ""
			if dirty {
				suffix = " (dirty)"
			}
			log.Printf("[Migrate] Current version: %d%s", version, suffix)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run ./cmd/migrate [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - print the current migration version")
}
