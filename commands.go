package main

import (
	"fmt"
	"log"
	"os"

	"github.com/eedt-data/drift.report/internal/store"
)

// runMigrateCommand handles the 'migrate' subcommand dispatching
func runMigrateCommand(args []string, dbPath, migrationsDir string) {
	if len(args) < 1 {
		printMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	db, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := db.MigrateUp(migrationsDir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied successfully")
		version, dirty, _ := db.MigrateVersion(migrationsDir)
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := db.MigrateDown(migrationsDir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration rolled back successfully")
		version, dirty, _ := db.MigrateVersion(migrationsDir)
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "status":
		version, dirty, err := db.MigrateVersion(migrationsDir)
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		fmt.Println("=== Migration Status ===")
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Dirty: %v\n", dirty)
		if dirty {
			fmt.Println("\nWARNING: database is in a dirty state; a migration failed mid-execution.")
		}

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		printMigrateHelp()
		os.Exit(1)
	}
}

// printMigrateHelp displays the help message for the migrate command
func printMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: drift-report migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up        Apply all pending migrations")
	fmt.Println("  down      Rollback one migration")
	fmt.Println("  status    Show current migration status and version")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  drift-report migrate up")
	fmt.Println("  drift-report migrate status")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -db <path>          Path to database file (default: drift_runs.db)")
	fmt.Println("  -migrations <dir>   Path to migrations directory (default: migrations)")
}
