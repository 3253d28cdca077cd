package db

import (
	"fmt"
	"log"
	"strconv"
)

// RunMigrateCommand handles the migrate subcommand of hamclockd. It opens
// the database at dbPath, applies the requested migration action using the
// embedded sources, and exits via log.Fatalf on misuse.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		log.Fatalf("migrate: missing action")
	}

	action := args[0]
	if action == "help" {
		PrintMigrateHelp()
		return
	}

	migrations, err := MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", dbPath, err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Println("✓ All migrations applied successfully")

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		fmt.Println("✓ Rolled back one migration")

	case "status", "version":
		version, dirty, err := database.MigrateVersion(migrations)
		if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
		latest, err := LatestMigrationVersion(migrations)
		if err != nil {
			log.Fatalf("Failed to read latest migration version: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Latest version:  %d\n", latest)
		if dirty {
			fmt.Println("State: DIRTY (a migration failed part way; use 'migrate force' to recover)")
		} else if version == latest {
			fmt.Println("State: up to date")
		} else {
			fmt.Println("State: pending migrations (run 'hamclockd migrate up')")
		}

	case "force":
		if len(args) < 2 {
			log.Fatalf("Usage: hamclockd migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", args[1], err)
		}
		if err := database.MigrateForce(migrations, version); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		fmt.Printf("✓ Forced migration version to %d\n", version)

	case "goto":
		if len(args) < 2 {
			log.Fatalf("Usage: hamclockd migrate goto <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil || version < 0 {
			log.Fatalf("Invalid version %q", args[1])
		}
		if err := database.MigrateTo(migrations, uint(version)); err != nil {
			log.Fatalf("Migration to version %d failed: %v", version, err)
		}
		fmt.Printf("✓ Migrated to version %d\n", version)

	default:
		PrintMigrateHelp()
		log.Fatalf("migrate: unknown action %q", action)
	}
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Println(`Usage: hamclockd migrate <action> [args]

Actions:
  up              Apply all pending migrations
  down            Roll back the most recent migration
  status          Show current and latest schema versions
  version         Alias for status
  goto <version>  Migrate up or down to a specific version
  force <version> Force the recorded version without running migrations
  help            Show this help`)
}
