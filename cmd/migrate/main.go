package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/HFI-UC/UtiOpia-sub001/config"
	"github.com/HFI-UC/UtiOpia-sub001/internal/database"
	"github.com/HFI-UC/UtiOpia-sub001/internal/logger"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/migrate/main.go [up|down|status]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Logger = logger.Setup(cfg.Log.Level, true, os.Stderr)

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	switch command {
	case "up":
		log.Info().Msg("Running migrations...")
		if err := database.RunMigrations(db); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		log.Info().Msg("Migrations completed successfully")

	case "status":
		showMigrationStatus(db)

	case "down":
		version, err := database.RollbackMigration(db)
		if err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		if version == 0 {
			log.Info().Msg("Nothing to roll back")
			return
		}
		log.Info().Int("version", version).Msg("Rolled back migration")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Available commands: up, down, status")
		os.Exit(1)
	}
}

func showMigrationStatus(db *sql.DB) {
	rows, err := db.Query("SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		log.Warn().Err(err).Msg("No migrations found or table doesn't exist")
		return
	}
	defer rows.Close()

	fmt.Println("\nApplied Migrations:")
	fmt.Println("-------------------")
	for rows.Next() {
		var version int
		var appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			log.Error().Err(err).Msg("Error scanning row")
			continue
		}
		fmt.Printf("Version %d - Applied at: %s\n", version, appliedAt)
	}
}
