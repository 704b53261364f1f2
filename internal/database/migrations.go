package database

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				email VARCHAR(255) UNIQUE NOT NULL,
				display_name VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				role VARCHAR(32) NOT NULL DEFAULT 'user'
					CHECK (role IN ('user', 'moderator', 'super_admin')),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		`,
		Down: `
			DROP TABLE IF EXISTS users;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE SEQUENCE IF NOT EXISTS message_publish_seq;

			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY,
				user_id UUID REFERENCES users(id),
				anon_email VARCHAR(255),
				anon_student_id VARCHAR(64),
				anon_passphrase_hash VARCHAR(255),
				content TEXT NOT NULL,
				image_url TEXT,
				status VARCHAR(16) NOT NULL DEFAULT 'pending'
					CHECK (status IN ('pending', 'approved', 'rejected')),
				reject_reason TEXT,
				reviewed_by UUID,
				reviewed_at TIMESTAMPTZ,
				publish_seq BIGINT UNIQUE,
				deleted_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT messages_author_check
					CHECK (user_id IS NOT NULL OR anon_passphrase_hash IS NOT NULL),
				CONSTRAINT messages_review_check
					CHECK ((status = 'pending') = (reviewed_by IS NULL AND reviewed_at IS NULL)),
				CONSTRAINT messages_reject_reason_check
					CHECK ((status = 'rejected') = (reject_reason IS NOT NULL))
			);

			CREATE INDEX IF NOT EXISTS idx_messages_public
				ON messages(created_at DESC, id DESC)
				WHERE status = 'approved' AND deleted_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status, created_at);
			CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
		`,
		Down: `
			DROP TABLE IF EXISTS messages;
			DROP SEQUENCE IF EXISTS message_publish_seq;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE TABLE IF NOT EXISTS bans (
				id BIGSERIAL PRIMARY KEY,
				type VARCHAR(16) NOT NULL CHECK (type IN ('email', 'student_id')),
				value VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				slot BIGINT NOT NULL DEFAULT 0,
				reason TEXT NOT NULL DEFAULT '',
				created_by UUID,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				expires_at TIMESTAMPTZ,
				CONSTRAINT bans_identity_slot_key UNIQUE (type, value, active, slot),
				CONSTRAINT bans_slot_check
					CHECK ((active AND slot = 0) OR (NOT active AND slot = id))
			);

			CREATE INDEX IF NOT EXISTS idx_bans_identity ON bans(type, value, created_at DESC);
		`,
		Down: `
			DROP TABLE IF EXISTS bans;
		`,
	},
	{
		Version: 4,
		Up: `
			CREATE TABLE IF NOT EXISTS audit_logs (
				id UUID PRIMARY KEY,
				action VARCHAR(64) NOT NULL,
				actor_user_id UUID,
				meta JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC);

			CREATE OR REPLACE FUNCTION audit_logs_append_only() RETURNS trigger AS $$
			BEGIN
				RAISE EXCEPTION 'audit_logs is append-only';
			END;
			$$ LANGUAGE plpgsql;

			DROP TRIGGER IF EXISTS audit_logs_no_mutation ON audit_logs;
			CREATE TRIGGER audit_logs_no_mutation
				BEFORE UPDATE OR DELETE ON audit_logs
				FOR EACH ROW EXECUTE FUNCTION audit_logs_append_only();
		`,
		Down: `
			DROP TABLE IF EXISTS audit_logs;
			DROP FUNCTION IF EXISTS audit_logs_append_only();
		`,
	},
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range sortedMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info().Int("version", migration.Version).Msg("running migration")

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// RollbackMigration reverts the most recently applied migration. It returns
// the reverted version, or 0 if nothing was applied.
func RollbackMigration(db *sql.DB) (int, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return 0, err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return 0, err
	}
	if currentVersion == 0 {
		return 0, nil
	}

	var target *Migration
	for _, m := range sortedMigrations() {
		if m.Version == currentVersion {
			m := m
			target = &m
		}
	}
	if target == nil {
		return 0, fmt.Errorf("applied migration %d is unknown to this binary", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(target.Down); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to revert migration %d: %w", target.Version, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", target.Version); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to unrecord migration %d: %w", target.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rollback %d: %w", target.Version, err)
	}
	return target.Version, nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
