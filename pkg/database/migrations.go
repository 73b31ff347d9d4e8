package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elad014/stockwatch/pkg/logger"
	"go.uber.org/zap"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create users and stocks tables",
		UpSQL: `
			-- Create users table
			CREATE TABLE IF NOT EXISTS users (
				user_id BIGSERIAL PRIMARY KEY,
				full_name VARCHAR(100) NOT NULL,
				password VARCHAR(255) NOT NULL,
				email VARCHAR(255) UNIQUE NOT NULL,
				phone_number VARCHAR(20),
				country VARCHAR(56),
				user_type SMALLINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

			-- Create stocks table. Price and volume stay NULL until the
			-- first successful refresh.
			CREATE TABLE IF NOT EXISTS stocks (
				name VARCHAR(10) PRIMARY KEY,
				company VARCHAR(100),
				price DECIMAL(20,4) CHECK (price IS NULL OR price > 0),
				trading_volume BIGINT CHECK (trading_volume IS NULL OR trading_volume >= 0),
				avg_trading_volume DECIMAL(20,2),
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_stocks_price ON stocks(price DESC NULLS LAST);
		`,
		DownSQL: `
			DROP TABLE IF EXISTS stocks;
			DROP TABLE IF EXISTS users;
		`,
	},
	{
		Version:     2,
		Description: "Add updated_at trigger for stocks",
		UpSQL: `
			CREATE OR REPLACE FUNCTION update_updated_at_column()
			RETURNS TRIGGER AS $$
			BEGIN
				NEW.updated_at = NOW();
				RETURN NEW;
			END;
			$$ language 'plpgsql';

			CREATE TRIGGER update_stocks_updated_at BEFORE UPDATE ON stocks
				FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
		`,
		DownSQL: `
			DROP TRIGGER IF EXISTS update_stocks_updated_at ON stocks;
			DROP FUNCTION IF EXISTS update_updated_at_column();
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger.Log.Info("starting database migrations")

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range Migrations {
		if applied[migration.Version] {
			logger.Log.Debug("migration already applied", zap.Int("version", migration.Version))
			continue
		}

		logger.Log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))

		if err := db.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}

		logger.Log.Info("migration applied successfully", zap.Int("version", migration.Version))
	}

	logger.Log.Info("database migrations completed")
	return nil
}

// createMigrationsTable creates the migrations tracking table
func (db *DB) createMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// getAppliedMigrations returns a map of applied migration versions
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	query := `SELECT version FROM migrations ORDER BY version`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// applyMigration applies a single migration
func (db *DB) applyMigration(ctx context.Context, migration Migration) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}

		query := `INSERT INTO migrations (version, description) VALUES ($1, $2)`
		if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Description); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// GetMigrationStatus returns the status of all migrations
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var status []MigrationStatus
	for _, migration := range Migrations {
		ms := MigrationStatus{
			Version:     migration.Version,
			Applied:     applied[migration.Version],
			Description: migration.Description,
		}

		if ms.Applied {
			query := `SELECT applied_at FROM migrations WHERE version = $1`
			var appliedAt time.Time
			if err := db.QueryRowContext(ctx, query, migration.Version).Scan(&appliedAt); err == nil {
				ms.AppliedAt = appliedAt
			}
		}

		status = append(status, ms)
	}

	return status, nil
}
