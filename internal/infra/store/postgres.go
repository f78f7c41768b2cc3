package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

const schema = `
CREATE TABLE IF NOT EXISTS user_preferences (
	id                  smallint PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	selected_backend_id text NOT NULL DEFAULT 'auto',
	priority_order      text NOT NULL DEFAULT '',
	force_cpu           boolean NOT NULL DEFAULT false,
	updated_at          timestamptz NOT NULL DEFAULT now()
)`

// PostgresStore persists the preference in a single-row table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects, verifies the connection and ensures the schema.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(4)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type prefRow struct {
	SelectedBackendID string `db:"selected_backend_id"`
	PriorityOrder     string `db:"priority_order"`
	ForceCPU          bool   `db:"force_cpu"`
}

// Read returns the stored preference, or the default when none was saved.
func (s *PostgresStore) Read(ctx context.Context) (Preference, error) {
	var row prefRow
	err := s.db.GetContext(ctx, &row,
		`SELECT selected_backend_id, priority_order, force_cpu FROM user_preferences WHERE id = 1`)
	if err == sql.ErrNoRows {
		return DefaultPreference(), nil
	}
	if err != nil {
		return Preference{}, fmt.Errorf("failed to read preference: %w", err)
	}

	return Preference{
		SelectedBackendID: row.SelectedBackendID,
		PriorityOrder:     splitKinds(row.PriorityOrder),
		ForceCPU:          row.ForceCPU,
	}, nil
}

// Write upserts the preference.
func (s *PostgresStore) Write(ctx context.Context, pref Preference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (id, selected_backend_id, priority_order, force_cpu, updated_at)
		 VALUES (1, $1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET
			selected_backend_id = EXCLUDED.selected_backend_id,
			priority_order = EXCLUDED.priority_order,
			force_cpu = EXCLUDED.force_cpu,
			updated_at = now()`,
		pref.SelectedBackendID, joinKinds(pref.PriorityOrder), pref.ForceCPU)
	if err != nil {
		return fmt.Errorf("failed to write preference: %w", err)
	}
	return nil
}
