package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/miradorstack/graviton-inventory/internal/models"
)

// DefaultTable holds detection records when no table is configured.
const DefaultTable = "detection_records"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore writes detection records to a PostgreSQL table.
type PostgresStore struct {
	db     *sql.DB
	table  string
	insert string
}

// OpenPostgres connects to PostgreSQL and verifies the connection.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store, err := NewPostgresStore(db, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing handle. table must be a plain identifier.
func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("postgres handle is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	quoted := pq.QuoteIdentifier(table)
	return &PostgresStore{
		db:    db,
		table: quoted,
		insert: `INSERT INTO ` + quoted + ` (scan_id, application_key, name, category, resolved_version,
version_source, detection_method, compatibility_status, compatibility_notes, evidence, detected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
	}, nil
}

// EnsureSchema creates the records table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
	id BIGSERIAL PRIMARY KEY,
	scan_id TEXT NOT NULL,
	application_key TEXT NOT NULL,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	resolved_version TEXT NOT NULL,
	version_source TEXT NOT NULL,
	detection_method TEXT NOT NULL,
	compatibility_status TEXT NOT NULL,
	compatibility_notes TEXT NOT NULL DEFAULT '',
	evidence JSONB NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Save inserts record and returns the generated row id.
func (s *PostgresStore) Save(ctx context.Context, record models.DetectionRecord) (string, error) {
	evidence, err := json.Marshal(record.Evidence)
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.insert,
		record.ScanID,
		record.ApplicationKey,
		record.Name,
		string(record.Category),
		record.ResolvedVersion,
		string(record.VersionSource),
		string(record.DetectionMethod),
		string(record.CompatibilityStatus),
		record.CompatibilityNotes,
		evidence,
		record.DetectedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert detection record: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
