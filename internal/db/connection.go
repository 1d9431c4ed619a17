package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Supported journal backends.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

const scanLogSchema = `
CREATE TABLE IF NOT EXISTS scan_log (
	id            VARCHAR(36) PRIMARY KEY,
	station_id    TEXT NOT NULL,
	ticket_id     TEXT NOT NULL DEFAULT '',
	ticket_number TEXT NOT NULL DEFAULT '',
	event_id      TEXT NOT NULL DEFAULT '',
	status        VARCHAR(16) NOT NULL,
	reason        VARCHAR(32) NOT NULL DEFAULT '',
	detail        TEXT NOT NULL DEFAULT '',
	scanned_at    TIMESTAMP NOT NULL
)`

const scanLogIndex = `CREATE INDEX IF NOT EXISTS idx_scan_log_scanned_at ON scan_log (scanned_at)`

// Journals created before the identifier columns were TEXT.
const scanLogWidenPostgres = `
ALTER TABLE scan_log
	ALTER COLUMN station_id TYPE TEXT,
	ALTER COLUMN ticket_id TYPE TEXT,
	ALTER COLUMN ticket_number TYPE TEXT,
	ALTER COLUMN event_id TYPE TEXT`

// NewDB opens the scan journal and creates its schema.
func NewDB(dbType, url string) (*sqlx.DB, error) {
	if dbType != TypeSQLite && dbType != TypePostgres {
		return nil, fmt.Errorf("unsupported journal type %q", dbType)
	}
	db, err := sqlx.Open(dbType, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s journal: %w", dbType, err)
	}
	if dbType == TypeSQLite {
		// database/sql would otherwise hand out separate in-memory databases.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s journal: %w", dbType, err)
	}
	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("scan journal ready", "type", dbType)
	return db, nil
}

// CreateSchema creates the scan_log table if it does not exist.
func CreateSchema(db *sqlx.DB) error {
	stmts := []string{scanLogSchema, scanLogIndex}
	if db.DriverName() == TypePostgres {
		stmts = append(stmts, scanLogWidenPostgres)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}
