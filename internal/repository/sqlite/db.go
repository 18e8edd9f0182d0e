package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) a SQLite database using the configured URL.
// Supported formats:
//   - sqlite3:./data.db
//   - sqlite:./data.db
//   - file:./data.db
func Open(databaseURL string) (*sql.DB, error) {
	dsn := normalizeDSN(databaseURL)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite works best with a single writer connection for WAL
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func normalizeDSN(databaseURL string) string {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		dsn = "./data.db"
	}

	if idx := strings.Index(dsn, ":"); idx != -1 {
		prefix := dsn[:idx]
		if prefix == "sqlite3" || prefix == "sqlite" {
			dsn = dsn[idx+1:]
		}
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "./data.db"
	}

	if !strings.HasPrefix(dsn, "file:") {
		if !strings.Contains(dsn, ":/") && !strings.HasPrefix(dsn, "./") && !strings.HasPrefix(dsn, "/") {
			dsn = "./" + dsn
		}
		dsn = "file:" + filepath.Clean(dsn)
	}

	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	return dsn
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("configure sqlite pragma (%s): %w", pragma, err)
		}
	}
	return nil
}

func ensureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			proxy TEXT,
			status TEXT NOT NULL DEFAULT 'unknown',
			shadow_ban TEXT NOT NULL DEFAULT 'unchecked',
			last_checked_at TIMESTAMP NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_posts (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			content TEXT NOT NULL,
			media_ids TEXT NOT NULL DEFAULT '[]',
			scheduled_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			remote_id TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY(account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_status_scheduled ON scheduled_posts(status, scheduled_at);`,
		`CREATE TABLE IF NOT EXISTS media (
			id TEXT PRIMARY KEY,
			account_id TEXT,
			file_path TEXT NOT NULL,
			mime_type TEXT,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS proxy_assignments (
			account_id TEXT PRIMARY KEY,
			proxy_url TEXT NOT NULL,
			assigned_at TIMESTAMP NOT NULL,
			FOREIGN KEY(account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// Columns added after the first release. ALTER TABLE has no IF NOT EXISTS,
	// so check pragma_table_info first.
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"accounts", "shadow_ban", `ALTER TABLE accounts ADD COLUMN shadow_ban TEXT NOT NULL DEFAULT 'unchecked'`},
		{"scheduled_posts", "remote_id", `ALTER TABLE scheduled_posts ADD COLUMN remote_id TEXT`},
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&count); err != nil {
			return fmt.Errorf("inspect %s.%s: %w", m.table, m.column, err)
		}
		if count == 0 {
			if _, err := db.Exec(m.ddl); err != nil {
				return fmt.Errorf("add column %s.%s: %w", m.table, m.column, err)
			}
		}
	}

	return nil
}
