package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteDB struct {
	db *sql.DB
}

var _ Store = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection: every statement is serialized and ":memory:" databases
	// are shared by all callers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS alert_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			conditions TEXT NOT NULL DEFAULT '{}',
			template TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL DEFAULT 0,
			created_by INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			trigger_data BLOB,
			external_event_id TEXT,
			affected_areas TEXT NOT NULL DEFAULT '[]',
			latitude REAL,
			longitude REAL,
			radius_km REAL,
			is_active INTEGER NOT NULL DEFAULT 1,
			auto_approved INTEGER NOT NULL DEFAULT 0,
			approved_by INTEGER,
			approved_at INTEGER,
			created_by INTEGER,
			expires_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS automation_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trigger_type TEXT NOT NULL,
			trigger_data BLOB,
			rule_id INTEGER,
			rule_name TEXT,
			alert_id INTEGER,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			users_targeted INTEGER NOT NULL DEFAULT 0,
			users_notified INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notification_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id INTEGER NOT NULL,
			recipient_type TEXT NOT NULL,
			recipient_id INTEGER,
			recipient_info TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS recipients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			city TEXT NOT NULL DEFAULT '',
			province TEXT NOT NULL DEFAULT '',
			latitude REAL,
			longitude REAL,
			on_duty INTEGER NOT NULL DEFAULT 0,
			emergency_contact_name TEXT NOT NULL DEFAULT '',
			emergency_contact_phone TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS device_tokens (
			recipient_id INTEGER NOT NULL,
			token TEXT NOT NULL,
			PRIMARY KEY (recipient_id, token),
			FOREIGN KEY (recipient_id) REFERENCES recipients(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS notification_preferences (
			recipient_id INTEGER PRIMARY KEY,
			weather INTEGER NOT NULL DEFAULT 1,
			earthquake INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (recipient_id) REFERENCES recipients(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_rules_type_active ON alert_rules(type, is_active, priority);
		CREATE INDEX IF NOT EXISTS idx_alerts_source_created ON alerts(source, created_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_source_event ON alerts(source, external_event_id) WHERE external_event_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_logs_alert_id ON automation_logs(alert_id);
		CREATE INDEX IF NOT EXISTS idx_logs_created ON automation_logs(created_at);
		CREATE INDEX IF NOT EXISTS idx_attempts_alert_id ON notification_attempts(alert_id);
  	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func now(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
