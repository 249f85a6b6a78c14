package record

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/brandon/mailsync/pkg/types"
)

// Schema contains the SQL schema for the record store
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    kind TEXT NOT NULL,
    key TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (kind, key)
);

CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
`

// SQLiteStore is the reference Store implementation backed by a local
// SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) a record store at dbPath
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("Record store initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the document stored under (kind, key)
func (s *SQLiteStore) Get(kind, key string) (json.RawMessage, bool, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM records WHERE kind = ? AND key = ?", kind, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &types.QueryError{Kind: kind, Err: err}
	}
	return json.RawMessage(data), true, nil
}

// Put stores a document under (kind, key), replacing any previous one
func (s *SQLiteStore) Put(kind, key string, doc json.RawMessage) error {
	query := `
		INSERT INTO records (kind, key, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(kind, key) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.Exec(query, kind, key, string(doc)); err != nil {
		return &types.StorageError{Kind: kind, Key: key, Err: err}
	}
	return nil
}

// Query returns all documents of a kind whose top-level field equals value
func (s *SQLiteStore) Query(kind, field, value string) ([]StoredRecord, error) {
	rows, err := s.db.Query(
		"SELECT key, data FROM records WHERE kind = ? AND json_extract(data, ?) = ?",
		kind, "$."+field, value,
	)
	if err != nil {
		return nil, &types.QueryError{Kind: kind, Err: err}
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var rec StoredRecord
		var data string
		if err := rows.Scan(&rec.Key, &data); err != nil {
			return nil, &types.QueryError{Kind: kind, Err: err}
		}
		rec.Kind = kind
		rec.Data = json.RawMessage(data)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.QueryError{Kind: kind, Err: err}
	}

	return out, nil
}

// Count reports how many documents Query would return
func (s *SQLiteStore) Count(kind, field, value string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM records WHERE kind = ? AND json_extract(data, ?) = ?",
		kind, "$."+field, value,
	).Scan(&count)
	if err != nil {
		return 0, &types.QueryError{Kind: kind, Err: err}
	}
	return count, nil
}
