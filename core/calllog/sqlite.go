package calllog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS call_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        call_id INTEGER,
        completed_at INTEGER,
        zone_id TEXT,
        priority INTEGER,
        closure TEXT,
        record TEXT
    );
    CREATE INDEX IF NOT EXISTS call_log_completed ON call_log (completed_at);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record to the database.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO call_log (call_id, completed_at, zone_id, priority, closure, record) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.CompletedAt.UnixNano(), rec.ZoneID, int(rec.Priority), rec.Closure, string(b))
	return err
}

// Query returns records matching q ordered by completion time. Unit
// filtering happens after decoding since units are stored in the record.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT record FROM call_log WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND completed_at >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND completed_at <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.ZoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, q.ZoneID)
	}
	if q.Priority != 0 {
		query += ` AND priority = ?`
		args = append(args, int(q.Priority))
	}
	if q.Closure != "" {
		query += ` AND closure = ?`
		args = append(args, q.Closure)
	}
	query += ` ORDER BY completed_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		if !q.Match(r) {
			continue
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
