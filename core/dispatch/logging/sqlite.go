package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// The full record is kept as JSON. cycle_carriers indexes every carrier a
// cycle considered or matched so carrier queries stay in SQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS dispatch_cycles (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		ts     INTEGER NOT NULL,
		fleet  TEXT NOT NULL,
		record TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS dispatch_cycles_fleet_ts ON dispatch_cycles (fleet, ts)`,
	`CREATE TABLE IF NOT EXISTS cycle_carriers (
		cycle_id INTEGER NOT NULL REFERENCES dispatch_cycles (id) ON DELETE CASCADE,
		carrier  TEXT NOT NULL,
		PRIMARY KEY (carrier, cycle_id)
	)`,
	`PRAGMA foreign_keys = ON`,
}

// SQLiteStore keeps dispatch cycles in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and creates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps PRAGMA settings and in-memory databases shared.
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, errors.Join(fmt.Errorf("schema: %w", err), db.Close())
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Append stores rec and its carriers in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, rec LogRecord) (err error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO dispatch_cycles (ts, fleet, record) VALUES (?, ?, ?)`,
		rec.Timestamp.UnixNano(), rec.Fleet, string(data))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, c := range involved(rec) {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO cycle_carriers (cycle_id, carrier) VALUES (?, ?)`, id, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func involved(rec LogRecord) []string {
	out := append([]string(nil), rec.Carriers...)
	for _, p := range rec.Pairs {
		out = append(out, p.Carrier)
	}
	return out
}

// Query returns the matching records in time order.
func (s *SQLiteStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	var (
		where []string
		args  []any
	)
	if !q.Start.IsZero() {
		where = append(where, `ts >= ?`)
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		where = append(where, `ts <= ?`)
		args = append(args, q.End.UnixNano())
	}
	if q.Fleet != "" {
		where = append(where, `fleet = ?`)
		args = append(args, q.Fleet)
	}
	if q.Carrier != "" {
		where = append(where, `id IN (SELECT cycle_id FROM cycle_carriers WHERE carrier = ?)`)
		args = append(args, q.Carrier)
	}
	query := `SELECT record FROM dispatch_cycles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY ts, id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []LogRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r LogRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode cycle: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Prune deletes cycles recorded before t and reports how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_cycles WHERE ts < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
