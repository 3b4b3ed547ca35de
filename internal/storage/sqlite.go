package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dachid/flowscope/internal/shared/types"
)

// SQLite is a Store backed by a SQLite database file
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite store at path. An empty path
// uses an in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		start_time    TEXT NOT NULL,
		end_time      TEXT,
		status        TEXT NOT NULL,
		total_traces  INTEGER NOT NULL DEFAULT 0,
		error_count   INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		metadata      TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS traces (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		parent_id   TEXT,
		timestamp   TEXT NOT NULL,
		type        TEXT NOT NULL,
		status      TEXT NOT NULL,
		data        TEXT NOT NULL DEFAULT '{}',
		metadata    TEXT NOT NULL DEFAULT '{}',
		duration_ms REAL
	);

	CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTrace inserts a trace; resubmitting the same ID updates in place,
// keeping the original rowid so replay order is stable.
func (s *SQLite) SaveTrace(ctx context.Context, t *types.Trace) error {
	data, err := json.Marshal(orEmpty(t.Data))
	if err != nil {
		return fmt.Errorf("failed to encode trace data: %w", err)
	}
	meta, err := json.Marshal(orEmpty(t.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode trace metadata: %w", err)
	}

	var parent sql.NullString
	if t.ParentID != nil {
		parent = sql.NullString{String: *t.ParentID, Valid: true}
	}
	var duration sql.NullFloat64
	if t.DurationMs != nil {
		duration = sql.NullFloat64{Float64: *t.DurationMs, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO traces (id, session_id, parent_id, timestamp, type, status, data, metadata, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			parent_id = excluded.parent_id,
			timestamp = excluded.timestamp,
			type = excluded.type,
			status = excluded.status,
			data = excluded.data,
			metadata = excluded.metadata,
			duration_ms = excluded.duration_ms`,
		t.ID, t.SessionID, parent, formatTime(t.Timestamp), string(t.Type), string(t.Status),
		string(data), string(meta), duration,
	)
	return err
}

// LoadSessionTraces returns a session's traces in first-write order
func (s *SQLite) LoadSessionTraces(ctx context.Context, sessionID string) ([]types.Trace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, parent_id, timestamp, type, status, data, metadata, duration_ms
		FROM traces WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTraces(rows)
}

// LoadTracesByIDs returns the named traces, silently skipping unknown IDs
func (s *SQLite) LoadTracesByIDs(ctx context.Context, ids []string) ([]types.Trace, error) {
	if len(ids) == 0 {
		return []types.Trace{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, session_id, parent_id, timestamp, type, status, data, metadata, duration_ms
		FROM traces WHERE id IN (%s) ORDER BY rowid`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTraces(rows)
}

// SaveSession stores session metadata, replacing any previous record
func (s *SQLite) SaveSession(ctx context.Context, sess *types.Session) error {
	meta, err := json.Marshal(orEmpty(sess.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}

	var endTime sql.NullString
	if sess.EndTime != nil {
		endTime = sql.NullString{String: formatTime(*sess.EndTime), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, start_time, end_time, status, total_traces, error_count, success_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			status = excluded.status,
			total_traces = excluded.total_traces,
			error_count = excluded.error_count,
			success_count = excluded.success_count,
			metadata = excluded.metadata`,
		sess.ID, sess.Name, formatTime(sess.StartTime), endTime, string(sess.Status),
		sess.TotalTraces, sess.ErrorCount, sess.SuccessCount, string(meta),
	)
	return err
}

// LoadSession returns a session or ErrNotFound
func (s *SQLite) LoadSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_time, end_time, status, total_traces, error_count, success_count, metadata
		FROM sessions WHERE id = ?`, id)

	var sess types.Session
	var startTime string
	var endTime sql.NullString
	var status, meta string

	err := row.Scan(&sess.ID, &sess.Name, &startTime, &endTime, &status,
		&sess.TotalTraces, &sess.ErrorCount, &sess.SuccessCount, &meta)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.Status = types.SessionStatus(status)
	if sess.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("failed to parse session start time: %w", err)
	}
	if endTime.Valid {
		et, err := parseTime(endTime.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session end time: %w", err)
		}
		sess.EndTime = &et
	}
	if err := json.Unmarshal([]byte(meta), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	return &sess, nil
}

// UpdateSessionCounters adjusts a session's aggregate counters
func (s *SQLite) UpdateSessionCounters(ctx context.Context, id string, delta CounterDelta) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			total_traces = total_traces + ?,
			error_count = error_count + ?,
			success_count = success_count + ?
		WHERE id = ?`,
		delta.Traces, delta.Errors, delta.Successes, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanTraces(rows *sql.Rows) ([]types.Trace, error) {
	traces := []types.Trace{}
	for rows.Next() {
		var t types.Trace
		var parent sql.NullString
		var timestamp, traceType, status, data, meta string
		var duration sql.NullFloat64

		if err := rows.Scan(&t.ID, &t.SessionID, &parent, &timestamp, &traceType,
			&status, &data, &meta, &duration); err != nil {
			return nil, err
		}

		if parent.Valid {
			p := parent.String
			t.ParentID = &p
		}
		var err error
		if t.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, fmt.Errorf("failed to parse trace timestamp: %w", err)
		}
		t.Type = types.TraceType(traceType)
		t.Status = types.TraceStatus(status)
		if err := json.Unmarshal([]byte(data), &t.Data); err != nil {
			return nil, fmt.Errorf("failed to decode trace data: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode trace metadata: %w", err)
		}
		if duration.Valid {
			d := duration.Float64
			t.DurationMs = &d
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
