package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a routed command ended.
type Outcome string

// Outcomes recorded by the command router.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeFailed         Outcome = "failed"
	OutcomeMalformed      Outcome = "malformed"
	OutcomeMissingCommand Outcome = "missing_command"
	OutcomeUnknown        Outcome = "unknown"
)

// timeLayout keeps received_at lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Limits for Recent.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one journal row.
type Entry struct {
	ID         string          `json:"id"`
	CommandID  string          `json:"command_id,omitempty"`
	TraceID    string          `json:"trace_id"`
	Command    string          `json:"command"`
	Params     json.RawMessage `json:"params,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	Detail     string          `json:"detail,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Repository defines the journal operations.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// SQLiteRepository stores the journal in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal repository on an open database
// whose migrations have been applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record appends an entry. ID, TraceID and ReceivedAt are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()
	}
	if entry.TraceID == "" {
		entry.TraceID = uuid.NewString()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}

	var params any
	if len(entry.Params) > 0 {
		params = string(entry.Params)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, command_id, trace_id, command, params, outcome, detail, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullableString(entry.CommandID), entry.TraceID, entry.Command,
		params, string(entry.Outcome), entry.Detail,
		entry.ReceivedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// uses the default of 50.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, command_id, trace_id, command, params, outcome, detail, received_at
		 FROM command_journal ORDER BY received_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			commandID  sql.NullString
			params     sql.NullString
			outcome    string
			receivedAt string
		)
		if err := rows.Scan(&e.ID, &commandID, &e.TraceID, &e.Command, &params, &outcome, &e.Detail, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.CommandID = commandID.String
		if params.Valid {
			e.Params = json.RawMessage(params.String)
		}
		e.Outcome = Outcome(outcome)

		t, err := time.Parse(timeLayout, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", receivedAt, err)
		}
		e.ReceivedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return entries, nil
}

// nullableString returns nil for empty strings so the column stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
