package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// journalTimeFormat is fixed-width so stored timestamps sort lexically.
	journalTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteJournal implements Journal on the counter_events table.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates a journal backed by an open SQLite connection.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteJournal: Journal ready for use
func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db}
}

// Record inserts a mutation for a device.
func (j *SQLiteJournal) Record(ctx context.Context, deviceID string, m Mutation) error {
	if deviceID == "" {
		return errors.New("device id is required")
	}
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO counter_events (device_id, seq, kind, source, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		deviceID,
		int64(m.Seq),
		m.Kind.String(),
		string(m.Source),
		m.Value,
		at.UTC().Format(journalTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting counter event: %w", err)
	}
	return nil
}

// History returns recent mutations for a device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device instance identifier
//   - limit: Maximum entries to return (default 50, max 500)
//
// Returns:
//   - []JournalEntry: Entries ordered by sequence, newest first
//   - error: nil on success, otherwise the underlying query error
func (j *SQLiteJournal) History(ctx context.Context, deviceID string, limit int) ([]JournalEntry, error) {
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	limit = clampHistoryLimit(limit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, device_id, seq, kind, source, value, created_at
		 FROM counter_events
		 WHERE device_id = ?
		 ORDER BY seq DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying counter events: %w", err)
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var (
			entry     JournalEntry
			seq       int64
			kind      string
			source    string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &seq, &kind, &source, &entry.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning counter event: %w", err)
		}

		entry.Seq = uint64(seq)
		entry.Source = Source(source)
		if entry.Kind, err = ParseJobKind(kind); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseJournalTimestamp(createdAt); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counter events: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (j *SQLiteJournal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(journalTimeFormat)
	result, err := j.db.ExecContext(ctx, "DELETE FROM counter_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting counter events: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// parseJournalTimestamp parses a timestamp stored in SQLite.
func parseJournalTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("created_at is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return ts, nil
}
