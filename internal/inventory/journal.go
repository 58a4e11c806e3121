package inventory

import (
	"context"
	"fmt"
	"time"
)

// JournalState tracks how far a relocation got.
type JournalState string

const (
	// JournalPending is recorded before the file is moved.
	JournalPending JournalState = "pending"
	// JournalMoved means the file is at new_url but references may still
	// point at old_url.
	JournalMoved JournalState = "moved"
)

// JournalRow is one in-flight relocation.
type JournalRow struct {
	OldURL    string
	NewURL    string
	State     JournalState
	UpdatedAt time.Time
}

// JournalRecord stores a pending move, replacing any earlier row for oldURL.
func (db *DB) JournalRecord(ctx context.Context, oldURL, newURL string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO relocation_journal (old_url, new_url, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(old_url) DO UPDATE SET
			new_url    = excluded.new_url,
			state      = excluded.state,
			updated_at = excluded.updated_at
	`, oldURL, newURL, JournalPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inventory: journal record: %w", err)
	}
	return nil
}

// JournalMark updates the state of the row for oldURL.
func (db *DB) JournalMark(ctx context.Context, oldURL string, state JournalState) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE relocation_journal SET state = ?, updated_at = ? WHERE old_url = ?`,
		state, time.Now().UTC(), oldURL)
	if err != nil {
		return fmt.Errorf("inventory: journal mark: %w", err)
	}
	return nil
}

// JournalList returns every row ordered by old_url.
func (db *DB) JournalList(ctx context.Context) ([]JournalRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT old_url, new_url, state, updated_at FROM relocation_journal ORDER BY old_url`)
	if err != nil {
		return nil, fmt.Errorf("inventory: journal list: %w", err)
	}
	defer rows.Close()
	var out []JournalRow
	for rows.Next() {
		var r JournalRow
		if err := rows.Scan(&r.OldURL, &r.NewURL, &r.State, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// JournalDelete removes the row for oldURL.
func (db *DB) JournalDelete(ctx context.Context, oldURL string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM relocation_journal WHERE old_url = ?`, oldURL); err != nil {
		return fmt.Errorf("inventory: journal delete: %w", err)
	}
	return nil
}
