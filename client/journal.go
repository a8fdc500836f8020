package client

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Journal persists every submitted transition so that crashes or dropped
// connections leave an auditable pending row instead of a silently lost
// request. A row is written before submission and resolved after the node
// answers; rows that stay pending are candidates for reconciliation.
type Journal struct {
	db *sql.DB
}

// Transition journal row statuses.
const (
	JournalPending   = "pending"
	JournalConfirmed = "confirmed"
	JournalFailed    = "failed"
)

// JournalEntry is one recorded transition attempt.
type JournalEntry struct {
	PendingRef  string
	BookingID   uint64
	Operation   string
	Status      string
	TxHash      string
	Reason      string
	SubmittedAt time.Time
	ResolvedAt  time.Time
}

func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS transitions (
        pending_ref TEXT PRIMARY KEY,
        booking_id INTEGER NOT NULL,
        operation TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        tx_hash TEXT,
        reason TEXT,
        submitted_at TIMESTAMP NOT NULL,
        resolved_at TIMESTAMP
    );`
	_, err := j.db.Exec(schema)
	return err
}

func (j *Journal) Close() error { return j.db.Close() }

// Begin records a transition about to be submitted.
func (j *Journal) Begin(ctx context.Context, pendingRef string, bookingID uint64, operation string) error {
	const stmt = `INSERT INTO transitions(pending_ref, booking_id, operation, status, submitted_at) VALUES (?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, stmt, pendingRef, bookingID, operation, JournalPending, time.Now().UTC())
	return err
}

// Resolve marks a pending transition as confirmed or failed.
func (j *Journal) Resolve(ctx context.Context, pendingRef, status, txHash, reason string) error {
	if status != JournalConfirmed && status != JournalFailed {
		return errors.New("journal: resolve status must be confirmed or failed")
	}
	const stmt = `UPDATE transitions SET status = ?, tx_hash = ?, reason = ?, resolved_at = ? WHERE pending_ref = ? AND status = ?`
	res, err := j.db.ExecContext(ctx, stmt, status, txHash, reason, time.Now().UTC(), pendingRef, JournalPending)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("journal: no pending transition for ref")
	}
	return nil
}

// Pending returns unresolved transitions in submission order.
func (j *Journal) Pending(ctx context.Context) ([]JournalEntry, error) {
	const query = `SELECT pending_ref, booking_id, operation, status, COALESCE(tx_hash, ''), COALESCE(reason, ''), submitted_at FROM transitions WHERE status = ? ORDER BY submitted_at ASC`
	rows, err := j.db.QueryContext(ctx, query, JournalPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		if err := rows.Scan(&entry.PendingRef, &entry.BookingID, &entry.Operation, &entry.Status, &entry.TxHash, &entry.Reason, &entry.SubmittedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Get fetches one journal entry by its pending reference.
func (j *Journal) Get(ctx context.Context, pendingRef string) (*JournalEntry, error) {
	const query = `SELECT pending_ref, booking_id, operation, status, COALESCE(tx_hash, ''), COALESCE(reason, ''), submitted_at FROM transitions WHERE pending_ref = ?`
	row := j.db.QueryRowContext(ctx, query, pendingRef)
	var entry JournalEntry
	if err := row.Scan(&entry.PendingRef, &entry.BookingID, &entry.Operation, &entry.Status, &entry.TxHash, &entry.Reason, &entry.SubmittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
