// Package ownership tracks which email threads the agent may act on. A
// thread is agent-managed until a human claims it (slash command) or a human
// reply is detected in the thread; from then on the pipeline skips it until
// /resume. Handoffs are silent: no chat notification accompanies a claim or
// resume.
package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager labels who drives a thread.
type Manager string

// Thread managers.
const (
	ManagedByAgent Manager = "agent"
	ManagedByHuman Manager = "human"
)

// Record is the ownership state of one thread.
type Record struct {
	ThreadID  string
	ManagedBy Manager
	ClaimedBy string
	ClaimedAt time.Time
}

const timeLayout = time.RFC3339Nano

// Registry is the write-through thread-ownership map. The in-memory view
// answers the hot-path IsHumanManaged check without touching the database;
// every mutation is committed to the thread_ownership table first so human
// takeovers survive restarts.
type Registry struct {
	db *sql.DB

	mu      sync.RWMutex
	records map[string]Record
}

// NewRegistry builds an empty registry over the open database handle.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db, records: make(map[string]Record)}
}

// Load rebuilds the in-memory view from the table. Called once at startup,
// before any pipeline runs.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT thread_id, managed_by, claimed_by, claimed_at FROM thread_ownership")
	if err != nil {
		return fmt.Errorf("failed to load thread ownership: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[string]Record)
	for rows.Next() {
		var (
			rec       Record
			managedBy string
			claimedBy sql.NullString
			claimedAt sql.NullString
		)
		if err := rows.Scan(&rec.ThreadID, &managedBy, &claimedBy, &claimedAt); err != nil {
			return fmt.Errorf("failed to scan ownership row: %w", err)
		}
		rec.ManagedBy = Manager(managedBy)
		rec.ClaimedBy = claimedBy.String
		if claimedAt.Valid {
			ts, err := time.Parse(timeLayout, claimedAt.String)
			if err != nil {
				return fmt.Errorf("failed to parse claimed_at for %s: %w", rec.ThreadID, err)
			}
			rec.ClaimedAt = ts
		}
		records[rec.ThreadID] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate ownership rows: %w", err)
	}

	r.mu.Lock()
	r.records = records
	r.mu.Unlock()

	slog.Info("Thread ownership loaded", "threads", len(records))
	return nil
}

// Claim marks the thread human-managed. Idempotent: re-claiming an already
// claimed thread refreshes nothing and returns nil.
func (r *Registry) Claim(ctx context.Context, threadID, claimer string) error {
	if threadID == "" {
		return errors.New("thread id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[threadID]; ok && rec.ManagedBy == ManagedByHuman {
		return nil
	}

	rec := Record{
		ThreadID:  threadID,
		ManagedBy: ManagedByHuman,
		ClaimedBy: claimer,
		ClaimedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO thread_ownership (thread_id, managed_by, claimed_by, claimed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			managed_by = excluded.managed_by,
			claimed_by = excluded.claimed_by,
			claimed_at = excluded.claimed_at`,
		rec.ThreadID, string(rec.ManagedBy), rec.ClaimedBy, rec.ClaimedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to persist claim for %s: %w", threadID, err)
	}

	r.records[threadID] = rec
	slog.Info("Thread claimed by human", "thread_id", threadID, "claimed_by", claimer)
	return nil
}

// Resume hands the thread back to the agent. Idempotent: resuming an
// agent-managed or unknown thread is a no-op.
func (r *Registry) Resume(ctx context.Context, threadID string) error {
	if threadID == "" {
		return errors.New("thread id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[threadID]
	if !ok || rec.ManagedBy == ManagedByAgent {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE thread_ownership
		SET managed_by = ?, claimed_by = NULL, claimed_at = NULL
		WHERE thread_id = ?`,
		string(ManagedByAgent), threadID)
	if err != nil {
		return fmt.Errorf("failed to persist resume for %s: %w", threadID, err)
	}

	r.records[threadID] = Record{ThreadID: threadID, ManagedBy: ManagedByAgent}
	slog.Info("Thread resumed by agent", "thread_id", threadID)
	return nil
}

// IsHumanManaged reports whether the pipeline must skip this thread.
func (r *Registry) IsHumanManaged(threadID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[threadID]
	return ok && rec.ManagedBy == ManagedByHuman
}

// ClaimedBy returns who claimed the thread, empty when agent-managed.
func (r *Registry) ClaimedBy(threadID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[threadID]
	if !ok || rec.ManagedBy != ManagedByHuman {
		return ""
	}
	return rec.ClaimedBy
}
