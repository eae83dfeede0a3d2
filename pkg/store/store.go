// Package store persists negotiation snapshots and the append-only audit
// trail in the embedded database. Saves commit synchronously, so a returned
// nil error means the row is durable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/negotiation"
)

// timeLayout is how timestamps are stored. Text columns keep the format
// independent of driver-specific time handling.
const timeLayout = time.RFC3339Nano

// StateStore owns the negotiation_state table. It is the only writer of
// on-disk negotiation rows.
type StateStore struct {
	db *sql.DB
}

// NewStateStore wraps an open database handle.
func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

const upsertSnapshotSQL = `
INSERT INTO negotiation_state (
	thread_id, state, round_count, context_json, campaign_json,
	cpm_tracker_json, history_json, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(thread_id) DO UPDATE SET
	state            = excluded.state,
	round_count      = excluded.round_count,
	context_json     = excluded.context_json,
	campaign_json    = excluded.campaign_json,
	cpm_tracker_json = excluded.cpm_tracker_json,
	history_json     = excluded.history_json,
	updated_at       = excluded.updated_at`

const selectSnapshotCols = `
SELECT thread_id, state, round_count, context_json, campaign_json,
       cpm_tracker_json, history_json, created_at, updated_at
FROM negotiation_state`

// Save upserts the snapshot. On replace the original created_at is kept; the
// conflict clause deliberately omits it.
func (s *StateStore) Save(ctx context.Context, snap negotiation.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}

	now := time.Now().UTC()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = now
	}

	contextJSON, err := json.Marshal(snap.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context for %s: %w", snap.ThreadID, err)
	}
	campaignJSON, err := json.Marshal(snap.Campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign for %s: %w", snap.ThreadID, err)
	}
	trackerJSON, err := json.Marshal(snap.Tracker)
	if err != nil {
		return fmt.Errorf("failed to marshal cpm tracker for %s: %w", snap.ThreadID, err)
	}
	history := snap.History
	if history == nil {
		history = []negotiation.Transition{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history for %s: %w", snap.ThreadID, err)
	}

	_, err = s.db.ExecContext(ctx, upsertSnapshotSQL,
		snap.ThreadID,
		string(snap.State),
		snap.RoundCount,
		string(contextJSON),
		string(campaignJSON),
		string(trackerJSON),
		string(historyJSON),
		snap.CreatedAt.UTC().Format(timeLayout),
		snap.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.ThreadID, err)
	}

	slog.Debug("Saved negotiation snapshot",
		"thread_id", snap.ThreadID,
		"state", snap.State,
		"round_count", snap.RoundCount)
	return nil
}

// Load fetches one snapshot by thread ID.
func (s *StateStore) Load(ctx context.Context, threadID string) (negotiation.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectSnapshotCols+" WHERE thread_id = ?", threadID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return negotiation.Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, threadID)
	}
	return snap, err
}

// LoadActive returns every snapshot whose state is non-terminal, oldest
// first. Terminal rows stay on disk as an outcome record and are filtered
// here.
func (s *StateStore) LoadActive(ctx context.Context) ([]negotiation.Snapshot, error) {
	terminal := negotiation.TerminalStates()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(terminal)), ", ")
	query := fmt.Sprintf("%s WHERE state NOT IN (%s) ORDER BY created_at", selectSnapshotCols, placeholders)

	args := make([]any, len(terminal))
	for i, state := range terminal {
		args[i] = state
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load active snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []negotiation.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active snapshots: %w", err)
	}
	return snaps, nil
}

// Delete removes a row. Operator-initiated cleanup only; nothing in the
// pipeline calls this.
func (s *StateStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM negotiation_state WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", threadID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (negotiation.Snapshot, error) {
	var (
		snap         negotiation.Snapshot
		state        string
		contextJSON  string
		campaignJSON string
		trackerJSON  string
		historyJSON  string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&snap.ThreadID, &state, &snap.RoundCount,
		&contextJSON, &campaignJSON, &trackerJSON, &historyJSON,
		&createdAt, &updatedAt)
	if err != nil {
		return negotiation.Snapshot{}, err
	}

	snap.State = negotiation.State(state)

	if err := json.Unmarshal([]byte(contextJSON), &snap.Context); err != nil {
		return negotiation.Snapshot{}, &SchemaError{ThreadID: snap.ThreadID, Column: "context_json", Cause: err}
	}
	if err := json.Unmarshal([]byte(campaignJSON), &snap.Campaign); err != nil {
		return negotiation.Snapshot{}, &SchemaError{ThreadID: snap.ThreadID, Column: "campaign_json", Cause: err}
	}
	tracker := &models.CampaignCPMTracker{}
	if err := json.Unmarshal([]byte(trackerJSON), tracker); err != nil {
		return negotiation.Snapshot{}, &SchemaError{ThreadID: snap.ThreadID, Column: "cpm_tracker_json", Cause: err}
	}
	snap.Tracker = tracker
	if err := json.Unmarshal([]byte(historyJSON), &snap.History); err != nil {
		return negotiation.Snapshot{}, &SchemaError{ThreadID: snap.ThreadID, Column: "history_json", Cause: err}
	}
	if snap.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return negotiation.Snapshot{}, &SchemaError{ThreadID: snap.ThreadID, Column: "created_at", Cause: err}
	}
	if snap.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return negotiation.Snapshot{}, &SchemaError{ThreadID: snap.ThreadID, Column: "updated_at", Cause: err}
	}

	if err := snap.Validate(); err != nil {
		return negotiation.Snapshot{}, &SchemaError{ThreadID: snap.ThreadID, Column: "row", Cause: err}
	}
	return snap, nil
}
