package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditKind labels the material event an audit entry records.
type AuditKind string

// Audit entry kinds.
const (
	AuditSent          AuditKind = "sent"
	AuditReceived      AuditKind = "received"
	AuditDecision      AuditKind = "decision"
	AuditEscalation    AuditKind = "escalation"
	AuditAgreement     AuditKind = "agreement"
	AuditHumanTakeover AuditKind = "human_takeover"
)

// IsValid checks if the kind is one of the defined audit kinds.
func (k AuditKind) IsValid() bool {
	switch k {
	case AuditSent, AuditReceived, AuditDecision, AuditEscalation, AuditAgreement, AuditHumanTakeover:
		return true
	}
	return false
}

// maxSnippetLen bounds stored payload snippets so full email bodies do not
// bloat the table.
const maxSnippetLen = 500

// AuditEntry is one append-only record of a material event.
type AuditEntry struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           AuditKind `json:"kind"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	InfluencerName string    `json:"influencer_name"`
	ThreadID       string    `json:"thread_id"`
	State          string    `json:"state"`
	PayloadSnippet string    `json:"payload_snippet"`
}

// AuditLog appends to and queries the audit_log table. Entries are never
// updated or deleted.
type AuditLog struct {
	db *sql.DB
}

// NewAuditLog wraps an open database handle.
func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record appends one entry. A zero timestamp is stamped with the current
// time; snippets are truncated to a bounded length.
func (a *AuditLog) Record(ctx context.Context, entry AuditEntry) error {
	if !entry.Kind.IsValid() {
		return fmt.Errorf("invalid audit kind %q", entry.Kind)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	snippet := entry.PayloadSnippet
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}

	var campaignID any
	if entry.CampaignID != "" {
		campaignID = entry.CampaignID
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, kind, campaign_id, influencer_name, thread_id, state, payload_snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(timeLayout),
		string(entry.Kind),
		campaignID,
		entry.InfluencerName,
		entry.ThreadID,
		entry.State,
		snippet,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

const selectAuditCols = `
SELECT id, timestamp, kind, campaign_id, influencer_name, thread_id, state, payload_snippet
FROM audit_log`

// QueryByInfluencer returns entries for one influencer, oldest first.
func (a *AuditLog) QueryByInfluencer(ctx context.Context, name string) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		selectAuditCols+" WHERE influencer_name = ? ORDER BY timestamp, id", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by influencer: %w", err)
	}
	return collectAuditEntries(rows)
}

// QueryByCampaign returns entries for one campaign, oldest first.
func (a *AuditLog) QueryByCampaign(ctx context.Context, campaignID string) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		selectAuditCols+" WHERE campaign_id = ? ORDER BY timestamp, id", campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by campaign: %w", err)
	}
	return collectAuditEntries(rows)
}

// QueryByDateRange returns entries with from <= timestamp < to, oldest first.
func (a *AuditLog) QueryByDateRange(ctx context.Context, from, to time.Time) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		selectAuditCols+" WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, id",
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by date range: %w", err)
	}
	return collectAuditEntries(rows)
}

func collectAuditEntries(rows *sql.Rows) ([]AuditEntry, error) {
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry      AuditEntry
			ts         string
			kind       string
			campaignID sql.NullString
		)
		if err := rows.Scan(&entry.ID, &ts, &kind, &campaignID,
			&entry.InfluencerName, &entry.ThreadID, &entry.State, &entry.PayloadSnippet); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		parsed, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp %q: %w", ts, err)
		}
		entry.Timestamp = parsed
		entry.Kind = AuditKind(kind)
		entry.CampaignID = campaignID.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}
