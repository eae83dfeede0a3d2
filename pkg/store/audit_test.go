package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecordAndQueryByInfluencer(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	audit := NewAuditLog(db.DB())

	base := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)
	entries := []AuditEntry{
		{Timestamp: base, Kind: AuditReceived, CampaignID: "camp-1", InfluencerName: "Dana Park", ThreadID: "thread-1", State: "counter_received", PayloadSnippet: "I want $2,500"},
		{Timestamp: base.Add(time.Minute), Kind: AuditDecision, CampaignID: "camp-1", InfluencerName: "Dana Park", ThreadID: "thread-1", State: "counter_received", PayloadSnippet: "within_range"},
		{Timestamp: base.Add(2 * time.Minute), Kind: AuditSent, CampaignID: "camp-1", InfluencerName: "Dana Park", ThreadID: "thread-1", State: "counter_sent", PayloadSnippet: "counter at $2,000.00"},
		{Timestamp: base.Add(3 * time.Minute), Kind: AuditReceived, CampaignID: "camp-2", InfluencerName: "Leo Kim", ThreadID: "thread-2", State: "counter_received", PayloadSnippet: "sounds good"},
	}
	for _, e := range entries {
		require.NoError(t, audit.Record(ctx, e))
	}

	got, err := audit.QueryByInfluencer(ctx, "Dana Park")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, AuditReceived, got[0].Kind)
	assert.Equal(t, AuditDecision, got[1].Kind)
	assert.Equal(t, AuditSent, got[2].Kind)
	assert.True(t, got[0].Timestamp.Equal(base))
	assert.Equal(t, "camp-1", got[0].CampaignID)
}

func TestAuditQueryByCampaign(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	audit := NewAuditLog(db.DB())

	require.NoError(t, audit.Record(ctx, AuditEntry{
		Kind: AuditEscalation, CampaignID: "camp-9", InfluencerName: "Dana Park",
		ThreadID: "thread-1", State: "escalated", PayloadSnippet: "cpm_over_threshold",
	}))
	require.NoError(t, audit.Record(ctx, AuditEntry{
		Kind: AuditAgreement, CampaignID: "camp-9", InfluencerName: "Leo Kim",
		ThreadID: "thread-2", State: "agreed", PayloadSnippet: "agreed at $1,200.00",
	}))
	require.NoError(t, audit.Record(ctx, AuditEntry{
		Kind: AuditReceived, InfluencerName: "Sam Ode",
		ThreadID: "thread-3", State: "counter_received", PayloadSnippet: "no campaign id",
	}))

	got, err := audit.QueryByCampaign(ctx, "camp-9")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, AuditEscalation, got[0].Kind)
	assert.Equal(t, AuditAgreement, got[1].Kind)
}

func TestAuditQueryByDateRange(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	audit := NewAuditLog(db.DB())

	base := time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, audit.Record(ctx, AuditEntry{
			Timestamp:      base.Add(time.Duration(i) * 24 * time.Hour),
			Kind:           AuditReceived,
			InfluencerName: "Dana Park",
			ThreadID:       "thread-1",
			State:          "counter_received",
			PayloadSnippet: "day",
		}))
	}

	// Half-open range: from inclusive, to exclusive.
	got, err := audit.QueryByDateRange(ctx, base.Add(24*time.Hour), base.Add(3*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAuditRecordRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	audit := NewAuditLog(db.DB())

	err := audit.Record(ctx, AuditEntry{Kind: AuditKind("gossip"), InfluencerName: "x", ThreadID: "t", State: "s"})
	assert.Error(t, err)
}

func TestAuditSnippetTruncation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	audit := NewAuditLog(db.DB())

	long := strings.Repeat("a", 2*maxSnippetLen)
	require.NoError(t, audit.Record(ctx, AuditEntry{
		Kind: AuditReceived, InfluencerName: "Dana Park", ThreadID: "thread-1",
		State: "counter_received", PayloadSnippet: long,
	}))

	got, err := audit.QueryByInfluencer(ctx, "Dana Park")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].PayloadSnippet, maxSnippetLen)
}

func TestAuditStampsMissingTimestamp(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	audit := NewAuditLog(db.DB())

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, audit.Record(ctx, AuditEntry{
		Kind: AuditHumanTakeover, InfluencerName: "Dana Park", ThreadID: "thread-1", State: "counter_sent",
	}))

	got, err := audit.QueryByInfluencer(ctx, "Dana Park")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.After(before))
}
