package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/store"
)

func TestSweepMarksOverdueThreadsStale(t *testing.T) {
	h := newHarness(t)
	n := h.seedNegotiation(t)
	ctx := context.Background()

	// Age the stored snapshot well past the reply timeout.
	snap := n.Snapshot()
	snap.UpdatedAt = time.Now().UTC().Add(-200 * time.Hour)
	require.NoError(t, h.services.Store.Save(ctx, snap))

	sweeper := NewSweeper(h.services, 120*time.Hour, time.Hour)
	sweeper.Sweep(ctx)

	assert.Equal(t, negotiation.StateStale, n.Machine.State())
	stored, err := h.services.Store.Load(ctx, testThreadID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateStale, stored.State)

	entries, err := h.services.Audit.QueryByInfluencer(ctx, "Ava Chen")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditDecision, entries[0].Kind)
	assert.Contains(t, entries[0].PayloadSnippet, "stale")
}

func TestSweepLeavesFreshThreadsAlone(t *testing.T) {
	h := newHarness(t)
	n := h.seedNegotiation(t)
	ctx := context.Background()

	sweeper := NewSweeper(h.services, 120*time.Hour, time.Hour)
	sweeper.Sweep(ctx)

	assert.Equal(t, negotiation.StateAwaitingReply, n.Machine.State())
}

func TestStaleThreadRevivesOnReply(t *testing.T) {
	h := newHarness(t)
	n := h.seedNegotiation(t)
	ctx := context.Background()

	snap := n.Snapshot()
	snap.UpdatedAt = time.Now().UTC().Add(-200 * time.Hour)
	require.NoError(t, h.services.Store.Save(ctx, snap))
	NewSweeper(h.services, 120*time.Hour, time.Hour).Sweep(ctx)
	require.Equal(t, negotiation.StateStale, n.Machine.State())

	// A late reply still flows through the normal pipeline.
	h.llm.intent = llm.IntentResult{Intent: llm.IntentAccept, Confidence: 0.95, ProposedRateRaw: "2000"}

	outcome, err := h.orch.HandleInbound(ctx, inboundReply("Sorry for the delay, deal!"))
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, outcome.Action)
}
