package negotiation

import (
	"sync"
	"time"

	"github.com/parley-hq/parley/pkg/models"
)

// Negotiation is a live, in-memory negotiation over one email thread. The
// orchestrator holds the lock for the duration of a pipeline run, so
// pipelines on the same thread serialize while distinct threads proceed in
// parallel. Fields are mutated only while the lock is held.
type Negotiation struct {
	mu sync.Mutex

	ThreadID   string
	Machine    *Machine
	Context    Context
	Campaign   models.Campaign
	Tracker    *models.CampaignCPMTracker
	RoundCount int
	CreatedAt  time.Time
}

// New builds a negotiation at the start of the lifecycle.
func New(threadID string, ctx Context, campaign models.Campaign, tracker *models.CampaignCPMTracker) *Negotiation {
	return &Negotiation{
		ThreadID:  threadID,
		Machine:   NewMachine(),
		Context:   ctx,
		Campaign:  campaign,
		Tracker:   tracker,
		CreatedAt: time.Now().UTC(),
	}
}

// Lock serializes pipeline runs for this thread.
func (n *Negotiation) Lock() { n.mu.Lock() }

// Unlock releases the per-thread lock.
func (n *Negotiation) Unlock() { n.mu.Unlock() }

// Snapshot projects the current in-memory state for persistence. Callers
// must hold the lock.
func (n *Negotiation) Snapshot() Snapshot {
	return Snapshot{
		ThreadID:   n.ThreadID,
		State:      n.Machine.State(),
		RoundCount: n.RoundCount,
		Context:    n.Context,
		Campaign:   n.Campaign,
		Tracker:    n.Tracker,
		History:    n.Machine.History(),
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  time.Now().UTC(),
	}
}
