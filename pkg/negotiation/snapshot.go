package negotiation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/models"
)

// Context carries the per-thread negotiation facts that are not part of the
// state machine: who we are negotiating with, what for, and the email
// threading fields needed to reply in-thread.
type Context struct {
	Influencer       models.InfluencerRow `json:"influencer"`
	Deliverable      models.Deliverable   `json:"deliverable"`
	Subject          string               `json:"subject,omitempty"`
	LastMessageID    string               `json:"last_message_id,omitempty"`
	References       []string             `json:"references,omitempty"`
	ExpectedRate     decimal.Decimal      `json:"expected_rate"`
	LastProposedRate *decimal.Decimal     `json:"last_proposed_rate,omitempty"`
}

// Snapshot is the persisted projection of a live negotiation. It is written
// on creation and after every state transition.
type Snapshot struct {
	ThreadID   string                     `json:"thread_id"`
	State      State                      `json:"state"`
	RoundCount int                        `json:"round_count"`
	Context    Context                    `json:"context"`
	Campaign   models.Campaign            `json:"campaign"`
	Tracker    *models.CampaignCPMTracker `json:"cpm_tracker"`
	History    []Transition               `json:"history"`
	CreatedAt  time.Time                  `json:"created_at"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// Validate rejects snapshots that would be unreadable on recovery. The store
// runs this on every load so schema drift fails loudly.
func (s *Snapshot) Validate() error {
	if s.ThreadID == "" {
		return fmt.Errorf("snapshot missing thread_id")
	}
	if !s.State.IsValid() {
		return fmt.Errorf("snapshot %s has unknown state %q", s.ThreadID, s.State)
	}
	if s.RoundCount < 0 {
		return fmt.Errorf("snapshot %s has negative round_count %d", s.ThreadID, s.RoundCount)
	}
	if s.Tracker == nil {
		return fmt.Errorf("snapshot %s missing cpm_tracker", s.ThreadID)
	}
	return nil
}

// IsActive reports whether the snapshot belongs in startup recovery.
func (s *Snapshot) IsActive() bool {
	return !s.State.IsTerminal()
}
