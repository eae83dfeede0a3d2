package models

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Campaign is the immutable campaign definition a negotiation runs under.
type Campaign struct {
	ID               string          `json:"id"`
	TaskID           string          `json:"task_id"`
	ClientName       string          `json:"client_name"`
	TargetMinCPM     decimal.Decimal `json:"target_min_cpm"`
	TargetMaxCPM     decimal.Decimal `json:"target_max_cpm"`
	TotalInfluencers int             `json:"total_influencers"`
	Deliverable      Deliverable     `json:"deliverable"`
	MentionUsers     []string        `json:"mention_users,omitempty"`
}

// Validate checks the campaign invariants.
func (c Campaign) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("campaign: id is required")
	}
	if c.TargetMinCPM.GreaterThan(c.TargetMaxCPM) {
		return fmt.Errorf("campaign %s: target min CPM %s exceeds max %s", c.ID, c.TargetMinCPM, c.TargetMaxCPM)
	}
	if c.TotalInfluencers <= 0 {
		return fmt.Errorf("campaign %s: total influencers must be positive", c.ID)
	}
	return nil
}

// HighEngagementThreshold is the engagement-rate percentage at or above which
// an influencer qualifies for campaign flexibility.
const HighEngagementThreshold = 3.5

// Agreement is one closed deal inside a CPM tracker.
type Agreement struct {
	CPM            decimal.Decimal `json:"cpm"`
	EngagementRate *float64        `json:"engagement_rate,omitempty"`
}

// CampaignCPMTracker accumulates agreed CPMs for a campaign and decides how
// much per-influencer flexibility remains. Safe for concurrent use; one
// tracker is shared by every live negotiation of the same campaign.
type CampaignCPMTracker struct {
	mu sync.Mutex

	campaignID       string
	targetMinCPM     decimal.Decimal
	targetMaxCPM     decimal.Decimal
	totalInfluencers int
	agreements       []Agreement
}

// NewCPMTracker creates an empty tracker for the campaign.
func NewCPMTracker(c Campaign) *CampaignCPMTracker {
	return &CampaignCPMTracker{
		campaignID:       c.ID,
		targetMinCPM:     c.TargetMinCPM,
		targetMaxCPM:     c.TargetMaxCPM,
		totalInfluencers: c.TotalInfluencers,
	}
}

// CampaignID returns the campaign this tracker belongs to.
func (t *CampaignCPMTracker) CampaignID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.campaignID
}

// RecordAgreement appends a closed deal.
func (t *CampaignCPMTracker) RecordAgreement(cpm decimal.Decimal, engagementRate *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agreements = append(t.agreements, Agreement{CPM: cpm, EngagementRate: engagementRate})
}

// RunningAverageCPM returns the mean of agreed CPMs, zero when no agreements
// exist yet.
func (t *CampaignCPMTracker) RunningAverageCPM() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runningAverageLocked()
}

func (t *CampaignCPMTracker) runningAverageLocked() decimal.Decimal {
	if len(t.agreements) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, a := range t.agreements {
		sum = sum.Add(a.CPM)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(t.agreements))), 4)
}

// RemainingCapacity returns how many influencers are still open.
func (t *CampaignCPMTracker) RemainingCapacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.totalInfluencers - len(t.agreements)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetFlexibility returns the per-deliverable CPM premium available to a
// high-engagement influencer: when the running average sits below the target
// midpoint there is headroom to spend, capped so the adjusted CPM cannot
// cross the target ceiling. Zero when no agreements exist, when the average
// is at or above the midpoint, or when engagement is absent or ordinary.
func (t *CampaignCPMTracker) GetFlexibility(engagementRate *float64) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.agreements) == 0 {
		return decimal.Zero
	}
	if engagementRate == nil || *engagementRate < HighEngagementThreshold {
		return decimal.Zero
	}

	midpoint := t.targetMinCPM.Add(t.targetMaxCPM).DivRound(decimal.NewFromInt(2), 4)
	avg := t.runningAverageLocked()
	if avg.GreaterThanOrEqual(midpoint) {
		return decimal.Zero
	}

	headroom := midpoint.Sub(avg)
	cap := t.targetMaxCPM.Sub(midpoint)
	if headroom.GreaterThan(cap) {
		headroom = cap
	}
	return headroom.Round(2)
}

// trackerJSON is the exported serialization contract; the store never reads
// tracker internals directly.
type trackerJSON struct {
	CampaignID       string          `json:"campaign_id"`
	TargetMinCPM     decimal.Decimal `json:"target_min_cpm"`
	TargetMaxCPM     decimal.Decimal `json:"target_max_cpm"`
	TotalInfluencers int             `json:"total_influencers"`
	Agreements       []Agreement     `json:"agreements"`
}

// MarshalJSON serializes the tracker state; decimals become strings.
func (t *CampaignCPMTracker) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agreements := t.agreements
	if agreements == nil {
		agreements = []Agreement{}
	}
	return json.Marshal(trackerJSON{
		CampaignID:       t.campaignID,
		TargetMinCPM:     t.targetMinCPM,
		TargetMaxCPM:     t.targetMaxCPM,
		TotalInfluencers: t.totalInfluencers,
		Agreements:       agreements,
	})
}

// UnmarshalJSON restores a tracker persisted by MarshalJSON.
func (t *CampaignCPMTracker) UnmarshalJSON(data []byte) error {
	var raw trackerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cpm tracker: %w", err)
	}
	if raw.CampaignID == "" {
		return fmt.Errorf("cpm tracker: campaign_id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.campaignID = raw.CampaignID
	t.targetMinCPM = raw.TargetMinCPM
	t.targetMaxCPM = raw.TargetMaxCPM
	t.totalInfluencers = raw.TotalInfluencers
	t.agreements = raw.Agreements
	return nil
}
