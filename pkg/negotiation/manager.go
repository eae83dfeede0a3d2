package negotiation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parley-hq/parley/pkg/models"
)

// Registry errors.
var (
	ErrThreadExists   = errors.New("negotiation already exists for thread")
	ErrThreadNotFound = errors.New("no negotiation for thread")
)

// Manager is the in-memory registry of live negotiations, keyed by thread ID.
// It is rebuilt from active snapshots at startup and stays a superset-equal
// view of the store's active rows. Negotiations for the same campaign share
// one CPM tracker so the running average spans the whole campaign.
type Manager struct {
	mu           sync.RWMutex
	negotiations map[string]*Negotiation
	trackers     map[string]*models.CampaignCPMTracker
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{
		negotiations: make(map[string]*Negotiation),
		trackers:     make(map[string]*models.CampaignCPMTracker),
	}
}

// Create registers a new negotiation for the thread, attaching the campaign's
// shared CPM tracker (created on first use).
func (m *Manager) Create(threadID string, ctx Context, campaign models.Campaign) (*Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.negotiations[threadID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrThreadExists, threadID)
	}
	tracker, ok := m.trackers[campaign.ID]
	if !ok {
		tracker = models.NewCPMTracker(campaign)
		m.trackers[campaign.ID] = tracker
	}
	n := New(threadID, ctx, campaign, tracker)
	m.negotiations[threadID] = n
	return n, nil
}

// Get looks up the live negotiation for a thread.
func (m *Manager) Get(threadID string) (*Negotiation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.negotiations[threadID]
	return n, ok
}

// Remove drops a negotiation from the registry. The stored row is untouched.
func (m *Manager) Remove(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.negotiations, threadID)
}

// Len returns the number of live negotiations.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.negotiations)
}

// ThreadIDs returns the registered thread IDs, sorted.
func (m *Manager) ThreadIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.negotiations))
	for id := range m.negotiations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrackerFor returns the campaign's shared CPM tracker, creating it if the
// campaign has not been seen yet.
func (m *Manager) TrackerFor(campaign models.Campaign) *models.CampaignCPMTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	tracker, ok := m.trackers[campaign.ID]
	if !ok {
		tracker = models.NewCPMTracker(campaign)
		m.trackers[campaign.ID] = tracker
	}
	return tracker
}

// Restore rebuilds the registry from persisted snapshots. Machines are
// reconstructed via FromSnapshot with no event replay. For each campaign the
// most recently updated snapshot donates the shared tracker, so recorded
// agreements survive restarts.
func (m *Manager) Restore(snapshots []Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newest := make(map[string]time.Time)
	for i := range snapshots {
		snap := &snapshots[i]
		if snap.Tracker == nil {
			continue
		}
		id := snap.Tracker.CampaignID()
		if ts, ok := newest[id]; !ok || snap.UpdatedAt.After(ts) {
			newest[id] = snap.UpdatedAt
			m.trackers[id] = snap.Tracker
		}
	}

	for i := range snapshots {
		snap := snapshots[i]
		if err := snap.Validate(); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		machine, err := FromSnapshot(snap.State, snap.History)
		if err != nil {
			return fmt.Errorf("restore %s: %w", snap.ThreadID, err)
		}
		m.negotiations[snap.ThreadID] = &Negotiation{
			ThreadID:   snap.ThreadID,
			Machine:    machine,
			Context:    snap.Context,
			Campaign:   snap.Campaign,
			Tracker:    m.trackers[snap.Tracker.CampaignID()],
			RoundCount: snap.RoundCount,
			CreatedAt:  snap.CreatedAt,
		}
	}
	return nil
}

// Snapshots projects every live negotiation, briefly locking each one. The
// registry lock is not held while individual negotiations are locked.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	list := make([]*Negotiation, 0, len(m.negotiations))
	for _, n := range m.negotiations {
		list = append(list, n)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(list))
	for _, n := range list {
		n.Lock()
		snaps = append(snaps, n.Snapshot())
		n.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ThreadID < snaps[j].ThreadID })
	return snaps
}
