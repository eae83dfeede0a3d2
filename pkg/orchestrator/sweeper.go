package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/store"
)

// Sweeper times out negotiations that sat in awaiting_reply or counter_sent
// longer than the reply timeout. Staleness is judged on the persisted
// updated_at, never on process uptime, so a restart does not reset the clock.
type Sweeper struct {
	services Services
	timeout  time.Duration
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewSweeper creates a sweeper with the given reply timeout and sweep
// interval.
func NewSweeper(services Services, timeout, interval time.Duration) *Sweeper {
	if timeout <= 0 {
		timeout = 120 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		services: services,
		timeout:  timeout,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   slog.Default().With("component", "sweeper"),
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval
// until Stop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Sweep marks every overdue waiting thread stale. Failures on one thread are
// logged and do not stop the rest of the sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	snaps, err := s.services.Store.LoadActive(ctx)
	if err != nil {
		s.logger.Error("Sweep failed to load active snapshots", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-s.timeout)
	for _, snap := range snaps {
		if snap.State != negotiation.StateAwaitingReply && snap.State != negotiation.StateCounterSent {
			continue
		}
		if !snap.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.markStale(ctx, snap.ThreadID); err != nil {
			s.logger.Error("Failed to mark thread stale",
				"thread_id", snap.ThreadID, "error", err)
		}
	}
}

func (s *Sweeper) markStale(ctx context.Context, threadID string) error {
	n, ok := s.services.Manager.Get(threadID)
	if !ok {
		return nil
	}

	n.Lock()
	defer n.Unlock()

	// Re-check under the lock: a reply may have raced the sweep.
	if state := n.Machine.State(); state != negotiation.StateAwaitingReply && state != negotiation.StateCounterSent {
		return nil
	}
	if _, err := n.Machine.Trigger(negotiation.EventTimeout); err != nil {
		return err
	}
	if err := s.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return err
	}

	if err := s.services.Audit.Record(ctx, store.AuditEntry{
		Kind:           store.AuditDecision,
		CampaignID:     n.Campaign.ID,
		InfluencerName: n.Context.Influencer.Name,
		ThreadID:       threadID,
		State:          string(n.Machine.State()),
		PayloadSnippet: "no reply within " + s.timeout.String() + ", marked stale",
	}); err != nil {
		s.logger.Error("Failed to record stale audit entry", "thread_id", threadID, "error", err)
	}

	s.logger.Info("Thread marked stale", "thread_id", threadID)
	return nil
}
