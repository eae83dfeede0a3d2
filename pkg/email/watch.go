package email

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const watchTimeLayout = time.RFC3339Nano

// ErrNoWatch is returned when no watch has been registered yet.
var ErrNoWatch = errors.New("no watch state stored")

// WatchStore persists the single watch row so renewal decisions are made
// against the stored expiration, never process uptime.
type WatchStore struct {
	db *sql.DB
}

// NewWatchStore wraps an open database handle.
func NewWatchStore(db *sql.DB) *WatchStore {
	return &WatchStore{db: db}
}

// Save upserts the watch row.
func (s *WatchStore) Save(ctx context.Context, w Watch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_state (id, topic, history_id, expiration, renewed_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic      = excluded.topic,
			history_id = excluded.history_id,
			expiration = excluded.expiration,
			renewed_at = excluded.renewed_at`,
		w.Topic, w.HistoryID, w.Expiration.UTC().Format(watchTimeLayout),
		time.Now().UTC().Format(watchTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to save watch state: %w", err)
	}
	return nil
}

// Get returns the stored watch, or ErrNoWatch when none exists.
func (s *WatchStore) Get(ctx context.Context) (Watch, error) {
	var (
		w          Watch
		expiration string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT topic, history_id, expiration FROM watch_state WHERE id = 1").
		Scan(&w.Topic, &w.HistoryID, &expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return Watch{}, ErrNoWatch
	}
	if err != nil {
		return Watch{}, fmt.Errorf("failed to load watch state: %w", err)
	}
	if w.Expiration, err = time.Parse(watchTimeLayout, expiration); err != nil {
		return Watch{}, fmt.Errorf("failed to parse watch expiration: %w", err)
	}
	return w, nil
}

// UpdateHistoryID advances the stored change token after a fetch.
func (s *WatchStore) UpdateHistoryID(ctx context.Context, historyID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE watch_state SET history_id = ? WHERE id = 1", historyID)
	if err != nil {
		return fmt.Errorf("failed to update watch history id: %w", err)
	}
	return nil
}

// Renewer keeps the watch alive: it re-registers when the stored expiration
// is within the configured lead time.
type Renewer struct {
	transport Transport
	store     *WatchStore
	topic     string
	lead      time.Duration
	interval  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewRenewer builds a renewer; Start launches the loop.
func NewRenewer(transport Transport, store *WatchStore, topic string, lead, interval time.Duration) *Renewer {
	if lead <= 0 {
		lead = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Renewer{
		transport: transport,
		store:     store,
		topic:     topic,
		lead:      lead,
		interval:  interval,
		stopCh:    make(chan struct{}),
		logger:    slog.Default().With("component", "watch-renewer"),
	}
}

// Start registers the watch if none is stored, then renews on a timer.
func (r *Renewer) Start(ctx context.Context) error {
	if err := r.renewIfNeeded(ctx); err != nil {
		return fmt.Errorf("initial watch registration failed: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.renewIfNeeded(ctx); err != nil {
					r.logger.Error("Watch renewal failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts the loop and waits for it to exit.
func (r *Renewer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Renewer) renewIfNeeded(ctx context.Context) error {
	stored, err := r.store.Get(ctx)
	switch {
	case errors.Is(err, ErrNoWatch):
		// First run: register and seed the change token.
	case err != nil:
		return err
	case time.Until(stored.Expiration) > r.lead:
		return nil
	}

	watch, err := r.transport.SetupWatch(ctx, r.topic)
	if err != nil {
		return err
	}
	// Keep the existing change token across renewals; SetupWatch's history
	// ID only seeds the very first fetch.
	if stored.HistoryID != "" {
		watch.HistoryID = stored.HistoryID
	}
	if err := r.store.Save(ctx, watch); err != nil {
		return err
	}
	r.logger.Info("Watch renewed", "topic", r.topic, "expiration", watch.Expiration)
	return nil
}
