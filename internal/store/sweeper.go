package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/notetree/internal/blobstore"
)

// Sweep removes blob files no node references. Writes are blocked while it
// runs.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT blob_ref FROM nodes WHERE blob_ref IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	used := make(map[blobstore.Ref]bool)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sweep: scan: %w", err)
		}
		used[blobstore.Ref(ref)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return s.blobs.GC(used)
}

// SweepStats reports sweeper activity.
type SweepStats struct {
	Runs    int       `json:"runs"`
	Removed int       `json:"removed"`
	LastRun time.Time `json:"lastRun,omitzero"`
}

// Sweeper runs Sweep on a ticker.
type Sweeper struct {
	store    *Store
	interval time.Duration

	mu    sync.Mutex
	stats SweepStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper returns a stopped sweeper.
func NewSweeper(s *Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: s, interval: interval}
}

// Start launches the sweep loop. A non-positive interval disables it.
func (w *Sweeper) Start(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				w.RunOnce(sweepCtx)
			}
		}
	}()
}

// RunOnce sweeps immediately and records the outcome.
func (w *Sweeper) RunOnce(ctx context.Context) {
	removed, err := w.store.Sweep(ctx)
	w.mu.Lock()
	w.stats.Runs++
	w.stats.Removed += removed
	w.stats.LastRun = time.Now().UTC()
	w.mu.Unlock()

	if err != nil {
		w.store.logger.Warn("blob sweep failed", "error", err)
		return
	}
	if removed > 0 {
		w.store.logger.Info("blob sweep", "removed", removed)
	}
}

// Stats returns a snapshot of sweeper activity.
func (w *Sweeper) Stats() SweepStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Stop ends the loop and waits for an in-progress sweep.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
