package examine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// DefaultChunkSize is the record store's per-request update limit.
const DefaultChunkSize = 10

// Store persists result records. One call writes one batch.
type Store interface {
	UpdateResults(ctx context.Context, batch []report.ResultRecord) error
}

// Partition splits results into contiguous, order-preserving chunks of at
// most size records. size <= 0 falls back to DefaultChunkSize.
func Partition(results []report.ResultRecord, size int) [][]report.ResultRecord {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]report.ResultRecord
	for start := 0; start < len(results); start += size {
		end := min(start+size, len(results))
		out = append(out, results[start:end:end])
	}
	return out
}

// UpdaterConfig controls batch write-back.
type UpdaterConfig struct {
	Concurrency  int           // batches in flight. Default: 2.
	BatchTimeout time.Duration // per batch. Default: 30s.
	Logger       *slog.Logger
}

func (c *UpdaterConfig) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Updater writes results back to a Store in bounded batches.
type Updater struct {
	store Store
	cfg   UpdaterConfig
}

// NewUpdater creates an Updater.
func NewUpdater(store Store, cfg UpdaterConfig) *Updater {
	cfg.defaults()
	return &Updater{store: store, cfg: cfg}
}

// UpdateInBatches dispatches every batch and waits for all of them. The
// returned outcomes are in partition order; failed batches are not retried.
func (u *Updater) UpdateInBatches(ctx context.Context, results []report.ResultRecord, chunkSize int) []report.Outcome {
	batches := Partition(results, chunkSize)
	outcomes := make([]report.Outcome, len(batches))

	var g errgroup.Group
	g.SetLimit(u.cfg.Concurrency)
	for i, batch := range batches {
		ids := make([]string, len(batch))
		for j, r := range batch {
			ids[j] = r.ID
		}
		outcomes[i] = report.Outcome{Index: i, RecordIDs: ids, Size: len(batch)}

		g.Go(func() error {
			bctx, cancel := context.WithTimeout(ctx, u.cfg.BatchTimeout)
			defer cancel()
			if err := u.store.UpdateResults(bctx, batch); err != nil {
				outcomes[i].Error = err.Error()
				u.cfg.Logger.Warn("examine: batch update failed", "batch", i, "size", len(batch), "error", err)
				return nil
			}
			outcomes[i].OK = true
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
