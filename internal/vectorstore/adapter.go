package vectorstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultUpsertBatchSize = 10
	DefaultUpsertPause     = 100 * time.Millisecond
	DefaultMaxQueryK       = 10
)

type AdapterConfig struct {
	UpsertBatchSize int
	UpsertPause     time.Duration
	MaxQueryK       int
}

// Adapter is what the rest of the service talks to. It splits upserts into
// paced sub-batches, clamps query size and turns query failures into empty
// results.
type Adapter struct {
	backend   Backend
	batchSize int
	pause     time.Duration
	maxK      int
	logger    *slog.Logger
}

func NewAdapter(backend Backend, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = DefaultUpsertBatchSize
	}
	if cfg.UpsertPause < 0 {
		cfg.UpsertPause = DefaultUpsertPause
	}
	if cfg.MaxQueryK <= 0 {
		cfg.MaxQueryK = DefaultMaxQueryK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		backend:   backend,
		batchSize: cfg.UpsertBatchSize,
		pause:     cfg.UpsertPause,
		maxK:      cfg.MaxQueryK,
		logger:    logger,
	}
}

// Upsert writes items in sub-batches, pausing between them. The first
// failing sub-batch stops the call; earlier sub-batches stay written.
func (a *Adapter) Upsert(ctx context.Context, collection string, items []StoredItem) error {
	if len(items) == 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Every(a.pause), 1)
	for start := 0; start < len(items); start += a.batchSize {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("upsert into %s interrupted: %w", collection, err)
		}
		end := min(start+a.batchSize, len(items))
		if err := a.backend.Upsert(ctx, collection, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Query returns at most min(k, MaxQueryK) hits and at least asks for one.
// Backend failures are logged and yield an empty result.
func (a *Adapter) Query(ctx context.Context, collection string, vector []float32, k int) []ContextItem {
	k = a.ClampK(k)
	items, err := a.backend.Query(ctx, collection, vector, k)
	if err != nil {
		a.logger.Warn("vector query failed", "collection", collection, "k", k, "err", err)
		return []ContextItem{}
	}
	if len(items) > k {
		items = items[:k]
	}
	return items
}

func (a *Adapter) ClampK(k int) int {
	if k < 1 {
		return 1
	}
	if k > a.maxK {
		return a.maxK
	}
	return k
}

func (a *Adapter) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return a.backend.Delete(ctx, collection, ids)
}

func (a *Adapter) Get(ctx context.Context, collection string, ids []string) ([]StoredItem, error) {
	return a.backend.Get(ctx, collection, ids)
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.backend.Ping(ctx)
}

// Close flushes and releases the backend when it holds local state.
func (a *Adapter) Close() error {
	if closer, ok := a.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
