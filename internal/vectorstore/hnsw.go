package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

type HNSWConfig struct {
	M        int
	EfSearch int

	// Dir holds one graph and one metadata file per collection. Empty keeps
	// everything in memory.
	Dir           string
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// HNSWBackend keeps one in-process graph per collection. Deletes and
// overwrites are lazy: the node stays in the graph but loses its id mapping.
type HNSWBackend struct {
	mu          sync.RWMutex
	cfg         HNSWConfig
	collections map[string]*hnswCollection
	logger      *slog.Logger

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type hnswCollection struct {
	graph   *hnsw.Graph[uint64]
	dims    int
	idMap   map[string]uint64
	keyMap  map[uint64]string
	items   map[string]StoredItem
	nextKey uint64
	dirty   bool
}

func NewHNSWBackend(cfg HNSWConfig) *HNSWBackend {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HNSWBackend{
		cfg:         cfg,
		collections: make(map[string]*hnswCollection),
		logger:      cfg.Logger,
	}
}

// OpenHNSWBackend loads any collections saved under cfg.Dir and, when a
// flush interval is set, saves changed collections in the background until
// Close.
func OpenHNSWBackend(cfg HNSWConfig) (*HNSWBackend, error) {
	b := NewHNSWBackend(cfg)
	if b.cfg.Dir == "" {
		return b, nil
	}
	if err := b.Load(); err != nil {
		return nil, err
	}
	if b.cfg.FlushInterval > 0 {
		b.stop = make(chan struct{})
		b.stopped = make(chan struct{})
		go b.flushLoop()
	}
	return b, nil
}

func (b *HNSWBackend) flushLoop() {
	defer close(b.stopped)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.Save(); err != nil {
				b.logger.Error("flush vector index failed", "err", err)
			}
		}
	}
}

// Close stops the background flush and saves what changed since.
func (b *HNSWBackend) Close() error {
	b.stopOnce.Do(func() {
		if b.stop != nil {
			close(b.stop)
			<-b.stopped
		}
	})
	return b.Save()
}

func (b *HNSWBackend) newCollection(dims int) *hnswCollection {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = b.cfg.M
	graph.EfSearch = b.cfg.EfSearch
	graph.Ml = 0.25
	return &hnswCollection{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		items:  make(map[string]StoredItem),
	}
}

func (b *HNSWBackend) Upsert(_ context.Context, collection string, items []StoredItem) error {
	if len(items) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	col, ok := b.collections[collection]
	if !ok {
		col = b.newCollection(len(items[0].Embedding))
	}
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("upsert into %s: empty item id", collection)
		}
		if len(item.Embedding) == 0 || len(item.Embedding) != col.dims {
			return fmt.Errorf("upsert into %s: %w: want %d, got %d",
				collection, ErrDimensionMismatch, col.dims, len(item.Embedding))
		}
	}
	b.collections[collection] = col

	for _, item := range items {
		if oldKey, exists := col.idMap[item.ID]; exists {
			delete(col.keyMap, oldKey)
		}

		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)

		key := col.nextKey
		col.nextKey++
		col.graph.Add(hnsw.MakeNode(key, vec))

		col.idMap[item.ID] = key
		col.keyMap[key] = item.ID
		col.items[item.ID] = StoredItem{
			ID:        item.ID,
			Document:  item.Document,
			Embedding: vec,
			Metadata:  copyMetadata(item.Metadata),
		}
	}
	col.dirty = true
	return nil
}

func (b *HNSWBackend) Query(_ context.Context, collection string, vector []float32, k int) ([]ContextItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	col, ok := b.collections[collection]
	if !ok || k <= 0 || len(col.idMap) == 0 {
		return []ContextItem{}, nil
	}
	if len(vector) != col.dims {
		return nil, fmt.Errorf("query %s: %w: want %d, got %d",
			collection, ErrDimensionMismatch, col.dims, len(vector))
	}

	// Orphaned nodes can crowd out live ones, so ask for enough to cover them.
	orphans := col.graph.Len() - len(col.idMap)
	nodes := col.graph.Search(vector, min(k+orphans, col.graph.Len()))

	results := make([]ContextItem, 0, k)
	for _, node := range nodes {
		id, live := col.keyMap[node.Key]
		if !live {
			continue
		}
		item := col.items[id]
		results = append(results, ContextItem{
			ID:       id,
			Document: item.Document,
			Metadata: copyMetadata(item.Metadata),
			Distance: distancePtr(col.graph.Distance(vector, node.Value)),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (b *HNSWBackend) Delete(_ context.Context, collection string, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, ok := b.collections[collection]
	if !ok {
		return nil
	}
	removed := false
	for _, id := range ids {
		if key, exists := col.idMap[id]; exists {
			delete(col.keyMap, key)
			delete(col.idMap, id)
			delete(col.items, id)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	col.dirty = true
	// Deleted items must not come back after a restart, so deletes are
	// written through.
	if b.cfg.Dir != "" {
		if err := b.saveCollection(collection, col); err != nil {
			return fmt.Errorf("delete from %s: %w", collection, err)
		}
	}
	return nil
}

func (b *HNSWBackend) Get(_ context.Context, collection string, ids []string) ([]StoredItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	col, ok := b.collections[collection]
	if !ok {
		return []StoredItem{}, nil
	}
	out := make([]StoredItem, 0, len(ids))
	for _, id := range ids {
		if item, exists := col.items[id]; exists {
			item.Metadata = copyMetadata(item.Metadata)
			out = append(out, item)
		}
	}
	return out, nil
}

func (b *HNSWBackend) Ping(context.Context) error {
	return nil
}

// Count reports live items in a collection.
func (b *HNSWBackend) Count(collection string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if col, ok := b.collections[collection]; ok {
		return len(col.idMap)
	}
	return 0
}
