// Package vectorstore stores embedded items in tenant-scoped collections.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	BackendHNSW   = "hnsw"
	BackendQdrant = "qdrant"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// StoredItem is one embedded document in exactly one collection.
// A metadata key whose value is unknown is left out of the map.
type StoredItem struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  map[string]string
}

// ContextItem is a query hit. Distance is nil when the backend reports none;
// lower means more similar. Source is filled in by callers that fuse results.
type ContextItem struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Distance *float32          `json:"distance"`
	Source   string            `json:"source,omitempty"`
}

// Backend is one vector index implementation, picked at startup.
type Backend interface {
	Upsert(ctx context.Context, collection string, items []StoredItem) error
	Query(ctx context.Context, collection string, vector []float32, k int) ([]ContextItem, error)
	Delete(ctx context.Context, collection string, ids []string) error
	Get(ctx context.Context, collection string, ids []string) ([]StoredItem, error)
	Ping(ctx context.Context) error
}

func OrgDocsCollection(orgID uint) string {
	return fmt.Sprintf("org_%d_docs", orgID)
}

func UserChatsCollection(userID uint) string {
	return fmt.Sprintf("user_%d_chats", userID)
}

type BackendConfig struct {
	Backend      string
	QdrantURL    string
	QdrantAPIKey string
	HNSWM        int
	HNSWEfSearch int

	// HNSWDir persists the in-process index; empty means memory only.
	HNSWDir           string
	HNSWFlushInterval time.Duration
	Logger            *slog.Logger
}

// NewBackend builds the backend named by cfg.Backend.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendHNSW, "":
		backend, err := OpenHNSWBackend(HNSWConfig{
			M:             cfg.HNSWM,
			EfSearch:      cfg.HNSWEfSearch,
			Dir:           cfg.HNSWDir,
			FlushInterval: cfg.HNSWFlushInterval,
			Logger:        cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open hnsw index failed: %w", err)
		}
		return backend, nil
	case BackendQdrant:
		if cfg.QdrantURL == "" {
			return nil, fmt.Errorf("qdrant backend requires a url")
		}
		return NewQdrantBackend(QdrantConfig{URL: cfg.QdrantURL, APIKey: cfg.QdrantAPIKey}), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

func distancePtr(d float32) *float32 {
	return &d
}

func copyMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
