package app

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"orgrag/internal/vectorstore"
)

const (
	SourceKnowledgeBase = "knowledge_base"
	SourceChatHistory   = "chat_history"
)

// Retriever fuses hits from the organization's documents and the user's chat
// history into one list ordered by distance.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
}

func NewRetriever(embedder Embedder, store VectorStore, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, logger: logger}
}

// Retrieve embeds prompt once, queries both collections with the same vector
// and k, and returns at most k items sorted by ascending distance with
// unknown distances last. An embedding failure yields no context.
func (r *Retriever) Retrieve(ctx context.Context, prompt string, orgID, userID uint, k int) []vectorstore.ContextItem {
	if k < 1 {
		k = 1
	}
	vector := r.embedder.Embed(ctx, prompt)
	if vector == nil {
		r.logger.Warn("retrieval skipped: prompt could not be embedded", "org_id", orgID, "user_id", userID)
		return []vectorstore.ContextItem{}
	}

	var docs, history []vectorstore.ContextItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs = tagSource(r.store.Query(gctx, vectorstore.OrgDocsCollection(orgID), vector, k), SourceKnowledgeBase)
		return nil
	})
	g.Go(func() error {
		history = tagSource(r.store.Query(gctx, vectorstore.UserChatsCollection(userID), vector, k), SourceChatHistory)
		return nil
	})
	_ = g.Wait()

	return fuse(k, docs, history)
}

func tagSource(items []vectorstore.ContextItem, source string) []vectorstore.ContextItem {
	for i := range items {
		items[i].Source = source
	}
	return items
}

func fuse(k int, sets ...[]vectorstore.ContextItem) []vectorstore.ContextItem {
	var merged []vectorstore.ContextItem
	for _, set := range sets {
		merged = append(merged, set...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].Distance, merged[j].Distance
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	if merged == nil {
		merged = []vectorstore.ContextItem{}
	}
	return merged
}
