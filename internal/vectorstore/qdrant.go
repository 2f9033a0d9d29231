package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const payloadDocumentKey = "document"

var errQdrantNotFound = errors.New("qdrant: not found")

type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// QdrantBackend is a REST client for Qdrant. Collections use cosine
// distance and are created on first upsert with the size of the first vector.
type QdrantBackend struct {
	url    string
	apiKey string
	client *http.Client

	mu      sync.Mutex
	ensured map[string]bool

	// ensuring collapses concurrent first upserts into one collection.
	ensuring singleflight.Group
}

func NewQdrantBackend(cfg QdrantConfig) *QdrantBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantBackend{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		ensured: make(map[string]bool),
	}
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func (q *QdrantBackend) isEnsured(collection string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ensured[collection]
}

// ensureCollection creates the collection if Qdrant does not have it yet.
// No lock is held across the HTTP calls.
func (q *QdrantBackend) ensureCollection(ctx context.Context, collection string, dims int) error {
	if q.isEnsured(collection) {
		return nil
	}

	_, err, _ := q.ensuring.Do(collection, func() (interface{}, error) {
		if q.isEnsured(collection) {
			return nil, nil
		}
		err := q.do(ctx, http.MethodGet, "/collections/"+collection, nil, nil)
		if errors.Is(err, errQdrantNotFound) {
			body := map[string]interface{}{
				"vectors": map[string]interface{}{
					"size":     dims,
					"distance": "Cosine",
				},
			}
			err = q.do(ctx, http.MethodPut, "/collections/"+collection, body, nil)
		}
		if err != nil {
			return nil, err
		}
		q.mu.Lock()
		q.ensured[collection] = true
		q.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("ensure collection %s failed: %w", collection, err)
	}
	return nil
}

func (q *QdrantBackend) Upsert(ctx context.Context, collection string, items []StoredItem) error {
	if len(items) == 0 {
		return nil
	}
	dims := len(items[0].Embedding)
	points := make([]qdrantPoint, len(items))
	for i, item := range items {
		if len(item.Embedding) == 0 || len(item.Embedding) != dims {
			return fmt.Errorf("upsert into %s: %w", collection, ErrDimensionMismatch)
		}
		payload := make(map[string]interface{}, len(item.Metadata)+1)
		for k, v := range item.Metadata {
			payload[k] = v
		}
		payload[payloadDocumentKey] = item.Document
		points[i] = qdrantPoint{ID: item.ID, Vector: item.Embedding, Payload: payload}
	}

	if err := q.ensureCollection(ctx, collection, dims); err != nil {
		return err
	}
	body := map[string]interface{}{"points": points}
	if err := q.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert into %s failed: %w", collection, err)
	}
	return nil
}

func (q *QdrantBackend) Query(ctx context.Context, collection string, vector []float32, k int) ([]ContextItem, error) {
	if k <= 0 {
		return []ContextItem{}, nil
	}
	req := map[string]interface{}{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req, &resp)
	if errors.Is(err, errQdrantNotFound) {
		return []ContextItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", collection, err)
	}

	results := make([]ContextItem, 0, len(resp.Result))
	for _, r := range resp.Result {
		doc, meta := splitPayload(r.Payload)
		results = append(results, ContextItem{
			ID:       fmt.Sprint(r.ID),
			Document: doc,
			Metadata: meta,
			Distance: distancePtr(1 - r.Score),
		})
	}
	return results, nil
}

func (q *QdrantBackend) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]interface{}{"points": ids}
	err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
	if errors.Is(err, errQdrantNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete from %s failed: %w", collection, err)
	}
	return nil
}

func (q *QdrantBackend) Get(ctx context.Context, collection string, ids []string) ([]StoredItem, error) {
	if len(ids) == 0 {
		return []StoredItem{}, nil
	}
	body := map[string]interface{}{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Vector  []float32              `json:"vector"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points", body, &resp)
	if errors.Is(err, errQdrantNotFound) {
		return []StoredItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get from %s failed: %w", collection, err)
	}

	items := make([]StoredItem, 0, len(resp.Result))
	for _, r := range resp.Result {
		doc, meta := splitPayload(r.Payload)
		items = append(items, StoredItem{
			ID:        fmt.Sprint(r.ID),
			Document:  doc,
			Embedding: r.Vector,
			Metadata:  meta,
		})
	}
	return items, nil
}

func (q *QdrantBackend) Ping(ctx context.Context) error {
	return q.do(ctx, http.MethodGet, "/collections", nil, nil)
}

func (q *QdrantBackend) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return fmt.Errorf("build qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errQdrantNotFound
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func splitPayload(payload map[string]interface{}) (string, map[string]string) {
	var doc string
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		if k == payloadDocumentKey {
			doc, _ = v.(string)
			continue
		}
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			meta[k] = s
		} else {
			meta[k] = fmt.Sprint(v)
		}
	}
	return doc, meta
}
