// Package embedding wraps the configured embedding backend with truncation,
// a timeout, a dimension check and an LRU cache. It never returns an error:
// a nil vector means no vector could be produced.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultMaxChars  = 4000
	DefaultTimeout   = 20 * time.Second
	DefaultCacheSize = 1024
)

type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Model      string
	Dimensions int
	MaxChars   int
	Timeout    time.Duration
	CacheSize  int
}

type Gateway struct {
	backend  Backend
	model    string
	maxChars int
	timeout  time.Duration
	dims     atomic.Int64
	cache    *lru.Cache[string, []float32]
	logger   *slog.Logger
}

func NewGateway(backend Backend, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, []float32](cfg.CacheSize)

	g := &Gateway{
		backend:  backend,
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		timeout:  cfg.Timeout,
		cache:    cache,
		logger:   logger,
	}
	if cfg.Dimensions > 0 {
		g.dims.Store(int64(cfg.Dimensions))
	}
	return g
}

// Dimensions is the vector length in force, or 0 before the first vector
// when none was configured.
func (g *Gateway) Dimensions() int {
	return int(g.dims.Load())
}

// Embed returns the vector for text, or nil on blank input, timeout,
// backend failure or a vector of the wrong length.
func (g *Gateway) Embed(ctx context.Context, text string) []float32 {
	text = truncate(strings.TrimSpace(text), g.maxChars)
	if text == "" {
		return nil
	}

	key := g.cacheKey(text)
	if vec, ok := g.cache.Get(key); ok {
		return vec
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vec, err := g.backend.Embed(callCtx, text)
	if err != nil {
		g.logger.Warn("embedding failed", "model", g.model, "chars", len(text), "err", err)
		return nil
	}
	if len(vec) == 0 {
		g.logger.Warn("embedding backend returned an empty vector", "model", g.model)
		return nil
	}
	if !g.acceptDimensions(len(vec)) {
		g.logger.Warn("embedding dimension mismatch",
			"model", g.model, "want", g.Dimensions(), "got", len(vec))
		return nil
	}

	g.cache.Add(key, vec)
	return vec
}

func (g *Gateway) acceptDimensions(n int) bool {
	if g.dims.CompareAndSwap(0, int64(n)) {
		return true
	}
	return g.dims.Load() == int64(n)
}

func (g *Gateway) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(g.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
