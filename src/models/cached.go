package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedLLM wraps an LLM and caches completions by prompt hash.
type CachedLLM struct {
	LLM   LLM
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedLLM keeps up to size completions, each for ttl (0 keeps them until evicted).
func NewCachedLLM(llm LLM, size int64, ttl time.Duration) (*CachedLLM, error) {
	if size <= 0 {
		size = 256
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("llm cache: %w", err)
	}
	return &CachedLLM{LLM: llm, cache: c, ttl: ttl}, nil
}

func hashKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Generate checks the cache before calling the underlying model. Errors are not cached.
func (c *CachedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	key := hashKey(prompt)
	if val, ok := c.cache.Get(key); ok {
		return val.(string), nil
	}
	res, err := c.LLM.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.cache.SetWithTTL(key, res, 1, c.ttl)
	return res, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedLLM) Wait() { c.cache.Wait() }

func (c *CachedLLM) Close() { c.cache.Close() }

var _ LLM = (*CachedLLM)(nil)
