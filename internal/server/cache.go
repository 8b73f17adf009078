package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseCache stores terminated run responses in Redis under
// {prefix}cache:{workflow}:{sha256 of the request}. Every failure is
// logged and treated as a miss.
type ResponseCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache creates a cache. A zero ttl keeps entries forever.
func NewResponseCache(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Key returns the cache key for a request to workflow.
func (c *ResponseCache) Key(workflow string, req RunRequest) string {
	// encoding/json sorts map keys, so equal inputs hash equally.
	payload, _ := json.Marshal(struct {
		Query    string         `json:"query"`
		Inputs   map[string]any `json:"inputs"`
		MaxSteps int            `json:"max_steps"`
	}{req.Query, req.Inputs, req.MaxSteps})
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%scache:%s:%s", c.prefix, workflow, hex.EncodeToString(sum[:]))
}

// Get returns the cached response, if any.
func (c *ResponseCache) Get(ctx context.Context, workflow string, req RunRequest) (RunResponse, bool) {
	key := c.Key(workflow, req)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return RunResponse{}, false
	}
	var resp RunResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cache entry unreadable", slog.String("key", key), slog.String("error", err.Error()))
		return RunResponse{}, false
	}
	resp.Cached = true
	return resp, true
}

// Put stores resp for the request.
func (c *ResponseCache) Put(ctx context.Context, workflow string, req RunRequest, resp RunResponse) {
	key := c.Key(workflow, req)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache entry not encodable", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
