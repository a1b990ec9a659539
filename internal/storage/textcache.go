package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/justyntemme/bookhaven/internal/models"
)

// TextCache keeps extracted book text between requests
type TextCache interface {
	Get(ctx context.Context, bookID string) (*models.ExtractedText, bool, error)
	Set(ctx context.Context, bookID string, text *models.ExtractedText) error
	Delete(ctx context.Context, bookID string) error
}

// RedisTextCache stores extracted text in Redis with TTL
type RedisTextCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTextCache builds a Redis-backed text cache
func NewRedisTextCache(addr, password string, db int, ttl time.Duration) *RedisTextCache {
	return &RedisTextCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func textKey(bookID string) string {
	return "bookhaven:text:" + bookID
}

// Ping checks that Redis is reachable
func (c *RedisTextCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached text for a book
func (c *RedisTextCache) Get(ctx context.Context, bookID string) (*models.ExtractedText, bool, error) {
	val, err := c.client.Get(ctx, textKey(bookID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var text models.ExtractedText
	if err := json.Unmarshal(val, &text); err != nil {
		return nil, false, err
	}
	return &text, true, nil
}

// Set caches the text for a book
func (c *RedisTextCache) Set(ctx context.Context, bookID string, text *models.ExtractedText) error {
	data, err := json.Marshal(text)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, textKey(bookID), data, c.ttl).Err()
}

// Delete drops the cached text for a book
func (c *RedisTextCache) Delete(ctx context.Context, bookID string) error {
	if err := c.client.Del(ctx, textKey(bookID)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisTextCache) Close() error {
	return c.client.Close()
}
