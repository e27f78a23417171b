// Package cache keeps hot read models in Redis in front of PostgreSQL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/forecast"
	"stockledger/pkg/logger"
)

const (
	keyPrefix = "stockledger:forecast:"

	// Runs larger than this are stored zstd-compressed.
	compressThreshold = 1024

	frameRaw  byte = 0
	frameZstd byte = 1
)

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ForecastCache is a read-through forecast.Provider. Redis errors degrade to
// the underlying provider; they are logged, never returned.
type ForecastCache struct {
	next    forecast.Provider
	client  RedisClient
	ttl     time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ forecast.Provider = (*ForecastCache)(nil)

// NewForecastCache wraps next. A nil client disables caching.
func NewForecastCache(next forecast.Provider, client RedisClient, ttl time.Duration) (*ForecastCache, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ForecastCache{
		next:    next,
		client:  client,
		ttl:     ttl,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Latest returns the cached run or loads and caches it. Missing forecasts
// are not cached so a fresh run is picked up on the next call.
func (c *ForecastCache) Latest(ctx context.Context, productID id.ID) (*forecast.Run, error) {
	if c.client == nil {
		return c.next.Latest(ctx, productID)
	}

	key := cacheKey(productID)
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		run, decodeErr := c.decode(data)
		if decodeErr == nil {
			return run, nil
		}
		logger.Warn(ctx, "dropping undecodable cached forecast", "product_id", productID, "error", decodeErr)
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		logger.Warn(ctx, "forecast cache read failed", "product_id", productID, "error", err)
	}

	run, err := c.next.Latest(ctx, productID)
	if err != nil || run == nil {
		return run, err
	}

	encoded, err := c.encode(run)
	if err != nil {
		logger.Warn(ctx, "encode forecast for cache", "product_id", productID, "error", err)
		return run, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		logger.Warn(ctx, "forecast cache write failed", "product_id", productID, "error", err)
	}
	return run, nil
}

// Invalidate drops the cached run of a product.
func (c *ForecastCache) Invalidate(ctx context.Context, productID id.ID) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(productID)).Err()
}

func (c *ForecastCache) encode(run *forecast.Run) ([]byte, error) {
	body, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	if len(body) <= compressThreshold {
		return append([]byte{frameRaw}, body...), nil
	}
	return c.encoder.EncodeAll(body, []byte{frameZstd}), nil
}

func (c *ForecastCache) decode(data []byte) (*forecast.Run, error) {
	if len(data) == 0 {
		return nil, errors.New("empty cache entry")
	}
	body := data[1:]
	switch data[0] {
	case frameRaw:
	case frameZstd:
		var err error
		if body, err = c.decoder.DecodeAll(body, nil); err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown frame type %d", data[0])
	}

	var run forecast.Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

func cacheKey(productID id.ID) string {
	return keyPrefix + productID.String()
}
