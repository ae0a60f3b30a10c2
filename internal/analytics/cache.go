package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "findash:version"
	// BumpChannel carries cache version bumps between processes.
	BumpChannel = "ledger.bump"
)

// Cache wraps Redis based caching with versioning controls.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"findash"}, parts...), ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// fetchCached returns the cached value under key or computes and stores it.
// Redis failures fall back to the loader so reports stay available without the cache.
func fetchCached[T any](ctx context.Context, c *Cache, parts []string, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	if !c.enabled() {
		return loader(ctx)
	}
	key, err := c.BuildKey(ctx, parts...)
	if err != nil {
		c.logger.Warn("cache version lookup failed", slog.Any("error", err))
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
		c.logger.Warn("cache payload discarded", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	if err := c.store(ctx, key, value); err != nil {
		return zero, err
	}
	return value, nil
}

// refreshCached always runs the loader and overwrites the cached entry.
func refreshCached[T any](ctx context.Context, c *Cache, parts []string, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	if !c.enabled() {
		return value, nil
	}
	key, err := c.BuildKey(ctx, parts...)
	if err != nil {
		c.logger.Warn("cache version lookup failed", slog.Any("error", err))
		return value, nil
	}
	if err := c.store(ctx, key, value); err != nil {
		return zero, err
	}
	return value, nil
}

func (c *Cache) store(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	return ver, c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bumps published by other processes,
// such as ledger writers sharing a different Redis version key. It returns once
// the subscription is confirmed and stops when ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if !c.enabled() {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.applyBump(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

func (c *Cache) applyBump(ctx context.Context, payload string) {
	ver, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
			c.logger.Warn("cache bump failed", slog.Any("error", err))
		}
		return
	}
	current, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache bump failed", slog.Any("error", err))
		return
	}
	if ver > current {
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			c.logger.Warn("cache bump failed", slog.Any("error", err))
		}
	}
}

func keyKPI(period DateRange, asOf time.Time) []string {
	return []string{"kpi", period.key(), asOf.Format(time.RFC3339)}
}

func keyDashboard(day time.Time) []string {
	return []string{"dashboard", day.Format(time.RFC3339)}
}

func keyTrend(months int, asOf time.Time) []string {
	return []string{"trend", strconv.Itoa(months), asOf.Format(time.RFC3339)}
}

func keyDepartments(period DateRange) []string {
	return []string{"departments", period.key()}
}

func keyLiquidity(asOf time.Time) []string {
	return []string{"liquidity", asOf.Format(time.RFC3339)}
}
