package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

const (
	boardKeyPrefix = "board:"
	assetsKey      = "board:assets"
)

// SnapshotCache keeps the latest enriched board per underlying in Redis so
// that API reads never touch the analytics pipeline. Snapshots expire after
// the configured TTL; the asset index is refreshed on every publish.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("NewSnapshotCache: failed to ping redis at %s: %w", addr, err)
	}

	return &SnapshotCache{client: client, ttl: ttl}, nil
}

func boardKey(underlying string) string {
	return boardKeyPrefix + underlying
}

// PublishBoard replaces the cached snapshot for the snapshot's underlying and
// registers the underlying in the asset index.
func (c *SnapshotCache) PublishBoard(ctx context.Context, snapshot eventmodels.BoardSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("PublishBoard: failed to marshal snapshot for %s: %w", snapshot.Underlying, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, boardKey(snapshot.Underlying), payload, c.ttl)
	pipe.SAdd(ctx, assetsKey, snapshot.Underlying)
	pipe.Expire(ctx, assetsKey, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("PublishBoard: failed to write snapshot for %s: %w", snapshot.Underlying, err)
	}

	return nil
}

// GetBoard returns the cached snapshot for an underlying. The second return
// is false when no snapshot is cached (or it has expired).
func (c *SnapshotCache) GetBoard(ctx context.Context, underlying string) (eventmodels.BoardSnapshot, bool, error) {
	var snapshot eventmodels.BoardSnapshot

	payload, err := c.client.Get(ctx, boardKey(underlying)).Bytes()
	if err == redis.Nil {
		return snapshot, false, nil
	}
	if err != nil {
		return snapshot, false, fmt.Errorf("GetBoard: failed to read snapshot for %s: %w", underlying, err)
	}

	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return snapshot, false, fmt.Errorf("GetBoard: failed to unmarshal snapshot for %s: %w", underlying, err)
	}

	return snapshot, true, nil
}

// Assets lists the underlyings with a cached snapshot, sorted for stable
// API responses.
func (c *SnapshotCache) Assets(ctx context.Context) ([]string, error) {
	assets, err := c.client.SMembers(ctx, assetsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("Assets: failed to read asset index: %w", err)
	}

	sort.Strings(assets)

	return assets, nil
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
