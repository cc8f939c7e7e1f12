package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CheckCache は機能判定結果の短期キャッシュのインターフェースを定義する。
type CheckCache interface {
	// Get はキャッシュされた判定結果を返す。ミス時はnilを返す。
	Get(ctx context.Context, userID, featureID string) (*CheckResult, error)
	// Set は判定結果をTTL付きで保存する。
	Set(ctx context.Context, userID, featureID string, result *CheckResult) error
	// Invalidate は指定ユーザーの全機能のキャッシュを破棄する。
	// チェックアウト完了後などプランが変わり得るタイミングで呼ぶ。
	Invalidate(ctx context.Context, userID string) error
}

// RedisCheckCache はRedisを使用した判定結果キャッシュ。
type RedisCheckCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCheckCache はRedisCheckCacheを生成する。
func NewRedisCheckCache(client *redis.Client, ttl time.Duration) *RedisCheckCache {
	return &RedisCheckCache{client: client, ttl: ttl}
}

func cacheKey(userID, featureID string) string {
	return fmt.Sprintf("entitlement:%s:%s", userID, featureID)
}

// Get はキャッシュされた判定結果を返す。ミス時はnilを返す。
func (c *RedisCheckCache) Get(ctx context.Context, userID, featureID string) (*CheckResult, error) {
	data, err := c.client.Get(ctx, cacheKey(userID, featureID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached check result: %w", err)
	}

	result := &CheckResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached check result: %w", err)
	}
	return result, nil
}

// Set は判定結果をTTL付きで保存する。
func (c *RedisCheckCache) Set(ctx context.Context, userID, featureID string, result *CheckResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal check result: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(userID, featureID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache check result: %w", err)
	}
	return nil
}

// Invalidate は指定ユーザーの全機能のキャッシュを破棄する。
func (c *RedisCheckCache) Invalidate(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(knownFeatures))
	for featureID := range knownFeatures {
		keys = append(keys, cacheKey(userID, featureID))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate check cache: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CheckCache = (*RedisCheckCache)(nil)
