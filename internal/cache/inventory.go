package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	UserKeyPrefix        = "user:%d"
	RequestKeyPrefix     = "request:%s"
	StatisticsKey        = "statistics:requests"
	DraftsKeyPrefix      = "drafts:%d"
	TokenBlacklistPrefix = "blacklist:%s"
)

const (
	UserTTL       = 5 * time.Minute
	RequestTTL    = 2 * time.Minute
	StatisticsTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func RequestKey(requestID string) string {
	return fmt.Sprintf(RequestKeyPrefix, requestID)
}

func DraftsKey(userID uint) string {
	return fmt.Sprintf(DraftsKeyPrefix, userID)
}

func BlacklistKey(jti string) string {
	return fmt.Sprintf(TokenBlacklistPrefix, jti)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidateRequest(ctx context.Context, requestID string) {
	Invalidate(ctx, RequestKey(requestID))
	Invalidate(ctx, StatisticsKey)
}

// GetJSON fetches and unmarshals a cached value into dest.
// Returns false when the cache is unavailable or the key is missing.
func GetJSON(ctx context.Context, key string, dest any) bool {
	if client == nil {
		return false
	}
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// SetJSON marshals and stores a value with the given TTL. Best effort.
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	client.Set(ctx, key, raw, ttl)
}

// Aside tries Redis first, on miss it calls fetch (which should populate dest),
// then stores the result in Redis with ttl. fetch must write into dest.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if GetJSON(ctx, key, dest) {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	// Store into cache (best-effort)
	SetJSON(ctx, key, dest, ttl)
	return nil
}

// BlacklistToken marks a JWT ID as revoked until its natural expiry.
func BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if client == nil {
		return redis.ErrClosed
	}
	return client.Set(ctx, BlacklistKey(jti), "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a JWT ID has been revoked.
func IsTokenBlacklisted(ctx context.Context, jti string) bool {
	if client == nil {
		return false
	}
	n, err := client.Exists(ctx, BlacklistKey(jti)).Result()
	return err == nil && n > 0
}
