package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rdb is the shared Redis client; nil when REDIS_URL is not configured.
// Redis only fronts read-heavy leaderboard queries, it is never the source
// of truth.
var Rdb *redis.Client

const topUsersTTL = 30 * time.Second

// InitializeRedis connects the optional Redis cache.
func InitializeRedis() error {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	Rdb = client
	log.Println("Redis cache connected")
	return nil
}

// CloseRedis closes the Redis client.
func CloseRedis() {
	if Rdb != nil {
		Rdb.Close()
		Rdb = nil
	}
}

// CacheJSON stores a JSON-encoded value under key with a TTL.
func CacheJSON(key string, value interface{}, ttl time.Duration) {
	if Rdb == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := Rdb.Set(context.Background(), key, data, ttl).Err(); err != nil {
		log.Printf("Redis set %s failed: %v", key, err)
	}
}

// FetchJSON loads a JSON-encoded value; reports whether the key was present.
func FetchJSON(key string, out interface{}) bool {
	if Rdb == nil {
		return false
	}
	data, err := Rdb.Get(context.Background(), key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// DropCacheKey invalidates one cached key.
func DropCacheKey(key string) {
	if Rdb == nil {
		return
	}
	Rdb.Del(context.Background(), key)
}

func topUsersKey(limit int) string {
	return fmt.Sprintf("ledger:top:%d", limit)
}

func cacheTopUsers(limit int, users []*User) {
	CacheJSON(topUsersKey(limit), users, topUsersTTL)
}

func getCachedTopUsers(limit int) ([]*User, bool) {
	var users []*User
	if FetchJSON(topUsersKey(limit), &users) {
		return users, true
	}
	return nil, false
}
