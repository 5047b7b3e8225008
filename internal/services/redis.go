package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// InitRedis initializes the Redis client
func InitRedis() error {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://redis:6379" // Default Redis address for Docker
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	RedisClient = redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	_, err = RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return nil
}

// SetPullerPresence stores a puller's online flag with a TTL so stale
// sessions age out on their own.
func SetPullerPresence(ctx context.Context, pullerID uint, online bool) error {
	key := fmt.Sprintf("puller:online:%d", pullerID)
	value := "false"
	if online {
		value = "true"
	}
	return RedisClient.Set(ctx, key, value, time.Hour).Err()
}

// GetPullerPresence retrieves a puller's online flag. A missing key reads as
// offline.
func GetPullerPresence(ctx context.Context, pullerID uint) (bool, error) {
	key := fmt.Sprintf("puller:online:%d", pullerID)
	result, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result == "true", nil
}
