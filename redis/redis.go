package redis

import (
	"collaborative-canvas/internal/config"
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// InitRedis connects the shared client. The same client backs the list
// cache and the realtime transport, so the pool is sized for pub/sub
// subscriptions on top of ordinary cache traffic.
func InitRedis() {
	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.RedisAddress,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Println("Redis not available. Realtime collaboration degrades to the in-process hub.")
		RedisClient = nil
		return
	}

	RedisClient = client
	log.Printf("Redis connected at %s", config.AppConfig.RedisAddress)
}
