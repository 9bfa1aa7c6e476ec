package config

import (
	"context"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock is nil until ConnectRedisWithRetry succeeds.
func GetRedisLock() *redislock.Client {
	return locker
}

func init() {
	godotenv.Load()
}

// ConnectRedisWithRetry pings REDIS_ADDRESS until it answers or ctx ends, then
// publishes the client and its lock client. Only the redis sync lock needs it.
func ConnectRedisWithRetry(ctx context.Context) {
	logger := GetLogger()
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 10),
	})

	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			logger.WithFields(logrus.Fields{"addr": addr, "attempt": attempt}).Info("connected to redis")
			return
		}
		LogError(logger, "config", "ConnectRedisWithRetry", "redis ping", addr, err)
		select {
		case <-ctx.Done():
			_ = client.Close()
			return
		case <-time.After(backoff(attempt)):
		}
	}
}
