package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis builds the client used for the change-feed stream.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            addr,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
	})
}
