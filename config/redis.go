package config

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewRedis accepts either a host:port address or a redis:// / rediss:// URL.
func NewRedis(ctx context.Context, target string) (*redis.Client, error) {
	if target == "" {
		return nil, errors.New("REDIS_ADDR (or REDIS_URL) environment variable is not set")
	}

	var rdb *redis.Client
	if strings.HasPrefix(target, "redis://") || strings.HasPrefix(target, "rediss://") {
		opt, err := redis.ParseURL(target)
		if err != nil {
			return nil, err
		}
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: target})
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
