package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type ConnectionInfo struct {
	Addr     string
	Password string
	DB       int
}

type Redis struct {
	Client *redis.Client
}

// NewConnection returns nil without error when no address is configured;
// callers treat a nil *Redis as "no cache".
func NewConnection(ctx context.Context, info ConnectionInfo) (*Redis, error) {
	if info.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     info.Addr,
		Password: info.Password,
		DB:       info.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{Client: client}, nil
}

func (r *Redis) Close() error {
	if r != nil && r.Client != nil {
		return r.Client.Close()
	}
	return nil
}
