// Package db holds the optional Redis integration: a run lock that keeps
// overlapping runs from creating the same cards twice, and card-created
// event publishing.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	clientName  = "tendersync"
	pingTimeout = 5 * time.Second
	keyPrefix   = "tendersync:"
)

// NewRedisClient parses redisURL and verifies connectivity. Redis is
// optional for the service, so a slow server fails fast instead of holding
// up the run.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	opts.ClientName = clientName
	if opts.DialTimeout == 0 {
		opts.DialTimeout = pingTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// LockKey is the run-lock key for one board.
func LockKey(boardID string) string { return keyPrefix + "lock:" + boardID }
