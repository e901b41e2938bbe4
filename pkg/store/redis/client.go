// Package redis opens the redis connection that carries live execution events.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/guidepath/guidepath/pkg/config"
)

const (
	dialTimeout = 2 * time.Second
	pingTimeout = 3 * time.Second
)

var ErrNoAddresses = errors.New("redis: no addresses configured")

// Client owns one redis connection pool. NewClient only returns a client whose server answered a
// ping, so callers can fall back when redis is down at startup.
type Client struct {
	rdb   redis.UniversalClient
	addrs []string
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, ErrNoAddresses
	}

	var rdb redis.UniversalClient
	if cfg.ClusterMode {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.Addresses,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			DialTimeout: dialTimeout,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:        cfg.Addresses[0],
			Password:    cfg.Password,
			DB:          cfg.DB,
			PoolSize:    cfg.PoolSize,
			DialTimeout: dialTimeout,
		})
	}

	c := &Client{rdb: rdb, addrs: cfg.Addresses}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %v unreachable: %w", c.addrs, err)
	}
	return nil
}

func (c *Client) Client() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
