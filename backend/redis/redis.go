// Package redis factors a respool.Config suitable for pooling
// *redis.Client connections, demonstrating the factory/health/closer
// contract against a real request/response resource.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tsurugi-dev/respool"
)

// Options configures Config. Addr, DB, and Password are passed straight
// through to redis.Options for every connection the pool constructs.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Config returns a respool.Config whose Fun, Health, and Closer hooks are
// wired against *redis.Client, leaving MaxSize, MinSize, and the timing
// fields for the caller to set.
func Config(opts Options) respool.Config {
	return respool.Config{
		Fun: func(id int64) (any, error) {
			client := redis.NewClient(&redis.Options{
				Addr:     opts.Addr,
				Password: opts.Password,
				DB:       opts.DB,
			})

			if err := client.Ping(context.Background()).Err(); err != nil {
				client.Close()
				return nil, fmt.Errorf("redis backend: dial %s: %w", opts.Addr, err)
			}

			return client, nil
		},

		Health: func(obj any) bool {
			client := obj.(*redis.Client)
			return client.Ping(context.Background()).Err() == nil
		},

		Closer: func(obj any) {
			obj.(*redis.Client).Close()
		},
	}
}
