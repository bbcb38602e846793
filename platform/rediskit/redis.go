// Package rediskit builds Redis clients shared by the session store,
// the distributed limiter and lock, and the asynq job queue.
package rediskit

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// NewClient parses the configured URL and pings the server.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := parse(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// AsynqOpt converts the configured URL into asynq connection options.
func AsynqOpt(cfg config.RedisConfig) (asynq.RedisClientOpt, error) {
	opt, err := parse(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

func parse(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if cfg.GetRedisTLSInsecure() {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if cfg.GetRedisTLSInsecure() {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return opt, nil
}
