package config

import (
	"context"
	"crypto/tls"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server shared by the rate limiter, the
// response cache and idempotency replay.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TLS      bool
	Insecure bool // skip certificate verification; only for local tunnels
}

func LoadRedisConfig() RedisConfig {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Enabled:  envBool("REDIS_ENABLED", true),
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
		TLS:      envBool("REDIS_TLS", false),
		Insecure: envBool("REDIS_TLS_INSECURE", false),
	}
}

// NewRedisClient connects and pings.  It returns nil when Redis is disabled
// or unreachable; callers then fall back to in-process rate limiting and
// run without the cache and idempotency replay.
func NewRedisClient(c RedisConfig, log *slog.Logger) *redis.Client {
	if !c.Enabled {
		return nil
	}
	opts := &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.Insecure}
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, continuing without it", "addr", c.Addr, "err", err)
		_ = client.Close()
		return nil
	}
	return client
}
