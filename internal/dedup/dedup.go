package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gatekeeper-bot/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "gatekeeper:update:"
	pingTimeout = 3 * time.Second
)

// Guard remembers update ids for a TTL so Telegram redeliveries are
// dispatched once.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, cfg config.RedisConfig) (*Guard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Guard{client: client, ttl: cfg.DedupTTL}, nil
}

// FirstSeen reports whether updateID was not seen within the TTL.
func (g *Guard) FirstSeen(ctx context.Context, updateID int64) (bool, error) {
	ok, err := g.client.SetNX(ctx, key(updateID), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark update %d: %w", updateID, err)
	}
	return ok, nil
}

func (g *Guard) Close() error {
	return g.client.Close()
}

func key(updateID int64) string {
	return keyPrefix + strconv.FormatInt(updateID, 10)
}
