package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dniswara/wanotify/internal/model"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	Recipient string          `json:"recipient"`
	Gateway   model.GatewayID `json:"gateway"`
	SentAt    time.Time       `json:"sentAt"`
}

func (c *RedisCache) StoreSent(ctx context.Context, messageID, recipient string, gw model.GatewayID, sentAt time.Time) error {
	key := fmt.Sprintf("msg:%s", messageID)
	val := sentValue{
		Recipient: recipient,
		Gateway:   gw,
		SentAt:    sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
