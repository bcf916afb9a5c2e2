package bankdirectory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aidin1998/instapay/pkg/models"
)

// RedisCache stores directory answers as JSON with an expiration
type RedisCache struct {
	client     *redis.Client
	expiration time.Duration
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, expiration time.Duration) *RedisCache {
	return &RedisCache{
		client:     client,
		expiration: expiration,
	}
}

func (c *RedisCache) key(clientCode string) string {
	return fmt.Sprintf("instapay:bank-details:%s", clientCode)
}

func (c *RedisCache) Get(ctx context.Context, clientCode string) ([]models.BankAccount, bool, error) {
	raw, err := c.client.Get(ctx, c.key(clientCode)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached bank details: %w", err)
	}
	var accounts []models.BankAccount
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached bank details: %w", err)
	}
	return accounts, true, nil
}

func (c *RedisCache) Set(ctx context.Context, clientCode string, accounts []models.BankAccount) error {
	raw, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to encode bank details: %w", err)
	}
	if err := c.client.Set(ctx, c.key(clientCode), raw, c.expiration).Err(); err != nil {
		return fmt.Errorf("failed to cache bank details: %w", err)
	}
	return nil
}
