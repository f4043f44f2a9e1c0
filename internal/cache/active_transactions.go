package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when nothing is cached for a charger.
var ErrMiss = errors.New("cache: miss")

// ActiveTransaction is the cached view of a charger's open transaction.
type ActiveTransaction struct {
	TransactionID int64     `json:"transaction_id"`
	ChargerID     string    `json:"charger_id"`
	ConnectorID   int       `json:"connector_id"`
	IDTag         string    `json:"id_tag"`
	MeterStart    int64     `json:"meter_start"`
	StartTime     time.Time `json:"start_time"`
	Simulated     bool      `json:"simulated"`
}

// ActiveTransactions caches open transactions per charger in redis.
type ActiveTransactions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewActiveTransactions returns redis-backed cache. A zero ttl keeps entries until deleted.
func NewActiveTransactions(client *redis.Client, ttl time.Duration) *ActiveTransactions {
	return &ActiveTransactions{client: client, ttl: ttl}
}

func key(chargerID string) string {
	return fmt.Sprintf("evcentral:active_tx:%s", chargerID)
}

// Put caches tx under its charger.
func (c *ActiveTransactions) Put(ctx context.Context, tx ActiveTransaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(tx.ChargerID), data, c.ttl).Err()
}

// Get returns the cached transaction or ErrMiss.
func (c *ActiveTransactions) Get(ctx context.Context, chargerID string) (*ActiveTransaction, error) {
	result, err := c.client.Get(ctx, key(chargerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var tx ActiveTransaction
	if err := json.Unmarshal([]byte(result), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Delete drops the cached entry of a charger.
func (c *ActiveTransactions) Delete(ctx context.Context, chargerID string) error {
	return c.client.Del(ctx, key(chargerID)).Err()
}
