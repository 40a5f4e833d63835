package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"gopherai-assistant/internal/model"
)

// HistoryCache keeps the latest ordered snapshot of a partition in Redis. A
// short-lived dirty marker is set around writes so readers skip a snapshot that
// may predate the write.
type HistoryCache struct {
	client         redisv9.UniversalClient
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client redisv9.UniversalClient, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, partition model.Partition) ([]model.Record, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(partition)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var records []cachedRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	out := make([]model.Record, len(records))
	for i := range records {
		out[i] = records[i].toModel()
	}
	return out, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, partition model.Partition, records []model.Record) error {
	cached := make([]cachedRecord, len(records))
	for i := range records {
		cached[i] = fromModel(records[i])
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(partition), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, partition model.Partition) error {
	if err := c.client.Del(ctx, c.historyKey(partition)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) MarkDirty(ctx context.Context, partition model.Partition) error {
	if err := c.client.Set(ctx, c.dirtyKey(partition), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, partition model.Partition) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(partition)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(partition model.Partition) string {
	return fmt.Sprintf("assistant:history:%s", partition.Key())
}

func (c *HistoryCache) dirtyKey(partition model.Partition) string {
	return fmt.Sprintf("assistant:history:dirty:%s", partition.Key())
}

// cachedRecord carries the partition fields that model.Record hides from JSON.
type cachedRecord struct {
	model.Record
	AppID  string `json:"appId"`
	UserID string `json:"userId"`
}

func fromModel(r model.Record) cachedRecord {
	return cachedRecord{Record: r, AppID: r.AppID, UserID: r.UserID}
}

func (c cachedRecord) toModel() model.Record {
	r := c.Record
	r.AppID = c.AppID
	r.UserID = c.UserID
	return r
}
