package repository

import (
	"context"
	"fmt"
	"sync"

	"gopherai-assistant/internal/model"
)

// MemoryRepository keeps records in process. Used for local runs and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	partitions map[string][]model.Record
	ids        map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		partitions: make(map[string][]model.Record),
		ids:        make(map[string]struct{}),
	}
}

func (r *MemoryRepository) Create(_ context.Context, record *model.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[record.ID]; exists {
		return fmt.Errorf("create interaction record failed: duplicate id %s", record.ID)
	}
	key := record.Partition().Key()
	r.partitions[key] = append(r.partitions[key], *record)
	r.ids[record.ID] = struct{}{}
	return nil
}

func (r *MemoryRepository) ListByPartition(_ context.Context, partition model.Partition, limit int) ([]model.Record, error) {
	r.mu.RLock()
	stored := r.partitions[partition.Key()]
	records := make([]model.Record, len(stored))
	copy(records, stored)
	r.mu.RUnlock()

	model.SortNewestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }
