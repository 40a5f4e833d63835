package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gopherai-assistant/internal/metrics"
	"gopherai-assistant/internal/model"
)

// ErrHistoryNotSaved wraps every failure to persist a record.
var ErrHistoryNotSaved = errors.New("history not saved")

type Repository interface {
	Create(ctx context.Context, record *model.Record) error
	ListByPartition(ctx context.Context, partition model.Partition, limit int) ([]model.Record, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, partition model.Partition) ([]model.Record, bool, error)
	SetHistory(ctx context.Context, partition model.Partition, records []model.Record) error
	DeleteHistory(ctx context.Context, partition model.Partition) error
	MarkDirty(ctx context.Context, partition model.Partition) error
	IsDirty(ctx context.Context, partition model.Partition) (bool, error)
}

// ChangeEvent announces a new record to other service instances.
type ChangeEvent struct {
	AppID    string    `json:"app_id"`
	UserID   string    `json:"user_id"`
	RecordID string    `json:"record_id"`
	Type     string    `json:"type"`
	Origin   string    `json:"origin"`
	At       time.Time `json:"at"`
}

func (e ChangeEvent) Partition() model.Partition {
	return model.Partition{AppID: e.AppID, UserID: e.UserID}
}

type ChangePublisher interface {
	PublishChange(ctx context.Context, event ChangeEvent) error
}

type Options struct {
	Cache      HistoryCache
	Publisher  ChangePublisher
	Logger     *zap.Logger
	Now        func() time.Time
	InstanceID string
}

// Store is the append-only interaction log with live per-partition subscriptions.
type Store struct {
	repo       Repository
	cache      HistoryCache
	publisher  ChangePublisher
	logger     *zap.Logger
	now        func() time.Time
	instanceID string

	clockMu sync.Mutex
	lastTS  time.Time

	hub *hub
}

func New(repo Repository, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	return &Store{
		repo:       repo,
		cache:      opts.Cache,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		now:        opts.Now,
		instanceID: opts.InstanceID,
		hub:        newHub(),
	}
}

// InstanceID identifies this store in change events.
func (s *Store) InstanceID() string {
	return s.instanceID
}

// Append validates record, assigns its id and timestamp, and persists it.
// Subscribers of the partition are notified once the write succeeded.
func (s *Store) Append(ctx context.Context, record *model.Record) error {
	if err := record.Validate(); err != nil {
		metrics.StoreAppends.WithLabelValues(record.Type, "invalid").Inc()
		return fmt.Errorf("%w: %w", ErrHistoryNotSaved, err)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Timestamp = s.nextTimestamp()

	partition := record.Partition()
	if s.cache != nil {
		if err := s.cache.MarkDirty(ctx, partition); err != nil {
			s.logger.Warn("mark history dirty failed", zap.String("partition", partition.Key()), zap.Error(err))
		}
		if err := s.cache.DeleteHistory(ctx, partition); err != nil {
			s.logger.Warn("drop cached history failed", zap.String("partition", partition.Key()), zap.Error(err))
		}
	}

	if err := s.repo.Create(ctx, record); err != nil {
		metrics.StoreAppends.WithLabelValues(record.Type, "error").Inc()
		return fmt.Errorf("%w: %w", ErrHistoryNotSaved, err)
	}
	metrics.StoreAppends.WithLabelValues(record.Type, "ok").Inc()

	s.hub.notify(partition)

	if s.publisher != nil {
		event := ChangeEvent{
			AppID:    record.AppID,
			UserID:   record.UserID,
			RecordID: record.ID,
			Type:     record.Type,
			Origin:   s.instanceID,
			At:       record.Timestamp,
		}
		if err := s.publisher.PublishChange(ctx, event); err != nil {
			s.logger.Warn("publish change event failed", zap.String("record_id", record.ID), zap.Error(err))
		}
	}
	return nil
}

// Snapshot returns every record of a partition, newest first.
func (s *Store) Snapshot(ctx context.Context, partition model.Partition) ([]model.Record, error) {
	if !partition.Valid() {
		return nil, fmt.Errorf("%w: partition is incomplete", model.ErrInvalidRecord)
	}

	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, partition)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetHistory(ctx, partition); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	records, err := s.repo.ListByPartition(ctx, partition, 0)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if dirty, dirtyErr := s.cache.IsDirty(ctx, partition); dirtyErr == nil && !dirty {
			if err := s.cache.SetHistory(ctx, partition, records); err != nil {
				s.logger.Debug("cache history failed", zap.Error(err))
			}
		}
	}
	return records, nil
}

// Notify wakes the subscribers of partition, e.g. after a remote change event.
func (s *Store) Notify(partition model.Partition) {
	if s.cache != nil {
		if err := s.cache.DeleteHistory(context.Background(), partition); err != nil {
			s.logger.Debug("drop cached history failed", zap.Error(err))
		}
	}
	s.hub.notify(partition)
}

// HandleChange applies a change event from the feed; events this store
// published itself are ignored.
func (s *Store) HandleChange(event ChangeEvent) {
	if event.Origin == s.instanceID {
		return
	}
	s.Notify(event.Partition())
}

// SubscriberCount returns the number of live subscriptions.
func (s *Store) SubscriberCount() int {
	return s.hub.count()
}

// nextTimestamp returns a strictly increasing millisecond timestamp.
func (s *Store) nextTimestamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	ts := s.now().UTC().Truncate(time.Millisecond)
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Millisecond)
	}
	s.lastTS = ts
	return ts
}
