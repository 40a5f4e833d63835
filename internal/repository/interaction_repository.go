package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gopherai-assistant/internal/model"
)

// noLimit is the LIMIT value gorm and SQLite read as unbounded.
const noLimit = -1

// normalizeLimit maps a non-positive limit to the whole partition.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return noLimit
	}
	return limit
}

// InteractionRepository persists records through gorm (MySQL in production).
type InteractionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

func (r *InteractionRepository) Migrate() error {
	if err := r.db.AutoMigrate(&model.Record{}); err != nil {
		return fmt.Errorf("auto migrate interactions failed: %w", err)
	}
	return nil
}

func (r *InteractionRepository) Create(ctx context.Context, record *model.Record) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create interaction record failed: %w", err)
	}
	return nil
}

func (r *InteractionRepository) ListByPartition(ctx context.Context, partition model.Partition, limit int) ([]model.Record, error) {
	var records []model.Record
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND user_id = ?", partition.AppID, partition.UserID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list interaction records failed: %w", err)
	}
	return records, nil
}

func (r *InteractionRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *InteractionRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
