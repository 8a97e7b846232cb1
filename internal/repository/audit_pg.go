package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GoAutonity/dripgate/internal/model"
)

// PostgresAuditRepo persists faucet distribution records.
type PostgresAuditRepo struct {
	db *gorm.DB
}

func NewPostgresAuditRepo(db *gorm.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	if db != nil {
		_ = db.AutoMigrate(&model.Distribution{})
	}
	return repo
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, rec *model.Distribution) error {
	if r.db == nil || rec == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *PostgresAuditRepo) List(ctx context.Context, userID string, limit int) ([]*model.Distribution, error) {
	if r.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&model.Distribution{}).Order("created_at DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var out []*model.Distribution
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
