package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/tablecast/models"
	"github.com/amirphl/tablecast/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageTemplateRepositoryImpl implements MessageTemplateRepository
type MessageTemplateRepositoryImpl struct {
	*BaseRepository[models.MessageTemplate, models.MessageTemplateFilter]
}

func NewMessageTemplateRepository(db *gorm.DB) MessageTemplateRepository {
	return &MessageTemplateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageTemplate, models.MessageTemplateFilter](db),
	}
}

func (r *MessageTemplateRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.MessageTemplate, error) {
	rows, err := r.ByFilter(ctx, models.MessageTemplateFilter{UUID: &id}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListActive returns active templates, newest first
func (r *MessageTemplateRepositoryImpl) ListActive(ctx context.Context, limit, offset int) ([]*models.MessageTemplate, error) {
	return r.ByFilter(ctx, models.MessageTemplateFilter{IsActive: utils.ToPtr(true)}, "created_at DESC, id DESC", limit, offset)
}

func (r *MessageTemplateRepositoryImpl) applyFilter(db *gorm.DB, f models.MessageTemplateFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.Label != nil {
		db = db.Where("label = ?", *f.Label)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	if f.Platform != nil {
		db = db.Where("platform = ?", *f.Platform)
	}
	return db
}

func (r *MessageTemplateRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageTemplateFilter, orderBy string, limit, offset int) ([]*models.MessageTemplate, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MessageTemplate{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.MessageTemplate
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find message templates by filter: %w", err)
	}
	return rows, nil
}

func (r *MessageTemplateRepositoryImpl) Count(ctx context.Context, filter models.MessageTemplateFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MessageTemplate{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MessageTemplateRepositoryImpl) Exists(ctx context.Context, filter models.MessageTemplateFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
