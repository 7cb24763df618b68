package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/tablecast/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRunRepositoryImpl implements CampaignRunRepository
type CampaignRunRepositoryImpl struct {
	*BaseRepository[models.CampaignRun, models.CampaignRunFilter]
}

func NewCampaignRunRepository(db *gorm.DB) CampaignRunRepository {
	return &CampaignRunRepositoryImpl{BaseRepository: NewBaseRepository[models.CampaignRun, models.CampaignRunFilter](db)}
}

func (r *CampaignRunRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.CampaignRun, error) {
	rows, err := r.ByFilter(ctx, models.CampaignRunFilter{UUID: &id}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *CampaignRunRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignRunFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.Platform != nil {
		db = db.Where("platform = ?", *f.Platform)
	}
	if f.CreatedBy != nil {
		db = db.Where("created_by = ?", *f.CreatedBy)
	}
	if f.StartedAfter != nil {
		db = db.Where("started_at >= ?", *f.StartedAfter)
	}
	if f.StartedBefore != nil {
		db = db.Where("started_at < ?", *f.StartedBefore)
	}
	return db
}

func (r *CampaignRunRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignRunFilter, orderBy string, limit, offset int) ([]*models.CampaignRun, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignRun{}), filter)

	if orderBy == "" {
		orderBy = "started_at DESC"
	}
	query = query.Order(orderBy)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.CampaignRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find campaign runs by filter: %w", err)
	}
	return rows, nil
}

func (r *CampaignRunRepositoryImpl) Count(ctx context.Context, filter models.CampaignRunFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignRun{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignRunRepositoryImpl) Exists(ctx context.Context, filter models.CampaignRunFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
