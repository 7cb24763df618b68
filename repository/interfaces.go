// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/amirphl/tablecast/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CustomerRepository defines operations for customers and their order aggregates
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]
	ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Customer, error)
	// AggregateSnapshot returns every customer joined with statistics over its order history, ordered by id
	AggregateSnapshot(ctx context.Context) ([]*models.CustomerAggregate, error)
}

// MessageTemplateRepository defines operations for saved message templates
type MessageTemplateRepository interface {
	Repository[models.MessageTemplate, models.MessageTemplateFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.MessageTemplate, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.MessageTemplate, error)
}

// CampaignRunRepository defines operations for campaign run summaries
type CampaignRunRepository interface {
	Repository[models.CampaignRun, models.CampaignRunFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.CampaignRun, error)
}
