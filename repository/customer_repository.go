package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/tablecast/models"
	"gorm.io/gorm"
)

// customerAggregateQuery joins every customer with order statistics, the latest
// order (id and branch name) and the distinct menu items ever ordered.
const customerAggregateQuery = `
SELECT
	c.id,
	c.phone_number,
	c.telegram_chat_id,
	c.display_name,
	COALESCE(s.order_count, 0) AS order_count,
	COALESCE(s.total_spent, 0)::float8 AS total_spent,
	s.last_order_at,
	lo.id AS last_order_id,
	lo.branch_name AS last_branch_name,
	COALESCE(s.branch_ids, '{}'::bigint[]) AS branch_ids,
	COALESCE(mi.menu_item_ids, '{}'::bigint[]) AS menu_item_ids
FROM customers c
LEFT JOIN (
	SELECT
		customer_id,
		COUNT(*) AS order_count,
		SUM(total_amount) AS total_spent,
		MAX(created_at) AS last_order_at,
		array_agg(DISTINCT branch_id)::bigint[] AS branch_ids
	FROM orders
	GROUP BY customer_id
) s ON s.customer_id = c.id
LEFT JOIN LATERAL (
	SELECT o.id, b.name AS branch_name
	FROM orders o
	LEFT JOIN branches b ON b.id = o.branch_id
	WHERE o.customer_id = c.id
	ORDER BY o.created_at DESC, o.id DESC
	LIMIT 1
) lo ON TRUE
LEFT JOIN (
	SELECT o.customer_id, array_agg(DISTINCT oi.menu_item_id)::bigint[] AS menu_item_ids
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	GROUP BY o.customer_id
) mi ON mi.customer_id = c.id
ORDER BY c.id ASC`

// CustomerRepositoryImpl implements CustomerRepository
type CustomerRepositoryImpl struct {
	*BaseRepository[models.Customer, models.CustomerFilter]
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &CustomerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Customer, models.CustomerFilter](db),
	}
}

// ByPhoneNumber retrieves a customer by phone number
func (r *CustomerRepositoryImpl) ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Customer, error) {
	customers, err := r.ByFilter(ctx, models.CustomerFilter{PhoneNumber: &phoneNumber}, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find customer by phone number: %w", err)
	}

	if len(customers) == 0 {
		return nil, nil
	}

	return customers[0], nil
}

// AggregateSnapshot loads the read-only customer aggregate view used for audience resolution
func (r *CustomerRepositoryImpl) AggregateSnapshot(ctx context.Context) ([]*models.CustomerAggregate, error) {
	db := r.getDB(ctx)

	var rows []*models.CustomerAggregate
	if err := db.Raw(customerAggregateQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer aggregates: %w", err)
	}

	return rows, nil
}

func (r *CustomerRepositoryImpl) applyFilter(db *gorm.DB, filter models.CustomerFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.PhoneNumber != nil {
		db = db.Where("phone_number = ?", *filter.PhoneNumber)
	}
	if filter.TelegramChatID != nil {
		db = db.Where("telegram_chat_id = ?", *filter.TelegramChatID)
	}
	if filter.HasTelegram != nil {
		if *filter.HasTelegram {
			db = db.Where("telegram_chat_id IS NOT NULL AND telegram_chat_id <> ''")
		} else {
			db = db.Where("telegram_chat_id IS NULL OR telegram_chat_id = ''")
		}
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}
	return db
}

// ByFilter retrieves customers based on filter criteria
func (r *CustomerRepositoryImpl) ByFilter(ctx context.Context, filter models.CustomerFilter, orderBy string, limit, offset int) ([]*models.Customer, error) {
	db := r.getDB(ctx)

	var customers []*models.Customer
	query := r.applyFilter(db.Model(&models.Customer{}), filter)

	if orderBy == "" {
		orderBy = "id ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to find customers by filter: %w", err)
	}

	return customers, nil
}

// Count returns the number of customers matching the filter
func (r *CustomerRepositoryImpl) Count(ctx context.Context, filter models.CustomerFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Customer{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}

	return count, nil
}

// Exists checks if any customer matching the filter exists
func (r *CustomerRepositoryImpl) Exists(ctx context.Context, filter models.CustomerFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
