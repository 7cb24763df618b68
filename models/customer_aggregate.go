package models

import (
	"math"
	"slices"
	"time"

	"github.com/lib/pq"
)

// CustomerAggregate is a read-only view of a customer joined with statistics over
// the customer's whole order history. Arrays come from PostgreSQL array_agg.
type CustomerAggregate struct {
	ID             uint    `gorm:"column:id" json:"id"`
	PhoneNumber    string  `gorm:"column:phone_number" json:"phone_number"`
	TelegramChatID *string `gorm:"column:telegram_chat_id" json:"telegram_chat_id,omitempty"`
	DisplayName    string  `gorm:"column:display_name" json:"display_name"`

	OrderCount     int64      `gorm:"column:order_count" json:"order_count"`
	TotalSpent     float64    `gorm:"column:total_spent" json:"total_spent"`
	LastOrderAt    *time.Time `gorm:"column:last_order_at" json:"last_order_at,omitempty"`
	LastOrderID    *uint      `gorm:"column:last_order_id" json:"last_order_id,omitempty"`
	LastBranchName *string    `gorm:"column:last_branch_name" json:"last_branch_name,omitempty"`

	BranchIDs   pq.Int64Array `gorm:"column:branch_ids;type:bigint[]" json:"branch_ids"`
	MenuItemIDs pq.Int64Array `gorm:"column:menu_item_ids;type:bigint[]" json:"menu_item_ids"`
}

// AverageOrderValue is total spent divided by order count, zero without orders
func (c *CustomerAggregate) AverageOrderValue() float64 {
	if c.OrderCount <= 0 {
		return 0
	}
	return c.TotalSpent / float64(c.OrderCount)
}

// DaysSinceLastOrder returns whole days elapsed between the last order and now.
// The second result is false when the customer has never ordered.
func (c *CustomerAggregate) DaysSinceLastOrder(now time.Time) (int, bool) {
	if c.LastOrderAt == nil {
		return 0, false
	}
	elapsed := now.Sub(*c.LastOrderAt)
	if elapsed < 0 {
		return 0, true
	}
	return int(math.Floor(elapsed.Hours() / 24)), true
}

// OrderedAtAnyBranch reports whether the customer has at least one order at one of the branches
func (c *CustomerAggregate) OrderedAtAnyBranch(branchIDs []uint) bool {
	return containsAny(c.BranchIDs, branchIDs)
}

// OrderedAnyItem reports whether the customer ever ordered at least one of the menu items
func (c *CustomerAggregate) OrderedAnyItem(menuItemIDs []uint) bool {
	return containsAny(c.MenuItemIDs, menuItemIDs)
}

// Recipient returns the addressing data needed by the messaging channels
func (c *CustomerAggregate) Recipient() Recipient {
	return Recipient{
		CustomerID:     c.ID,
		PhoneNumber:    c.PhoneNumber,
		TelegramChatID: c.TelegramChatID,
		DisplayName:    c.DisplayName,
	}
}

func containsAny(have pq.Int64Array, want []uint) bool {
	for _, id := range want {
		if slices.Contains(have, int64(id)) {
			return true
		}
	}
	return false
}

// AudienceSegment is the ordered, deduplicated set of customers matching a filter at EvaluatedAt
type AudienceSegment struct {
	Customers   []*CustomerAggregate
	EvaluatedAt time.Time
}

func (s AudienceSegment) Len() int {
	return len(s.Customers)
}

// IDs returns customer ids in segment order
func (s AudienceSegment) IDs() []uint {
	ids := make([]uint, 0, len(s.Customers))
	for _, c := range s.Customers {
		ids = append(ids, c.ID)
	}
	return ids
}
