package models

import (
	"time"
)

// Branch is a physical restaurant location
type Branch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:uk_branches_name" json:"name"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (Branch) TableName() string {
	return "branches"
}

// MenuItem is a dish or drink that can appear on an order
type MenuItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Price     float64   `gorm:"type:numeric(12,2);not null" json:"price"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (MenuItem) TableName() string {
	return "menu_items"
}

// Order is a placed customer order. TotalAmount is the amount charged.
type Order struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CustomerID  uint      `gorm:"not null;index:idx_orders_customer_id" json:"customer_id"`
	Customer    *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"-"`
	BranchID    uint      `gorm:"not null;index:idx_orders_branch_id" json:"branch_id"`
	Branch      *Branch   `gorm:"foreignKey:BranchID;references:ID" json:"branch,omitempty"`
	TotalAmount float64   `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_orders_created_at" json:"created_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderItem struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	OrderID    uint `gorm:"not null;index:idx_order_items_order_id" json:"order_id"`
	MenuItemID uint `gorm:"not null;index:idx_order_items_menu_item_id" json:"menu_item_id"`
	Quantity   int  `gorm:"not null;default:1" json:"quantity"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
