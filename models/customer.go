// Package models contains domain entities and read models for the campaign messaging service
package models

import (
	"time"
)

// Customer is a restaurant guest reachable by SMS and optionally by Telegram
type Customer struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	PhoneNumber    string  `gorm:"size:20;not null;uniqueIndex:uk_customers_phone_number" json:"phone_number"`
	TelegramChatID *string `gorm:"size:64;index:idx_customers_telegram_chat_id" json:"telegram_chat_id,omitempty"`
	DisplayName    string  `gorm:"size:255;not null" json:"display_name"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_customers_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	Orders []Order `gorm:"foreignKey:CustomerID" json:"-"`
}

func (Customer) TableName() string {
	return "customers"
}

// CustomerFilter represents filter criteria for customer queries
type CustomerFilter struct {
	ID             *uint
	PhoneNumber    *string
	TelegramChatID *string
	HasTelegram    *bool
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}
