package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageTemplate is a reusable campaign body saved by staff. Button fields are
// only meaningful for the telegram platform.
type MessageTemplate struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UUID               uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_message_templates_uuid" json:"uuid"`
	Label              string    `gorm:"size:120;not null;index:idx_message_templates_label" json:"label"`
	Body               string    `gorm:"type:text;not null" json:"body"`
	IsActive           *bool     `gorm:"default:true;index:idx_message_templates_is_active" json:"is_active"`
	Platform           Platform  `gorm:"size:20;not null" json:"platform"`
	TelegramButtonText *string   `gorm:"size:64" json:"telegram_button_text,omitempty"`
	TelegramButtonURL  *string   `gorm:"size:512" json:"telegram_button_url,omitempty"`
	CreatedBy          *uint     `gorm:"index:idx_message_templates_created_by" json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_message_templates_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}

// MessageTemplateFilter represents filter criteria for message template queries
type MessageTemplateFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	Label    *string
	IsActive *bool
	Platform *Platform
}
