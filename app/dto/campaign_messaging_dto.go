package dto

import "time"

// AudienceFilterRequest holds the audience filter fields shared by campaign, preview and export requests
type AudienceFilterRequest struct {
	OrdersMin *int64 `json:"orders_min,omitempty" validate:"omitempty,gte=0"`
	OrdersMax *int64 `json:"orders_max,omitempty" validate:"omitempty,gte=0"`

	RecencyMinDays *int `json:"recency_min_days,omitempty" validate:"omitempty,gte=0"`
	RecencyMaxDays *int `json:"recency_max_days,omitempty" validate:"omitempty,gte=0"`

	TotalSpentMin *float64 `json:"total_spent_min,omitempty" validate:"omitempty,gte=0"`
	TotalSpentMax *float64 `json:"total_spent_max,omitempty" validate:"omitempty,gte=0"`

	AvgOrderValueMin *float64 `json:"avg_order_value_min,omitempty" validate:"omitempty,gte=0"`
	AvgOrderValueMax *float64 `json:"avg_order_value_max,omitempty" validate:"omitempty,gte=0"`

	Search *string `json:"search,omitempty" validate:"omitempty,max=100"`

	BranchIDs          []uint `json:"branch_ids,omitempty" validate:"omitempty,dive,gt=0"`
	IncludeMenuItemIDs []uint `json:"include_menu_item_ids,omitempty" validate:"omitempty,dive,gt=0"`
	ExcludeMenuItemIDs []uint `json:"exclude_menu_item_ids,omitempty" validate:"omitempty,dive,gt=0"`
}

// SendCampaignMessageRequest represents a campaign submission
type SendCampaignMessageRequest struct {
	StaffID uint `json:"-"`

	// Platform is "sms" or "telegram". Platforms is an accepted alias holding exactly one entry.
	Platform  string                `json:"platform"`
	Platforms []string              `json:"platforms,omitempty"`
	Filter    AudienceFilterRequest `json:"filter"`
	Message   string                `json:"message" validate:"max=4096"`

	SaveTemplate  bool    `json:"save_template"`
	TemplateLabel *string `json:"template_label,omitempty" validate:"omitempty,max=100"`

	TelegramButtonText *string `json:"telegram_button_text,omitempty" validate:"omitempty,max=64"`
	TelegramButtonURL  *string `json:"telegram_button_url,omitempty" validate:"omitempty,url,max=2048"`
}

// CampaignFailuresDTO counts failed recipients per category
type CampaignFailuresDTO struct {
	Validation    int `json:"validation"`
	Configuration int `json:"configuration"`
	Transient     int `json:"transient"`
}

// SendCampaignMessageResponse is the summary of a campaign run
type SendCampaignMessageResponse struct {
	RunID        string              `json:"run_id"`
	Platform     string              `json:"platform"`
	Targeted     int                 `json:"targeted"`
	Sent         int                 `json:"sent"`
	Failed       int                 `json:"failed"`
	Failures     CampaignFailuresDTO `json:"failures"`
	Cancelled    bool                `json:"cancelled"`
	TemplateUUID *string             `json:"template_uuid,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// PreviewAudienceRequest asks for the size and a sample of an audience
type PreviewAudienceRequest struct {
	Filter     AudienceFilterRequest `json:"filter"`
	SampleSize *int                  `json:"sample_size,omitempty" validate:"omitempty,gte=0"`
	// Message, when set, is rendered for each sampled recipient
	Message  *string `json:"message,omitempty" validate:"omitempty,max=4096"`
	Platform *string `json:"platform,omitempty" validate:"omitempty,oneof=sms telegram"`
}

// AudienceMemberDTO describes one customer of a resolved audience
type AudienceMemberDTO struct {
	CustomerID        uint       `json:"customer_id"`
	DisplayName       string     `json:"display_name"`
	PhoneNumber       string     `json:"phone_number"`
	HasTelegram       bool       `json:"has_telegram"`
	OrderCount        int64      `json:"order_count"`
	TotalSpent        float64    `json:"total_spent"`
	AverageOrderValue float64    `json:"average_order_value"`
	LastOrderAt       *time.Time `json:"last_order_at,omitempty"`
	DaysSinceOrder    *int       `json:"days_since_order,omitempty"`
	RenderedMessage   *string    `json:"rendered_message,omitempty"`
	MessageLength     *int       `json:"message_length,omitempty"`
	ExceedsSMSLimit   *bool      `json:"exceeds_sms_limit,omitempty"`
}

// PreviewAudienceResponse carries the audience size and a bounded sample
type PreviewAudienceResponse struct {
	Count        int                 `json:"count"`
	Sample       []AudienceMemberDTO `json:"sample"`
	Placeholders []string            `json:"placeholders,omitempty"`
	Unresolved   []string            `json:"unresolved_placeholders,omitempty"`
	EvaluatedAt  time.Time           `json:"evaluated_at"`
}

// ExportAudienceRequest asks for the whole audience as a spreadsheet
type ExportAudienceRequest struct {
	Filter AudienceFilterRequest `json:"filter"`
}

// ExportAudienceResponse holds a generated XLSX file
type ExportAudienceResponse struct {
	Filename string
	Content  []byte
	Rows     int
}

// ListMessageTemplatesRequest represents a paginated template listing
type ListMessageTemplatesRequest struct {
	Page     int `query:"page" validate:"omitempty,gte=1"`
	PageSize int `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// MessageTemplateDTO is a saved message template
type MessageTemplateDTO struct {
	UUID               string    `json:"uuid"`
	Label              string    `json:"label"`
	Body               string    `json:"body"`
	Platform           string    `json:"platform"`
	TelegramButtonText *string   `json:"telegram_button_text,omitempty"`
	TelegramButtonURL  *string   `json:"telegram_button_url,omitempty"`
	Placeholders       []string  `json:"placeholders"`
	CreatedAt          time.Time `json:"created_at"`
}

// ListMessageTemplatesResponse is one page of active templates
type ListMessageTemplatesResponse struct {
	Items    []MessageTemplateDTO `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Total    int64                `json:"total"`
}
