package businessflow

import (
	"slices"

	"github.com/amirphl/tablecast/app/dto"
	"github.com/amirphl/tablecast/models"
	"go.uber.org/zap"
)

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// logFields appends the client's request id and ip to fields. A nil receiver adds nothing.
func (cm *ClientMetadata) logFields(fields ...zap.Field) []zap.Field {
	if cm == nil {
		return fields
	}
	if cm.RequestID != "" {
		fields = append(fields, zap.String("request_id", cm.RequestID))
	}
	if cm.IPAddress != "" {
		fields = append(fields, zap.String("ip", cm.IPAddress))
	}
	return fields
}

// ToCampaignFilterCriteria converts request filter fields into immutable criteria
func ToCampaignFilterCriteria(f dto.AudienceFilterRequest) models.CampaignFilterCriteria {
	return models.CampaignFilterCriteria{
		OrdersMin:          f.OrdersMin,
		OrdersMax:          f.OrdersMax,
		RecencyMinDays:     f.RecencyMinDays,
		RecencyMaxDays:     f.RecencyMaxDays,
		TotalSpentMin:      f.TotalSpentMin,
		TotalSpentMax:      f.TotalSpentMax,
		AvgOrderValueMin:   f.AvgOrderValueMin,
		AvgOrderValueMax:   f.AvgOrderValueMax,
		Search:             f.Search,
		BranchIDs:          slices.Clone(f.BranchIDs),
		IncludeMenuItemIDs: slices.Clone(f.IncludeMenuItemIDs),
		ExcludeMenuItemIDs: slices.Clone(f.ExcludeMenuItemIDs),
	}
}

// ToMessageTemplateDTO converts a saved template for responses
func ToMessageTemplateDTO(t *models.MessageTemplate) dto.MessageTemplateDTO {
	placeholders := TemplatePlaceholders(t.Body)
	if placeholders == nil {
		placeholders = []string{}
	}
	return dto.MessageTemplateDTO{
		UUID:               t.UUID.String(),
		Label:              t.Label,
		Body:               t.Body,
		Platform:           t.Platform.String(),
		TelegramButtonText: t.TelegramButtonText,
		TelegramButtonURL:  t.TelegramButtonURL,
		Placeholders:       placeholders,
		CreatedAt:          t.CreatedAt,
	}
}
