package businessflow

import (
	"net/url"
	"strings"

	"github.com/amirphl/tablecast/app/dto"
	"github.com/amirphl/tablecast/models"
)

// ValidateCampaignRequest checks a campaign submission before any side effect.
// On success it returns the selected platform.
func ValidateCampaignRequest(req *dto.SendCampaignMessageRequest) (models.Platform, *ValidationResult) {
	result := &ValidationResult{}
	if req == nil {
		result.Add("request", "request body is required")
		return "", result
	}

	platform := resolvePlatform(req, result)

	if strings.TrimSpace(req.Message) == "" {
		result.Add("message", "message is required")
	}

	if req.SaveTemplate && strings.TrimSpace(stringValue(req.TemplateLabel)) == "" {
		result.Add("template_label", "template label is required when saving a template")
	}

	// button fields only apply to telegram; sms ignores them
	if platform == models.PlatformTelegram {
		text := strings.TrimSpace(stringValue(req.TelegramButtonText))
		link := strings.TrimSpace(stringValue(req.TelegramButtonURL))
		switch {
		case text != "" && link == "":
			result.Add("telegram_button_url", "button url is required when button text is set")
		case text == "" && link != "":
			result.Add("telegram_button_text", "button text is required when button url is set")
		}
		if link != "" && !isHTTPURL(link) {
			result.Add("telegram_button_url", "button url must be an absolute http or https url")
		}
	}

	return platform, result
}

// resolvePlatform reads the platform field, falling back to the single-entry platforms alias
func resolvePlatform(req *dto.SendCampaignMessageRequest, result *ValidationResult) models.Platform {
	raw := strings.TrimSpace(req.Platform)
	switch len(req.Platforms) {
	case 0:
	case 1:
		alias := strings.TrimSpace(req.Platforms[0])
		if raw != "" && !strings.EqualFold(raw, alias) {
			result.Add("platform", "platform and platforms select different channels")
			return ""
		}
		raw = alias
	default:
		result.Add("platforms", "select exactly one platform")
		return ""
	}

	if raw == "" {
		result.Add("platform", "select a platform")
		return ""
	}
	platform := models.Platform(strings.ToLower(raw))
	if !platform.Valid() {
		result.Add("platform", "platform must be one of: sms, telegram")
		return ""
	}
	return platform
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
