package models

// Platform is a messaging transport a campaign is sent through
type Platform string

const (
	PlatformSMS      Platform = "sms"
	PlatformTelegram Platform = "telegram"
)

func (p Platform) Valid() bool {
	return p == PlatformSMS || p == PlatformTelegram
}

func (p Platform) String() string {
	return string(p)
}

// FailureCategory groups failed dispatch outcomes in campaign summaries
type FailureCategory string

const (
	// FailureValidation covers per-recipient render and policy problems, such as an
	// over-long SMS body or a customer without an address on the channel.
	FailureValidation FailureCategory = "validation"
	// FailureConfiguration covers a channel that cannot send at all, such as a missing bot token.
	FailureConfiguration FailureCategory = "configuration"
	// FailureTransient covers timeouts, transport errors and non-2xx responses.
	FailureTransient FailureCategory = "transient"
)

// Recipient is the addressing data of one campaign recipient
type Recipient struct {
	CustomerID     uint
	PhoneNumber    string
	TelegramChatID *string
	DisplayName    string
}

// DispatchOutcome is the result of one send attempt to one recipient
type DispatchOutcome struct {
	CustomerID uint            `json:"customer_id"`
	Address    string          `json:"address"`
	Channel    Platform        `json:"channel"`
	Success    bool            `json:"success"`
	Category   FailureCategory `json:"category,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// SentOutcome builds a successful outcome
func SentOutcome(r Recipient, channel Platform, address string) DispatchOutcome {
	return DispatchOutcome{
		CustomerID: r.CustomerID,
		Address:    address,
		Channel:    channel,
		Success:    true,
	}
}

// FailedOutcome builds a failed outcome with its category and a human readable reason
func FailedOutcome(r Recipient, channel Platform, address string, category FailureCategory, reason string) DispatchOutcome {
	return DispatchOutcome{
		CustomerID: r.CustomerID,
		Address:    address,
		Channel:    channel,
		Success:    false,
		Category:   category,
		Reason:     reason,
	}
}
