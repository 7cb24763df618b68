// Package services provides external service integrations: messaging channels, SMS gateway and staff tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/amirphl/tablecast/config"
	"github.com/amirphl/tablecast/utils"
)

// SMSGateway sends one SMS message to one phone number
type SMSGateway interface {
	SendSMS(ctx context.Context, recipient, message string, customerID *int64) error
}

// SMSGatewayImpl talks to the HTTP SMS provider
type SMSGatewayImpl struct {
	config *config.SMSConfig
	client *http.Client
}

// SMSRequest represents the request payload for SMS API
type SMSRequest struct {
	SrcNum         string `json:"srcNum"`               // Format: 98**********
	Recipient      string `json:"recipient"`            // Format: 98**********
	Body           string `json:"body"`                 // Message content
	CustomerID     *int64 `json:"customerId,omitempty"` // Optional customer ID
	RetryCount     int    `json:"retryCount"`           // Provider side retries
	Type           int    `json:"type"`                 // Always 1
	ValidityPeriod int    `json:"validityPeriod"`       // Validity in seconds
}

// SMSResponse represents individual message result from SMS API
type SMSResponse struct {
	MessageID  int64  `json:"messageId"`
	SrcNum     string `json:"srcNum"`
	Recipient  string `json:"recipient"`
	CustomerID *int64 `json:"customerId,omitempty"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}

// NewSMSGateway creates a new HTTP SMS gateway
func NewSMSGateway(cfg *config.SMSConfig) SMSGateway {
	return &SMSGatewayImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SendSMS sends a single SMS message
func (s *SMSGatewayImpl) SendSMS(ctx context.Context, recipient, message string, customerID *int64) error {
	if s.config.APIKey == "" || s.config.ProviderDomain == "" {
		return ErrChannelNotConfigured
	}

	requestBody, err := json.Marshal([]SMSRequest{{
		SrcNum:         s.config.SourceNumber,
		Recipient:      recipient,
		Body:           message,
		CustomerID:     customerID,
		RetryCount:     s.config.RetryCount,
		Type:           1,
		ValidityPeriod: s.config.ValidityPeriod,
	}})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	url := s.endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider http status: %d", resp.StatusCode)
	}

	var results []SMSResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return fmt.Errorf("failed to decode SMS response: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("sms provider returned no result for %s", recipient)
	}
	for _, r := range results {
		if r.StatusCode != 200 || r.Status != "ACCEPTED" {
			return fmt.Errorf("SMS delivery failed for %s: %s (%d)", r.Recipient, r.Status, r.StatusCode)
		}
	}
	return nil
}

func (s *SMSGatewayImpl) endpoint() string {
	domain := s.config.ProviderDomain
	if len(domain) >= 7 && (domain[:7] == "http://" || (len(domain) >= 8 && domain[:8] == "https://")) {
		return domain + "/api/v3.0.1/send"
	}
	return fmt.Sprintf("https://%s/api/v3.0.1/send", domain)
}

// MockSMSGateway implements SMSGateway in memory. It is safe for concurrent use.
type MockSMSGateway struct {
	mu           sync.Mutex
	SentMessages []MockSMSMessage
	// FailFor makes sends to the listed recipients fail with the mapped error
	FailFor map[string]error
}

// MockSMSMessage represents a mock SMS message
type MockSMSMessage struct {
	Recipient  string
	Message    string
	CustomerID *int64
	SentAt     time.Time
}

// NewMockSMSGateway creates a new mock SMS gateway
func NewMockSMSGateway() *MockSMSGateway {
	return &MockSMSGateway{
		SentMessages: make([]MockSMSMessage, 0),
		FailFor:      make(map[string]error),
	}
}

func (m *MockSMSGateway) SendSMS(ctx context.Context, recipient, message string, customerID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[recipient]; ok {
		return err
	}
	m.SentMessages = append(m.SentMessages, MockSMSMessage{
		Recipient:  recipient,
		Message:    message,
		CustomerID: customerID,
		SentAt:     utils.UTCNow(),
	})
	return nil
}

// GetSentMessages returns a copy of all sent mock messages
func (m *MockSMSGateway) GetSentMessages() []MockSMSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSMSMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}

// ClearSentMessages clears the sent messages list
func (m *MockSMSGateway) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = make([]MockSMSMessage, 0)
}
