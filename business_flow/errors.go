// Package businessflow contains the core business logic and use cases for audience segmentation and campaign messaging
package businessflow

import (
	"errors"
	"fmt"
	"strings"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignValidationFailed = errors.New("campaign validation failed")
	ErrCampaignAlreadyRunning   = errors.New("an identical campaign is already running")
	ErrChannelUnavailable       = errors.New("channel unavailable")

	// Audience-related errors
	ErrAudienceUnavailable = errors.New("audience snapshot unavailable")

	// Template-related errors
	ErrTemplateSaveFailed = errors.New("failed to save message template")

	ErrCacheNotAvailable = errors.New("cache not available")

	// Pagination errors
	ErrInvalidPage     = errors.New("invalid page")
	ErrInvalidPageSize = errors.New("invalid page size")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult collects field errors found while validating a request
type ValidationResult struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationResult) Add(field, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

func (v *ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

// Err returns nil for a valid result, and the result itself otherwise
func (v *ValidationResult) Err() error {
	if v.Valid() {
		return nil
	}
	return v
}

func (v *ValidationResult) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, fe := range v.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

func (v *ValidationResult) Unwrap() error {
	return ErrCampaignValidationFailed
}

// FieldErrors extracts the structured field errors carried by err, if any
func FieldErrors(err error) ([]FieldError, bool) {
	var vr *ValidationResult
	if errors.As(err, &vr) {
		return vr.Errors, true
	}
	return nil, false
}

func IsCampaignValidationFailed(err error) bool {
	return errors.Is(err, ErrCampaignValidationFailed)
}

func IsCampaignAlreadyRunning(err error) bool {
	return errors.Is(err, ErrCampaignAlreadyRunning)
}

func IsChannelUnavailable(err error) bool {
	return errors.Is(err, ErrChannelUnavailable)
}

func IsAudienceUnavailable(err error) bool {
	return errors.Is(err, ErrAudienceUnavailable)
}

func IsTemplateSaveFailed(err error) bool {
	return errors.Is(err, ErrTemplateSaveFailed)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
