package utils

import (
	"time"
)

// Cache keys, prefixed with the configured redis prefix
const (
	// CampaignRunLockKey guards against duplicate campaign submissions; suffixed with a request hash
	CampaignRunLockKey = "campaign:run:lock"

	// AudiencePreviewCacheKey caches audience counts; suffixed with a criteria hash
	AudiencePreviewCacheKey = "campaign:audience:count"
)

// Request time constants
const (
	// DefaultRequestTimeout bounds ordinary API requests
	DefaultRequestTimeout = 30 * time.Second

	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// XLSX export constants
const (
	AudienceExportSheet       = "Audience"
	AudienceExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ContextKey namespaces values stored in request contexts
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	IPAddressKey ContextKey = "ip_address"
	EndpointKey  ContextKey = "endpoint"
)
