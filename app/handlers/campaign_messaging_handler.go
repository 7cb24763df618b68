package handlers

import (
	"errors"
	"time"

	"github.com/amirphl/tablecast/app/dto"
	businessflow "github.com/amirphl/tablecast/business_flow"
	"github.com/amirphl/tablecast/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// CampaignMessagingHandlerInterface defines the contract for campaign messaging handlers
type CampaignMessagingHandlerInterface interface {
	SendCampaign(c fiber.Ctx) error
	PreviewAudience(c fiber.Ctx) error
	ExportAudience(c fiber.Ctx) error
	ListTemplates(c fiber.Ctx) error
}

// CampaignMessagingHandler handles staff-facing campaign messaging endpoints
type CampaignMessagingHandler struct {
	flow       businessflow.CampaignMessagingFlow
	validator  *validator.Validate
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewCampaignMessagingHandler creates a new campaign messaging handler.
// runTimeout bounds a whole send; zero falls back to the default request timeout.
func NewCampaignMessagingHandler(flow businessflow.CampaignMessagingFlow, runTimeout time.Duration, logger *zap.Logger) *CampaignMessagingHandler {
	if runTimeout <= 0 {
		runTimeout = utils.DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignMessagingHandler{
		flow:       flow,
		validator:  validator.New(),
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// SendCampaign handles campaign dispatch to the filtered audience
// @Summary Send Campaign Message
// @Description Render a message per recipient and deliver it over one platform
// @Tags Campaign Messaging
// @Accept json
// @Produce json
// @Param request body dto.SendCampaignMessageRequest true "Campaign message data"
// @Success 200 {object} dto.APIResponse{data=dto.SendCampaignMessageResponse} "Campaign run finished"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 409 {object} dto.APIResponse "Identical campaign already running"
// @Failure 503 {object} dto.APIResponse "Channel, audience or lock store unavailable"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/messages [post]
func (h *CampaignMessagingHandler) SendCampaign(c fiber.Ctx) error {
	var req dto.SendCampaignMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	staffID, ok := c.Locals("staff_id").(uint)
	if !ok {
		return ErrorResponse(c, fiber.StatusUnauthorized, "Staff ID not found in context", "MISSING_STAFF_ID", nil)
	}
	req.StaffID = staffID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(requestID(c))
	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/campaigns/messages", h.runTimeout)
	defer cancel()

	result, err := h.flow.SendCampaign(ctx, &req, metadata)
	if err != nil {
		return h.handleFlowError(c, err, "Campaign dispatch failed")
	}

	message := "Campaign run finished"
	if result.Cancelled {
		message = "Campaign run cancelled before all recipients were attempted"
	}
	return SuccessResponse(c, fiber.StatusOK, message, result)
}

// PreviewAudience returns the audience size and a rendered sample
// @Summary Preview Campaign Audience
// @Description Count matching customers and render the message for a bounded sample; nothing is sent
// @Tags Campaign Messaging
// @Accept json
// @Produce json
// @Param request body dto.PreviewAudienceRequest true "Audience filter"
// @Success 200 {object} dto.APIResponse{data=dto.PreviewAudienceResponse} "Audience preview"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 503 {object} dto.APIResponse "Audience unavailable"
// @Router /api/v1/campaigns/audience/preview [post]
func (h *CampaignMessagingHandler) PreviewAudience(c fiber.Ctx) error {
	var req dto.PreviewAudienceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(requestID(c))
	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/audience/preview")
	defer cancel()

	result, err := h.flow.PreviewAudience(ctx, &req, metadata)
	if err != nil {
		return h.handleFlowError(c, err, "Audience preview failed")
	}
	return SuccessResponse(c, fiber.StatusOK, "Audience preview generated", result)
}

// ExportAudience streams the matching audience as an Excel workbook
// @Summary Export Campaign Audience
// @Tags Campaign Messaging
// @Accept json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param request body dto.ExportAudienceRequest true "Audience filter"
// @Success 200 {file} file "Audience workbook"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Router /api/v1/campaigns/audience/export [post]
func (h *CampaignMessagingHandler) ExportAudience(c fiber.Ctx) error {
	var req dto.ExportAudienceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(requestID(c))
	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/audience/export")
	defer cancel()

	result, err := h.flow.ExportAudience(ctx, &req, metadata)
	if err != nil {
		return h.handleFlowError(c, err, "Audience export failed")
	}

	c.Attachment(result.Filename)
	c.Set(fiber.HeaderContentType, utils.AudienceExportContentType)
	return c.Status(fiber.StatusOK).Send(result.Content)
}

// ListTemplates lists saved active message templates
// @Summary List Message Templates
// @Tags Campaign Messaging
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.ListMessageTemplatesResponse} "Templates"
// @Failure 400 {object} dto.APIResponse "Invalid paging"
// @Router /api/v1/campaigns/templates [get]
func (h *CampaignMessagingHandler) ListTemplates(c fiber.Ctx) error {
	var req dto.ListMessageTemplatesRequest
	if err := c.Bind().Query(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/templates")
	defer cancel()

	result, err := h.flow.ListTemplates(ctx, &req)
	if err != nil {
		return h.handleFlowError(c, err, "Failed to list templates")
	}
	return SuccessResponse(c, fiber.StatusOK, "Templates retrieved", result)
}

func (h *CampaignMessagingHandler) handleFlowError(c fiber.Ctx, err error, fallback string) error {
	code, message := "INTERNAL_ERROR", fallback
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		code, message = be.Code, be.Message
	}

	switch {
	case businessflow.IsCampaignValidationFailed(err):
		details, _ := businessflow.FieldErrors(err)
		return ErrorResponse(c, fiber.StatusBadRequest, message, code, details)
	case businessflow.IsInvalidPage(err), businessflow.IsInvalidPageSize(err):
		return ErrorResponse(c, fiber.StatusBadRequest, message, code, nil)
	case businessflow.IsCampaignAlreadyRunning(err):
		return ErrorResponse(c, fiber.StatusConflict, message, code, nil)
	case businessflow.IsChannelUnavailable(err), businessflow.IsAudienceUnavailable(err), businessflow.IsCacheNotAvailable(err):
		h.logger.Warn(fallback, zap.String("code", code), zap.Error(err))
		return ErrorResponse(c, fiber.StatusServiceUnavailable, message, code, nil)
	case businessflow.IsTemplateSaveFailed(err):
		h.logger.Error(fallback, zap.String("code", code), zap.Error(err))
		return ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
	}

	h.logger.Error(fallback, zap.String("code", code), zap.Error(err))
	return ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}
