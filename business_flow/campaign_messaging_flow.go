package businessflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amirphl/tablecast/app/dto"
	"github.com/amirphl/tablecast/app/services"
	"github.com/amirphl/tablecast/config"
	"github.com/amirphl/tablecast/models"
	"github.com/amirphl/tablecast/repository"
	"github.com/amirphl/tablecast/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// CampaignMessagingFlow handles audience preview, export and campaign dispatch
type CampaignMessagingFlow interface {
	SendCampaign(ctx context.Context, req *dto.SendCampaignMessageRequest, metadata *ClientMetadata) (*dto.SendCampaignMessageResponse, error)
	PreviewAudience(ctx context.Context, req *dto.PreviewAudienceRequest, metadata *ClientMetadata) (*dto.PreviewAudienceResponse, error)
	ExportAudience(ctx context.Context, req *dto.ExportAudienceRequest, metadata *ClientMetadata) (*dto.ExportAudienceResponse, error)
	ListTemplates(ctx context.Context, req *dto.ListMessageTemplatesRequest) (*dto.ListMessageTemplatesResponse, error)
}

// CampaignMessagingFlowImpl implements the campaign messaging business flow
type CampaignMessagingFlowImpl struct {
	audience       *AudienceFilterCompiler
	templateRepo   repository.MessageTemplateRepository
	runRepo        repository.CampaignRunRepository
	channels       services.ChannelRegistry
	db             *gorm.DB
	rc             *redis.Client
	cacheConfig    *config.CacheConfig
	campaignConfig config.CampaignConfig
	logger         *zap.Logger
	now            func() time.Time
}

// NewCampaignMessagingFlow creates a new campaign messaging flow instance.
// db and rc may be nil: templates are then saved without an explicit transaction
// and the duplicate-submission lock and preview cache are skipped.
func NewCampaignMessagingFlow(
	audience *AudienceFilterCompiler,
	templateRepo repository.MessageTemplateRepository,
	runRepo repository.CampaignRunRepository,
	channels services.ChannelRegistry,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
	campaignConfig config.CampaignConfig,
	logger *zap.Logger,
) CampaignMessagingFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheConfig == nil {
		cacheConfig = &config.CacheConfig{}
	}
	return &CampaignMessagingFlowImpl{
		audience:       audience,
		templateRepo:   templateRepo,
		runRepo:        runRepo,
		channels:       channels,
		db:             db,
		rc:             rc,
		cacheConfig:    cacheConfig,
		campaignConfig: campaignConfig,
		logger:         logger.Named("campaign_messaging"),
		now:            audience.now,
	}
}

// SendCampaign validates the submission, resolves its audience and dispatches one
// rendered message per recipient. Per-recipient failures are reported in the summary.
func (s *CampaignMessagingFlowImpl) SendCampaign(ctx context.Context, req *dto.SendCampaignMessageRequest, metadata *ClientMetadata) (*dto.SendCampaignMessageResponse, error) {
	platform, vr := ValidateCampaignRequest(req)
	if !vr.Valid() {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", vr)
	}

	channel, err := s.channels.Get(platform)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_UNAVAILABLE", "Messaging channel is not available", fmt.Errorf("%w: %w", ErrChannelUnavailable, err))
	}

	release, err := s.acquireRunLock(ctx, platform, req)
	if err != nil {
		return nil, err
	}
	defer release()

	criteria := ToCampaignFilterCriteria(req.Filter)
	segment, err := s.audience.Resolve(ctx, criteria)
	if err != nil {
		return nil, err
	}

	var opts services.SendOptions
	if platform == models.PlatformTelegram {
		opts.ButtonText = strings.TrimSpace(stringValue(req.TelegramButtonText))
		opts.ButtonURL = strings.TrimSpace(stringValue(req.TelegramButtonURL))
	}

	var template *models.MessageTemplate
	if req.SaveTemplate {
		template, err = s.saveTemplate(ctx, req, platform, opts)
		if err != nil {
			return nil, err
		}
	}

	runID := uuid.New()
	startedAt := s.now()
	summary := s.dispatch(ctx, runID, platform, channel, segment, req.Message, opts)
	finishedAt := s.now()
	if template != nil {
		summary.TemplateID = &template.ID
	}

	fields := []zap.Field{
		zap.String("run_id", runID.String()),
		zap.String("platform", platform.String()),
		zap.Int("targeted", summary.Targeted),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Uint("staff_id", req.StaffID),
	}
	s.logger.Info("campaign run finished", metadata.logFields(fields...)...)

	s.recordRun(ctx, summary, segment, req.StaffID, startedAt, finishedAt)

	resp := &dto.SendCampaignMessageResponse{
		RunID:    runID.String(),
		Platform: platform.String(),
		Targeted: summary.Targeted,
		Sent:     summary.Sent,
		Failed:   summary.Failed,
		Failures: dto.CampaignFailuresDTO{
			Validation:    summary.Failures[models.FailureValidation],
			Configuration: summary.Failures[models.FailureConfiguration],
			Transient:     summary.Failures[models.FailureTransient],
		},
		Cancelled:  summary.Cancelled,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	if template != nil {
		resp.TemplateUUID = utils.ToPtr(template.UUID.String())
	}
	return resp, nil
}

// dispatch sends to every customer of segment with a bounded worker pool. Each
// recipient is attempted at most once; recipients not attempted before ctx ends
// are left out of the tally.
func (s *CampaignMessagingFlowImpl) dispatch(
	ctx context.Context,
	runID uuid.UUID,
	platform models.Platform,
	channel services.Channel,
	segment *models.AudienceSegment,
	body string,
	opts services.SendOptions,
) *models.CampaignSummary {
	summary := &models.CampaignSummary{
		RunID:    runID,
		Platform: platform,
		Targeted: segment.Len(),
		Failures: make(map[models.FailureCategory]int),
	}

	outcomes := make([]*models.DispatchOutcome, segment.Len())

	var g errgroup.Group
	g.SetLimit(max(s.campaignConfig.WorkerCount, 1))
	for i, customer := range segment.Customers {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome, attempted := s.dispatchOne(ctx, runID, platform, channel, customer, segment.EvaluatedAt, body, opts)
			if attempted {
				outcomes[i] = &outcome
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o != nil {
			summary.Record(*o)
		}
	}
	summary.Cancelled = summary.Attempted() < summary.Targeted && ctx.Err() != nil
	return summary
}

func (s *CampaignMessagingFlowImpl) dispatchOne(
	ctx context.Context,
	runID uuid.UUID,
	platform models.Platform,
	channel services.Channel,
	customer *models.CustomerAggregate,
	evaluatedAt time.Time,
	body string,
	opts services.SendOptions,
) (models.DispatchOutcome, bool) {
	recipient := customer.Recipient()
	text := RenderTemplate(body, BuildPlaceholderContext(customer, evaluatedAt))

	if platform != models.PlatformTelegram {
		if limit := s.smsMaxLength(); utf8.RuneCountInString(text) > limit {
			outcome := models.FailedOutcome(recipient, platform, recipient.PhoneNumber, models.FailureValidation,
				fmt.Sprintf("message length %d exceeds %d characters", utf8.RuneCountInString(text), limit))
			s.logger.Warn("campaign message rejected",
				zap.String("run_id", runID.String()),
				zap.Uint("customer_id", recipient.CustomerID),
				zap.String("channel", platform.String()),
				zap.String("category", string(outcome.Category)),
				zap.String("reason", outcome.Reason),
			)
			return outcome, true
		}
	}

	outcome, err := channel.Send(ctx, recipient, text, opts)
	if err != nil {
		// context ended before the channel could send
		return models.DispatchOutcome{}, false
	}
	return outcome, true
}

func (s *CampaignMessagingFlowImpl) smsMaxLength() int {
	if s.campaignConfig.SMSMaxLength > 0 {
		return s.campaignConfig.SMSMaxLength
	}
	return 480
}

// BuildPlaceholderContext exposes a customer's identity and order statistics to templates.
// Values the customer does not have (no orders yet) are left out so their placeholders stay visible.
func BuildPlaceholderContext(c *models.CustomerAggregate, now time.Time) PlaceholderContext {
	pc := NewPlaceholderContext(map[string]any{
		"name":          c.DisplayName,
		"phone":         c.PhoneNumber,
		"orders":        c.OrderCount,
		"totalspent":    roundMoney(c.TotalSpent),
		"avgordervalue": roundMoney(c.AverageOrderValue()),
	})
	if c.LastOrderID != nil {
		pc.Set("orderid", *c.LastOrderID)
	}
	if c.LastBranchName != nil {
		pc.Set("branch", *c.LastBranchName)
	}
	if days, ok := c.DaysSinceLastOrder(now); ok {
		pc.Set("days", days)
	}
	return pc
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *CampaignMessagingFlowImpl) saveTemplate(ctx context.Context, req *dto.SendCampaignMessageRequest, platform models.Platform, opts services.SendOptions) (*models.MessageTemplate, error) {
	template := &models.MessageTemplate{
		UUID:      uuid.New(),
		Label:     strings.TrimSpace(stringValue(req.TemplateLabel)),
		Body:      req.Message,
		IsActive:  utils.ToPtr(true),
		Platform:  platform,
		CreatedBy: nonZero(req.StaffID),
	}
	if opts.HasButton() {
		template.TelegramButtonText = utils.ToPtr(opts.ButtonText)
		template.TelegramButtonURL = utils.ToPtr(opts.ButtonURL)
	}

	save := func(txCtx context.Context) error {
		// an identical active template is reused instead of duplicated
		existing, err := s.templateRepo.ByFilter(txCtx, models.MessageTemplateFilter{
			Label:    &template.Label,
			Platform: &platform,
			IsActive: utils.ToPtr(true),
		}, "id DESC", 0, 0)
		if err != nil {
			return err
		}
		for _, t := range existing {
			if t.Body == template.Body &&
				utils.Deref(t.TelegramButtonText) == utils.Deref(template.TelegramButtonText) &&
				utils.Deref(t.TelegramButtonURL) == utils.Deref(template.TelegramButtonURL) {
				template = t
				return nil
			}
		}
		return s.templateRepo.Save(txCtx, template)
	}

	var err error
	if s.db != nil {
		err = repository.WithTransaction(ctx, s.db, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_SAVE_FAILED", "Failed to save message template", fmt.Errorf("%w: %w", ErrTemplateSaveFailed, err))
	}
	return template, nil
}

func (s *CampaignMessagingFlowImpl) recordRun(ctx context.Context, summary *models.CampaignSummary, segment *models.AudienceSegment, staffID uint, startedAt, finishedAt time.Time) {
	if s.runRepo == nil {
		return
	}
	failures, err := json.Marshal(summary.Failures)
	if err != nil {
		failures = []byte("{}")
	}
	ids := make([]int64, 0, segment.Len())
	for _, id := range segment.IDs() {
		ids = append(ids, int64(id))
	}
	run := &models.CampaignRun{
		UUID:        summary.RunID,
		Platform:    summary.Platform,
		TemplateID:  summary.TemplateID,
		Targeted:    summary.Targeted,
		Sent:        summary.Sent,
		Failed:      summary.Failed,
		Failures:    failures,
		CustomerIDs: ids,
		Cancelled:   summary.Cancelled,
		CreatedBy:   nonZero(staffID),
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
	// the run is recorded even when the request context was cancelled mid-dispatch
	if err := s.runRepo.Save(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to record campaign run", zap.String("run_id", summary.RunID.String()), zap.Error(err))
	}
}

// acquireRunLock rejects a submission identical to one still being dispatched
func (s *CampaignMessagingFlowImpl) acquireRunLock(ctx context.Context, platform models.Platform, req *dto.SendCampaignMessageRequest) (func(), error) {
	if s.rc == nil {
		return func() {}, nil
	}

	fingerprint, err := hashKey(struct {
		Platform models.Platform           `json:"platform"`
		Filter   dto.AudienceFilterRequest `json:"filter"`
		Message  string                    `json:"message"`
		Button   [2]string                 `json:"button"`
	}{platform, req.Filter, req.Message, [2]string{stringValue(req.TelegramButtonText), stringValue(req.TelegramButtonURL)}})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCK_FAILED", "Failed to acquire campaign lock", err)
	}
	lockKey := redisKey(*s.cacheConfig, utils.CampaignRunLockKey+":"+fingerprint)

	ttl := s.campaignConfig.RunLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ok, err := s.rc.SetNX(ctx, lockKey, "1", ttl).Result()
	if err != nil {
		return nil, NewBusinessError("CACHE_NOT_AVAILABLE", "Campaign lock store is not available", fmt.Errorf("%w: %w", ErrCacheNotAvailable, err))
	}
	if !ok {
		return nil, NewBusinessError("CAMPAIGN_ALREADY_RUNNING", "An identical campaign is already being sent", ErrCampaignAlreadyRunning)
	}
	return func() {
		_ = s.rc.Del(context.Background(), lockKey).Err()
	}, nil
}

// PreviewAudience returns the audience size and a bounded sample. It never dispatches.
func (s *CampaignMessagingFlowImpl) PreviewAudience(ctx context.Context, req *dto.PreviewAudienceRequest, metadata *ClientMetadata) (*dto.PreviewAudienceResponse, error) {
	if req == nil {
		req = &dto.PreviewAudienceRequest{}
	}
	sampleSize := s.previewSampleSize(req.SampleSize)

	cacheKey := ""
	if s.rc != nil {
		if h, err := hashKey(struct {
			Req        *dto.PreviewAudienceRequest `json:"req"`
			SampleSize int                         `json:"sample_size"`
		}{req, sampleSize}); err == nil {
			cacheKey = redisKey(*s.cacheConfig, utils.AudiencePreviewCacheKey+":"+h)
			if cached, ok := s.cachedPreview(ctx, cacheKey); ok {
				return cached, nil
			}
		}
	}

	segment, err := s.audience.Resolve(ctx, ToCampaignFilterCriteria(req.Filter))
	if err != nil {
		return nil, err
	}

	resp := &dto.PreviewAudienceResponse{
		Count:       segment.Len(),
		Sample:      make([]dto.AudienceMemberDTO, 0, min(sampleSize, segment.Len())),
		EvaluatedAt: segment.EvaluatedAt,
	}

	var platform models.Platform
	if req.Platform != nil {
		platform = models.Platform(*req.Platform)
	}
	message := stringValue(req.Message)
	if message != "" {
		resp.Placeholders = TemplatePlaceholders(message)
	}

	unresolved := make(map[string]struct{})
	for _, c := range segment.Customers[:min(sampleSize, segment.Len())] {
		member := toAudienceMemberDTO(c, segment.EvaluatedAt)
		if message != "" {
			pc := BuildPlaceholderContext(c, segment.EvaluatedAt)
			text := RenderTemplate(message, pc)
			length := utf8.RuneCountInString(text)
			member.RenderedMessage = &text
			member.MessageLength = &length
			if platform != models.PlatformTelegram {
				member.ExceedsSMSLimit = utils.ToPtr(length > s.smsMaxLength())
			}
			for _, token := range UnresolvedPlaceholders(message, pc) {
				unresolved[token] = struct{}{}
			}
		}
		resp.Sample = append(resp.Sample, member)
	}
	for _, token := range resp.Placeholders {
		if _, ok := unresolved[token]; ok {
			resp.Unresolved = append(resp.Unresolved, token)
		}
	}

	if cacheKey != "" {
		s.cachePreview(ctx, cacheKey, resp)
	}
	return resp, nil
}

func (s *CampaignMessagingFlowImpl) previewSampleSize(requested *int) int {
	size := s.campaignConfig.PreviewSampleSize
	if size <= 0 {
		size = 10
	}
	limit := s.campaignConfig.PreviewSampleMax
	if limit <= 0 {
		limit = 50
	}
	if requested != nil && *requested >= 0 {
		size = *requested
	}
	return min(size, limit)
}

func (s *CampaignMessagingFlowImpl) cachedPreview(ctx context.Context, key string) (*dto.PreviewAudienceResponse, bool) {
	raw, err := s.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("preview cache read failed", zap.Error(fmt.Errorf("%w: %w", ErrCacheNotAvailable, err)))
		}
		return nil, false
	}
	var resp dto.PreviewAudienceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (s *CampaignMessagingFlowImpl) cachePreview(ctx context.Context, key string, resp *dto.PreviewAudienceResponse) {
	ttl := s.campaignConfig.PreviewCacheTTL
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.rc.Set(ctx, key, raw, ttl).Err(); err != nil {
		s.logger.Warn("preview cache write failed", zap.Error(fmt.Errorf("%w: %w", ErrCacheNotAvailable, err)))
	}
}

func toAudienceMemberDTO(c *models.CustomerAggregate, now time.Time) dto.AudienceMemberDTO {
	member := dto.AudienceMemberDTO{
		CustomerID:        c.ID,
		DisplayName:       c.DisplayName,
		PhoneNumber:       c.PhoneNumber,
		HasTelegram:       c.TelegramChatID != nil && strings.TrimSpace(*c.TelegramChatID) != "",
		OrderCount:        c.OrderCount,
		TotalSpent:        roundMoney(c.TotalSpent),
		AverageOrderValue: roundMoney(c.AverageOrderValue()),
		LastOrderAt:       utils.TimeToUTCPtr(c.LastOrderAt),
	}
	if days, ok := c.DaysSinceLastOrder(now); ok {
		member.DaysSinceOrder = &days
	}
	return member
}

// ExportAudience writes the whole resolved audience to an XLSX workbook
func (s *CampaignMessagingFlowImpl) ExportAudience(ctx context.Context, req *dto.ExportAudienceRequest, metadata *ClientMetadata) (*dto.ExportAudienceResponse, error) {
	if req == nil {
		req = &dto.ExportAudienceRequest{}
	}
	segment, err := s.audience.Resolve(ctx, ToCampaignFilterCriteria(req.Filter))
	if err != nil {
		return nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := utils.AudienceExportSheet
	if err := xl.SetSheetName(xl.GetSheetName(0), sheet); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}

	header := []string{"customer_id", "display_name", "phone_number", "telegram_chat_id", "order_count", "total_spent", "average_order_value", "last_order_at", "days_since_order", "last_branch"}
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}

	for i, c := range segment.Customers {
		lastOrderAt := ""
		if c.LastOrderAt != nil {
			lastOrderAt = utils.TimeToUTC(*c.LastOrderAt).Format(time.RFC3339)
		}
		days := ""
		if d, ok := c.DaysSinceLastOrder(segment.EvaluatedAt); ok {
			days = strconv.Itoa(d)
		}
		record := []any{
			c.ID,
			c.DisplayName,
			c.PhoneNumber,
			utils.Deref(c.TelegramChatID),
			c.OrderCount,
			roundMoney(c.TotalSpent),
			roundMoney(c.AverageOrderValue()),
			lastOrderAt,
			days,
			utils.Deref(c.LastBranchName),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(sheet, cellRef, &record); err != nil {
			return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	s.logger.Info("audience exported", metadata.logFields(zap.Int("rows", segment.Len()))...)

	return &dto.ExportAudienceResponse{
		Filename: fmt.Sprintf("audience_%s.xlsx", segment.EvaluatedAt.UTC().Format("20060102_150405")),
		Content:  buf.Bytes(),
		Rows:     segment.Len(),
	}, nil
}

// ListTemplates returns active saved templates, newest first
func (s *CampaignMessagingFlowImpl) ListTemplates(ctx context.Context, req *dto.ListMessageTemplatesRequest) (*dto.ListMessageTemplatesResponse, error) {
	page, pageSize := 1, utils.DefaultPageSize
	if req != nil {
		if req.Page < 0 {
			return nil, NewBusinessError("INVALID_PAGE", "Page must be positive", ErrInvalidPage)
		}
		if req.PageSize < 0 || req.PageSize > utils.MaxPageSize {
			return nil, NewBusinessError("INVALID_PAGE_SIZE", "Page size is out of range", ErrInvalidPageSize)
		}
		if req.Page > 0 {
			page = req.Page
		}
		if req.PageSize > 0 {
			pageSize = req.PageSize
		}
	}

	total, err := s.templateRepo.Count(ctx, models.MessageTemplateFilter{IsActive: utils.ToPtr(true)})
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LIST_FAILED", "Failed to count message templates", err)
	}
	rows, err := s.templateRepo.ListActive(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LIST_FAILED", "Failed to list message templates", err)
	}

	items := make([]dto.MessageTemplateDTO, 0, len(rows))
	for _, t := range rows {
		items = append(items, ToMessageTemplateDTO(t))
	}
	return &dto.ListMessageTemplatesResponse{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

func redisKey(cfg config.CacheConfig, key string) string {
	if cfg.RedisPrefix == "" {
		return key
	}
	return cfg.RedisPrefix + ":" + key
}

func hashKey(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func nonZero(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}
