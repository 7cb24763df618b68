package businessflow

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/tablecast/app/dto"
	"github.com/amirphl/tablecast/app/services"
	"github.com/amirphl/tablecast/config"
	"github.com/amirphl/tablecast/models"
	"github.com/amirphl/tablecast/utils"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testCampaignConfig = config.CampaignConfig{
	SMSMaxLength:      480,
	WorkerCount:       4,
	PreviewSampleSize: 2,
	PreviewSampleMax:  3,
}

type flowFixture struct {
	flow      *CampaignMessagingFlowImpl
	customers *fakeCustomerRepo
	templates *fakeTemplateRepo
	runs      *fakeRunRepo
}

func newFlowFixture(t *testing.T, snapshot []*models.CustomerAggregate, cfg config.CampaignConfig, channels ...services.Channel) *flowFixture {
	t.Helper()
	fx := &flowFixture{
		customers: &fakeCustomerRepo{snapshot: snapshot},
		templates: &fakeTemplateRepo{},
		runs:      &fakeRunRepo{},
	}
	flow := NewCampaignMessagingFlow(
		NewAudienceFilterCompiler(fx.customers, fixedClock),
		fx.templates,
		fx.runs,
		services.NewChannelRegistry(channels...),
		nil,
		nil,
		nil,
		cfg,
		nil,
	)
	impl, ok := flow.(*CampaignMessagingFlowImpl)
	require.True(t, ok)
	fx.flow = impl
	return fx
}

func threeRecipients() []*models.CustomerAggregate {
	return []*models.CustomerAggregate{
		{ID: 1, DisplayName: "Miki", PhoneNumber: "+251911111111", TelegramChatID: utils.ToPtr("1001"), OrderCount: 2, TotalSpent: 300, LastOrderAt: daysAgo(1), LastOrderID: utils.ToPtr(uint(45)), LastBranchName: utils.ToPtr("Bole Branch"), BranchIDs: pq.Int64Array{1}, MenuItemIDs: pq.Int64Array{10}},
		{ID: 2, DisplayName: "Abebe", PhoneNumber: "+251922222222", TelegramChatID: utils.ToPtr("1002"), OrderCount: 1, TotalSpent: 100, LastOrderAt: daysAgo(3), LastOrderID: utils.ToPtr(uint(46)), LastBranchName: utils.ToPtr("Piassa"), BranchIDs: pq.Int64Array{2}, MenuItemIDs: pq.Int64Array{11}},
		{ID: 3, DisplayName: "Sara", PhoneNumber: "+251933333333", TelegramChatID: utils.ToPtr("1003"), OrderCount: 3, TotalSpent: 100, LastOrderAt: daysAgo(5), LastOrderID: utils.ToPtr(uint(47)), LastBranchName: utils.ToPtr("Bole Branch"), BranchIDs: pq.Int64Array{1}, MenuItemIDs: pq.Int64Array{12}},
	}
}

func TestSendCampaignPartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	sms := newFakeChannel(models.PlatformSMS)
	sms.failFor[2] = models.FailureTransient
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, sms)

	resp, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		StaffID:   9,
		Platform:  "sms",
		Message:   "Hi {name}, order #{orderid} at {branch}",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Targeted)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 1, resp.Failures.Transient)
	assert.False(t, resp.Cancelled)
	assert.NotEmpty(t, resp.RunID)

	for _, id := range []uint{1, 2, 3} {
		assert.Equal(t, 1, sms.attemptsFor(id))
	}
	assert.Equal(t, "Hi Miki, order #45 at Bole Branch", sms.textFor(1))
	assert.Equal(t, "Hi Sara, order #47 at Bole Branch", sms.textFor(3))

	require.Len(t, fx.runs.runs, 1)
	run := fx.runs.runs[0]
	assert.Equal(t, resp.RunID, run.UUID.String())
	assert.Equal(t, 2, run.Sent)
	assert.Equal(t, 1, run.Failed)
	assert.JSONEq(t, `{"transient":1}`, string(run.Failures))
	assert.Equal(t, []int64{1, 2, 3}, []int64(run.CustomerIDs))
	require.NotNil(t, run.CreatedBy)
	assert.Equal(t, uint(9), *run.CreatedBy)
}

func TestSendCampaignSMSLengthPolicy(t *testing.T) {
	long := strings.Repeat("x", 481)
	snapshot := threeRecipients()[:1]

	t.Run("sms rejects over-long body without sending", func(t *testing.T) {
		sms := newFakeChannel(models.PlatformSMS)
		fx := newFlowFixture(t, snapshot, testCampaignConfig, sms)

		resp, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
			Platform: "sms", Message: long,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Targeted)
		assert.Equal(t, 0, resp.Sent)
		assert.Equal(t, 1, resp.Failed)
		assert.Equal(t, 1, resp.Failures.Validation)
		assert.Equal(t, 0, sms.totalAttempts())
	})

	t.Run("limit applies after substitution", func(t *testing.T) {
		sms := newFakeChannel(models.PlatformSMS)
		fx := newFlowFixture(t, snapshot, testCampaignConfig, sms)

		// 476 characters plus "Miki" is exactly 480
		resp, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
			Platform: "sms", Message: strings.Repeat("x", 476) + "{name}",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Sent)
		assert.Len(t, sms.textFor(1), 480)
	})

	t.Run("telegram accepts the same body", func(t *testing.T) {
		tg := newFakeChannel(models.PlatformTelegram)
		fx := newFlowFixture(t, snapshot, testCampaignConfig, tg)

		resp, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
			Platform: "telegram", Message: long,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Sent)
		assert.Equal(t, 0, resp.Failed)
		assert.Equal(t, long, tg.textFor(1))
	})
}

func TestSendCampaignValidationHasNoSideEffects(t *testing.T) {
	tg := newFakeChannel(models.PlatformTelegram)
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, tg)

	resp, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform:           "telegram",
		Message:            "Hi",
		TelegramButtonText: utils.ToPtr("Order"),
		SaveTemplate:       true,
		TemplateLabel:      utils.ToPtr("promo"),
	}, nil)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, IsCampaignValidationFailed(err))

	fields, ok := FieldErrors(err)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "telegram_button_url", fields[0].Field)

	assert.Equal(t, 0, fx.customers.calls)
	assert.Equal(t, 0, fx.templates.savedCount())
	assert.Equal(t, 0, tg.totalAttempts())
	assert.Empty(t, fx.runs.runs)
}

func TestSendCampaignTelegramButton(t *testing.T) {
	tg := newFakeChannel(models.PlatformTelegram)
	fx := newFlowFixture(t, threeRecipients()[:1], testCampaignConfig, tg)

	_, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform:           "telegram",
		Message:            "Hi {name}",
		TelegramButtonText: utils.ToPtr("Order"),
		TelegramButtonURL:  utils.ToPtr("https://example.com/menu"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, tg.opts, 1)
	assert.Equal(t, services.SendOptions{ButtonText: "Order", ButtonURL: "https://example.com/menu"}, tg.opts[0])
}

func TestSendCampaignSMSDropsButton(t *testing.T) {
	sms := newFakeChannel(models.PlatformSMS)
	fx := newFlowFixture(t, threeRecipients()[:1], testCampaignConfig, sms)

	_, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform:           "sms",
		Message:            "Hi",
		TelegramButtonText: utils.ToPtr("Order"),
		TelegramButtonURL:  utils.ToPtr("https://example.com/menu"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, sms.opts, 1)
	assert.False(t, sms.opts[0].HasButton())
}

func TestSendCampaignSavesTemplateBeforeDispatch(t *testing.T) {
	sms := newFakeChannel(models.PlatformSMS)
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, sms)

	savedAtSend := make(chan int, 3)
	sms.onSend = func(models.Recipient) { savedAtSend <- fx.templates.savedCount() }

	req := &dto.SendCampaignMessageRequest{
		Platform:      "sms",
		Message:       "Hi {name}",
		SaveTemplate:  true,
		TemplateLabel: utils.ToPtr(" weekend promo "),
	}
	resp, err := fx.flow.SendCampaign(context.Background(), req, nil)
	require.NoError(t, err)
	close(savedAtSend)

	for n := range savedAtSend {
		assert.Equal(t, 1, n)
	}
	require.NotNil(t, resp.TemplateUUID)
	require.Equal(t, 1, fx.templates.savedCount())
	saved := fx.templates.saved[0]
	assert.Equal(t, "weekend promo", saved.Label)
	assert.Equal(t, "Hi {name}", saved.Body)
	assert.Equal(t, models.PlatformSMS, saved.Platform)
	assert.Equal(t, saved.UUID.String(), *resp.TemplateUUID)

	// an identical submission reuses the saved template
	sms.onSend = nil
	resp2, err := fx.flow.SendCampaign(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.templates.savedCount())
	assert.Equal(t, *resp.TemplateUUID, *resp2.TemplateUUID)
}

func TestSendCampaignTemplateSaveFailureAborts(t *testing.T) {
	sms := newFakeChannel(models.PlatformSMS)
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, sms)
	fx.templates.saveErr = assert.AnError

	_, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform: "sms", Message: "Hi", SaveTemplate: true, TemplateLabel: utils.ToPtr("x"),
	}, nil)
	require.Error(t, err)
	assert.True(t, IsTemplateSaveFailed(err))
	assert.Equal(t, 0, sms.totalAttempts())
}

func TestSendCampaignEmptyAudience(t *testing.T) {
	sms := newFakeChannel(models.PlatformSMS)
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, sms)

	resp, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform:  "sms",
		Message:   "Hi",
		Filter:    dto.AudienceFilterRequest{OrdersMin: utils.ToPtr(int64(10)), OrdersMax: utils.ToPtr(int64(1))},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Targeted)
	assert.Equal(t, 0, resp.Sent)
	assert.Equal(t, 0, resp.Failed)
	assert.False(t, resp.Cancelled)
	assert.Equal(t, 0, sms.totalAttempts())
}

func TestSendCampaignUnknownChannel(t *testing.T) {
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, newFakeChannel(models.PlatformSMS))

	_, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform: "telegram", Message: "Hi",
	}, nil)
	require.Error(t, err)
	assert.True(t, IsChannelUnavailable(err))
}

func TestSendCampaignCancellationLeavesRemainingUncounted(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sms := newFakeChannel(models.PlatformSMS)
	sms.onSend = func(models.Recipient) { cancel() }

	cfg := testCampaignConfig
	cfg.WorkerCount = 1
	fx := newFlowFixture(t, threeRecipients(), cfg, sms)

	resp, err := fx.flow.SendCampaign(ctx, &dto.SendCampaignMessageRequest{
		Platform: "sms", Message: "Hi {name}",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Targeted)
	assert.Equal(t, 1, resp.Sent)
	assert.Equal(t, 0, resp.Failed)
	assert.True(t, resp.Cancelled)
	assert.Equal(t, 1, sms.totalAttempts())
	assert.Equal(t, 1, sms.attemptsFor(1))

	require.Len(t, fx.runs.runs, 1)
	assert.True(t, fx.runs.runs[0].Cancelled)
}

func TestSendCampaignWithRealSMSChannel(t *testing.T) {
	gw := services.NewMockSMSGateway()
	gw.FailFor["+251922222222"] = assert.AnError
	sms := services.NewSMSChannel(gw, config.SMSConfig{}, nil)
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, sms)

	resp, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform: "sms", Message: "{name}: {orders} orders, avg {avgordervalue}, {days} days",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 1, resp.Failures.Transient)

	sent := gw.GetSentMessages()
	require.Len(t, sent, 2)
	bodies := []string{sent[0].Message, sent[1].Message}
	assert.Contains(t, bodies, "Miki: 2 orders, avg 150, 1 days")
	assert.Contains(t, bodies, "Sara: 3 orders, avg 33.33, 5 days")
}

func TestBuildPlaceholderContext(t *testing.T) {
	withOrders := threeRecipients()[0]
	pc := BuildPlaceholderContext(withOrders, testNow)
	assert.Equal(t, "Hi Miki (+251911111111), order #45 at Bole Branch, total 300",
		RenderTemplate("Hi {name} ({phone}), order #{orderid} at {branch}, total {totalspent}", pc))

	newcomer := &models.CustomerAggregate{ID: 8, DisplayName: "Liya", PhoneNumber: "+251900000000"}
	pc = BuildPlaceholderContext(newcomer, testNow)
	assert.Equal(t, "Liya {orderid} {days} 0", RenderTemplate("{name} {orderid} {days} {orders}", pc))
}

func TestPreviewAudience(t *testing.T) {
	sms := newFakeChannel(models.PlatformSMS)
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, sms)

	t.Run("count and default sample", func(t *testing.T) {
		resp, err := fx.flow.PreviewAudience(context.Background(), &dto.PreviewAudienceRequest{}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, resp.Count)
		require.Len(t, resp.Sample, 2)
		assert.Equal(t, uint(1), resp.Sample[0].CustomerID)
		assert.Equal(t, uint(2), resp.Sample[1].CustomerID)
		assert.Equal(t, testNow, resp.EvaluatedAt)
	})

	t.Run("sample is capped", func(t *testing.T) {
		resp, err := fx.flow.PreviewAudience(context.Background(), &dto.PreviewAudienceRequest{SampleSize: utils.ToPtr(100)}, nil)
		require.NoError(t, err)
		assert.Len(t, resp.Sample, 3)
	})

	t.Run("zero sample returns count only", func(t *testing.T) {
		resp, err := fx.flow.PreviewAudience(context.Background(), &dto.PreviewAudienceRequest{SampleSize: utils.ToPtr(0)}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, resp.Count)
		assert.Empty(t, resp.Sample)
	})

	t.Run("renders message for sample", func(t *testing.T) {
		resp, err := fx.flow.PreviewAudience(context.Background(), &dto.PreviewAudienceRequest{
			Message: utils.ToPtr("Hi {Name} {coupon}"),
		}, nil)
		require.NoError(t, err)
		require.NotNil(t, resp.Sample[0].RenderedMessage)
		assert.Equal(t, "Hi Miki {coupon}", *resp.Sample[0].RenderedMessage)
		assert.Equal(t, []string{"name", "coupon"}, resp.Placeholders)
		assert.Equal(t, []string{"coupon"}, resp.Unresolved)
		require.NotNil(t, resp.Sample[0].ExceedsSMSLimit)
		assert.False(t, *resp.Sample[0].ExceedsSMSLimit)
	})

	t.Run("idempotent and never dispatches", func(t *testing.T) {
		req := &dto.PreviewAudienceRequest{Filter: dto.AudienceFilterRequest{BranchIDs: []uint{1}}}
		first, err := fx.flow.PreviewAudience(context.Background(), req, nil)
		require.NoError(t, err)
		second, err := fx.flow.PreviewAudience(context.Background(), req, nil)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 2, first.Count)
		assert.Equal(t, 0, sms.totalAttempts())
		assert.Empty(t, fx.runs.runs)
		assert.Equal(t, 0, fx.templates.savedCount())
	})
}

func TestExportAudience(t *testing.T) {
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig)

	resp, err := fx.flow.ExportAudience(context.Background(), &dto.ExportAudienceRequest{
		Filter: dto.AudienceFilterRequest{BranchIDs: []uint{1}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Rows)
	assert.Equal(t, "audience_20250310_120000.xlsx", resp.Filename)

	xl, err := excelize.OpenReader(bytes.NewReader(resp.Content))
	require.NoError(t, err)
	defer func() { _ = xl.Close() }()

	rows, err := xl.GetRows(utils.AudienceExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "customer_id", rows[0][0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Miki", rows[1][1])
	assert.Equal(t, "3", rows[2][0])
	assert.Equal(t, "Bole Branch", rows[2][9])
}

func TestListTemplates(t *testing.T) {
	fx := newFlowFixture(t, nil, testCampaignConfig)
	for _, label := range []string{"a", "b", "c"} {
		require.NoError(t, fx.templates.Save(context.Background(), &models.MessageTemplate{
			Label: label, Body: "Hi {name}", IsActive: utils.ToPtr(true), Platform: models.PlatformSMS,
		}))
	}
	require.NoError(t, fx.templates.Save(context.Background(), &models.MessageTemplate{
		Label: "old", Body: "Bye", IsActive: utils.ToPtr(false), Platform: models.PlatformSMS,
	}))

	resp, err := fx.flow.ListTemplates(context.Background(), &dto.ListMessageTemplatesRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "c", resp.Items[0].Label)
	assert.Equal(t, []string{"name"}, resp.Items[0].Placeholders)

	_, err = fx.flow.ListTemplates(context.Background(), &dto.ListMessageTemplatesRequest{PageSize: 1000})
	assert.True(t, IsInvalidPageSize(err))
}

// unreachableRedis returns a client whose every command fails fast with a dial error
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rc := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func observedLogger(fx *flowFixture) *observer.ObservedLogs {
	core, logs := observer.New(zap.DebugLevel)
	fx.flow.logger = zap.New(core)
	return logs
}

func TestSendCampaignLockStoreUnavailable(t *testing.T) {
	sms := newFakeChannel(models.PlatformSMS)
	fx := newFlowFixture(t, threeRecipients(), testCampaignConfig, sms)
	fx.flow.rc = unreachableRedis(t)

	_, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform: "sms", Message: "Hi {name}",
	}, nil)
	require.Error(t, err)
	assert.True(t, IsCacheNotAvailable(err))
	assert.Equal(t, 0, sms.totalAttempts())
	assert.Empty(t, fx.runs.runs)
}

func TestPreviewAudienceSurvivesCacheOutage(t *testing.T) {
	cfg := testCampaignConfig
	cfg.PreviewCacheTTL = time.Minute
	fx := newFlowFixture(t, threeRecipients(), cfg)
	fx.flow.rc = unreachableRedis(t)
	logs := observedLogger(fx)

	resp, err := fx.flow.PreviewAudience(context.Background(), &dto.PreviewAudienceRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Count)

	failures := logs.FilterMessage("preview cache read failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zap.WarnLevel, failures[0].Level)
	assert.Len(t, logs.FilterMessage("preview cache write failed").All(), 1)
}

func TestSendCampaignLogsRequestID(t *testing.T) {
	sms := newFakeChannel(models.PlatformSMS)
	fx := newFlowFixture(t, threeRecipients()[:1], testCampaignConfig, sms)
	logs := observedLogger(fx)

	metadata := NewClientMetadata("10.0.0.1", "test-agent")
	metadata.SetRequestID("req-42")

	_, err := fx.flow.SendCampaign(context.Background(), &dto.SendCampaignMessageRequest{
		Platform: "sms", Message: "Hi {name}",
	}, metadata)
	require.NoError(t, err)

	finished := logs.FilterMessage("campaign run finished").All()
	require.Len(t, finished, 1)
	fields := finished[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "10.0.0.1", fields["ip"])
}
