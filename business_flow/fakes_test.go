package businessflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amirphl/tablecast/app/services"
	"github.com/amirphl/tablecast/models"
	"github.com/amirphl/tablecast/repository"
	"github.com/amirphl/tablecast/utils"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func daysAgo(d int) *time.Time {
	t := testNow.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

type fakeCustomerRepo struct {
	repository.CustomerRepository
	snapshot []*models.CustomerAggregate
	err      error
	calls    int
}

func (f *fakeCustomerRepo) AggregateSnapshot(ctx context.Context) ([]*models.CustomerAggregate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

type fakeTemplateRepo struct {
	repository.MessageTemplateRepository
	mu      sync.Mutex
	saved   []*models.MessageTemplate
	saveErr error
}

func (f *fakeTemplateRepo) Save(ctx context.Context, t *models.MessageTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	t.ID = uint(len(f.saved) + 1)
	t.CreatedAt = testNow
	f.saved = append(f.saved, t)
	return nil
}

func (f *fakeTemplateRepo) ByFilter(ctx context.Context, filter models.MessageTemplateFilter, orderBy string, limit, offset int) ([]*models.MessageTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MessageTemplate
	for _, t := range f.saved {
		if filter.Label != nil && t.Label != *filter.Label {
			continue
		}
		if filter.Platform != nil && t.Platform != *filter.Platform {
			continue
		}
		if filter.IsActive != nil && utils.IsTrue(t.IsActive) != *filter.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTemplateRepo) Count(ctx context.Context, filter models.MessageTemplateFilter) (int64, error) {
	rows, _ := f.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (f *fakeTemplateRepo) ListActive(ctx context.Context, limit, offset int) ([]*models.MessageTemplate, error) {
	rows, _ := f.ByFilter(ctx, models.MessageTemplateFilter{IsActive: utils.ToPtr(true)}, "", 0, 0)
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeTemplateRepo) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeRunRepo struct {
	repository.CampaignRunRepository
	mu   sync.Mutex
	runs []*models.CampaignRun
}

func (f *fakeRunRepo) Save(ctx context.Context, run *models.CampaignRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

// fakeChannel records one entry per attempted customer
type fakeChannel struct {
	platform models.Platform
	failFor  map[uint]models.FailureCategory
	onSend   func(r models.Recipient)

	mu       sync.Mutex
	attempts map[uint]int
	texts    map[uint]string
	opts     []services.SendOptions
}

func newFakeChannel(platform models.Platform) *fakeChannel {
	return &fakeChannel{
		platform: platform,
		failFor:  make(map[uint]models.FailureCategory),
		attempts: make(map[uint]int),
		texts:    make(map[uint]string),
	}
}

func (f *fakeChannel) Platform() models.Platform { return f.platform }

func (f *fakeChannel) Send(ctx context.Context, r models.Recipient, text string, opts services.SendOptions) (models.DispatchOutcome, error) {
	if ctx.Err() != nil {
		return models.DispatchOutcome{}, errors.Join(services.ErrNotAttempted, ctx.Err())
	}
	if f.onSend != nil {
		f.onSend(r)
	}

	f.mu.Lock()
	f.attempts[r.CustomerID]++
	f.texts[r.CustomerID] = text
	f.opts = append(f.opts, opts)
	category, fail := f.failFor[r.CustomerID]
	f.mu.Unlock()

	if fail {
		return models.FailedOutcome(r, f.platform, r.PhoneNumber, category, "simulated failure"), nil
	}
	return models.SentOutcome(r, f.platform, r.PhoneNumber), nil
}

func (f *fakeChannel) totalAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.attempts {
		n += c
	}
	return n
}

func (f *fakeChannel) attemptsFor(id uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id]
}

func (f *fakeChannel) textFor(id uint) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[id]
}
