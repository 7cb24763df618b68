package businessflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/amirphl/tablecast/models"
	"github.com/amirphl/tablecast/repository"
	"github.com/amirphl/tablecast/utils"
)

// AudiencePredicate decides whether one customer matches at the evaluation instant
type AudiencePredicate func(c *models.CustomerAggregate, now time.Time) bool

// And combines predicates by logical conjunction. No predicates match everyone.
func And(preds ...AudiencePredicate) AudiencePredicate {
	return func(c *models.CustomerAggregate, now time.Time) bool {
		for _, p := range preds {
			if !p(c, now) {
				return false
			}
		}
		return true
	}
}

func matchNone(*models.CustomerAggregate, time.Time) bool { return false }

// AudienceFilterCompiler turns filter criteria into an ordered audience segment
type AudienceFilterCompiler struct {
	customerRepo repository.CustomerRepository
	now          func() time.Time
}

// NewAudienceFilterCompiler creates a compiler reading snapshots from customerRepo.
// A nil clock uses the current UTC time.
func NewAudienceFilterCompiler(customerRepo repository.CustomerRepository, clock func() time.Time) *AudienceFilterCompiler {
	if clock == nil {
		clock = utils.UTCNow
	}
	return &AudienceFilterCompiler{customerRepo: customerRepo, now: clock}
}

// Compile builds the predicate for criteria. Each populated field narrows the result.
func (f *AudienceFilterCompiler) Compile(criteria models.CampaignFilterCriteria) AudiencePredicate {
	if criteria.HasInvertedRange() {
		return matchNone
	}

	var preds []AudiencePredicate

	if criteria.OrdersMin != nil || criteria.OrdersMax != nil {
		lo, hi := criteria.OrdersMin, criteria.OrdersMax
		preds = append(preds, func(c *models.CustomerAggregate, _ time.Time) bool {
			return inRange(c.OrderCount, lo, hi)
		})
	}

	if criteria.RecencyMinDays != nil || criteria.RecencyMaxDays != nil {
		lo, hi := criteria.RecencyMinDays, criteria.RecencyMaxDays
		preds = append(preds, func(c *models.CustomerAggregate, now time.Time) bool {
			days, ok := c.DaysSinceLastOrder(now)
			if !ok {
				return false
			}
			return inRange(days, lo, hi)
		})
	}

	if criteria.TotalSpentMin != nil || criteria.TotalSpentMax != nil {
		lo, hi := criteria.TotalSpentMin, criteria.TotalSpentMax
		preds = append(preds, func(c *models.CustomerAggregate, _ time.Time) bool {
			return inRange(c.TotalSpent, lo, hi)
		})
	}

	if criteria.AvgOrderValueMin != nil || criteria.AvgOrderValueMax != nil {
		lo, hi := criteria.AvgOrderValueMin, criteria.AvgOrderValueMax
		preds = append(preds, func(c *models.CustomerAggregate, _ time.Time) bool {
			return inRange(c.AverageOrderValue(), lo, hi)
		})
	}

	if criteria.Search != nil {
		if needle := strings.ToLower(strings.TrimSpace(*criteria.Search)); needle != "" {
			preds = append(preds, func(c *models.CustomerAggregate, _ time.Time) bool {
				return strings.Contains(strings.ToLower(c.DisplayName), needle) ||
					strings.Contains(strings.ToLower(c.PhoneNumber), needle)
			})
		}
	}

	if len(criteria.BranchIDs) > 0 {
		branchIDs := slices.Clone(criteria.BranchIDs)
		preds = append(preds, func(c *models.CustomerAggregate, _ time.Time) bool {
			return c.OrderedAtAnyBranch(branchIDs)
		})
	}

	if len(criteria.IncludeMenuItemIDs) > 0 {
		include := slices.Clone(criteria.IncludeMenuItemIDs)
		preds = append(preds, func(c *models.CustomerAggregate, _ time.Time) bool {
			return c.OrderedAnyItem(include)
		})
	}

	// exclusion is checked independently of inclusion, so an id in both lists excludes
	if len(criteria.ExcludeMenuItemIDs) > 0 {
		exclude := slices.Clone(criteria.ExcludeMenuItemIDs)
		preds = append(preds, func(c *models.CustomerAggregate, _ time.Time) bool {
			return !c.OrderedAnyItem(exclude)
		})
	}

	return And(preds...)
}

// Resolve evaluates criteria against the current customer snapshot
func (f *AudienceFilterCompiler) Resolve(ctx context.Context, criteria models.CampaignFilterCriteria) (*models.AudienceSegment, error) {
	now := f.now()
	segment := &models.AudienceSegment{EvaluatedAt: now}

	if criteria.HasInvertedRange() {
		return segment, nil
	}

	snapshot, err := f.customerRepo.AggregateSnapshot(ctx)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_SNAPSHOT_FAILED", "Failed to read customer snapshot", fmt.Errorf("%w: %w", ErrAudienceUnavailable, err))
	}

	segment.Customers = SelectAudience(snapshot, f.Compile(criteria), now)
	return segment, nil
}

// SelectAudience filters snapshot with pred, drops duplicate ids and orders the result by
// last order descending (customers without orders last), ties by ascending id.
func SelectAudience(snapshot []*models.CustomerAggregate, pred AudiencePredicate, now time.Time) []*models.CustomerAggregate {
	seen := make(map[uint]struct{}, len(snapshot))
	out := make([]*models.CustomerAggregate, 0)
	for _, c := range snapshot {
		if c == nil {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if pred(c, now) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, compareByRecentActivity)
	return out
}

func compareByRecentActivity(a, b *models.CustomerAggregate) int {
	switch {
	case a.LastOrderAt != nil && b.LastOrderAt != nil:
		if c := b.LastOrderAt.Compare(*a.LastOrderAt); c != 0 {
			return c
		}
	case a.LastOrderAt != nil:
		return -1
	case b.LastOrderAt != nil:
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func inRange[T int | int64 | float64](v T, lo, hi *T) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}
