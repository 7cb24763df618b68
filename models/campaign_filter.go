package models

// CampaignFilterCriteria selects campaign recipients. Nil fields and empty slices
// impose no constraint. A min greater than its max selects nobody.
type CampaignFilterCriteria struct {
	OrdersMin *int64 `json:"orders_min,omitempty"`
	OrdersMax *int64 `json:"orders_max,omitempty"`

	RecencyMinDays *int `json:"recency_min_days,omitempty"`
	RecencyMaxDays *int `json:"recency_max_days,omitempty"`

	TotalSpentMin *float64 `json:"total_spent_min,omitempty"`
	TotalSpentMax *float64 `json:"total_spent_max,omitempty"`

	AvgOrderValueMin *float64 `json:"avg_order_value_min,omitempty"`
	AvgOrderValueMax *float64 `json:"avg_order_value_max,omitempty"`

	Search *string `json:"search,omitempty"`

	BranchIDs          []uint `json:"branch_ids,omitempty"`
	IncludeMenuItemIDs []uint `json:"include_menu_item_ids,omitempty"`
	ExcludeMenuItemIDs []uint `json:"exclude_menu_item_ids,omitempty"`
}

// HasInvertedRange reports whether any populated min exceeds its populated max
func (c CampaignFilterCriteria) HasInvertedRange() bool {
	return inverted(c.OrdersMin, c.OrdersMax) ||
		inverted(c.RecencyMinDays, c.RecencyMaxDays) ||
		inverted(c.TotalSpentMin, c.TotalSpentMax) ||
		inverted(c.AvgOrderValueMin, c.AvgOrderValueMax)
}

func inverted[T int | int64 | float64](lo, hi *T) bool {
	return lo != nil && hi != nil && *lo > *hi
}
