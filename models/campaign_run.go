package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CampaignSummary aggregates the dispatch outcomes of one campaign run.
// Targeted is the segment size; Sent+Failed counts attempted recipients only.
type CampaignSummary struct {
	RunID      uuid.UUID               `json:"run_id"`
	Platform   Platform                `json:"platform"`
	Targeted   int                     `json:"targeted"`
	Sent       int                     `json:"sent"`
	Failed     int                     `json:"failed"`
	Failures   map[FailureCategory]int `json:"failures"`
	Cancelled  bool                    `json:"cancelled"`
	TemplateID *uint                   `json:"template_id,omitempty"`
	Outcomes   []DispatchOutcome       `json:"-"`
}

// Attempted is the number of recipients a send was attempted for
func (s *CampaignSummary) Attempted() int {
	return s.Sent + s.Failed
}

// Record tallies one outcome into the summary
func (s *CampaignSummary) Record(o DispatchOutcome) {
	if s.Failures == nil {
		s.Failures = make(map[FailureCategory]int)
	}
	s.Outcomes = append(s.Outcomes, o)
	if o.Success {
		s.Sent++
		return
	}
	s.Failed++
	s.Failures[o.Category]++
}

// CampaignRun is the persisted summary row of a campaign run.
// Per-recipient outcomes are not stored.
// Table: campaign_runs
type CampaignRun struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_campaign_runs_uuid" json:"uuid"`
	Platform    Platform        `gorm:"size:20;not null;index:idx_campaign_runs_platform" json:"platform"`
	TemplateID  *uint           `gorm:"index:idx_campaign_runs_template_id" json:"template_id,omitempty"`
	Targeted    int             `gorm:"not null" json:"targeted"`
	Sent        int             `gorm:"not null" json:"sent"`
	Failed      int             `gorm:"not null" json:"failed"`
	Failures    json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"failures"`
	CustomerIDs pq.Int64Array   `gorm:"type:bigint[]" json:"customer_ids"`
	Cancelled   bool            `gorm:"not null;default:false" json:"cancelled"`
	CreatedBy   *uint           `gorm:"index:idx_campaign_runs_created_by" json:"created_by,omitempty"`

	StartedAt  time.Time `gorm:"not null;index:idx_campaign_runs_started_at" json:"started_at"`
	FinishedAt time.Time `gorm:"not null" json:"finished_at"`
}

func (CampaignRun) TableName() string { return "campaign_runs" }

// CampaignRunFilter provides filter fields for repository queries
type CampaignRunFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Platform      *Platform
	CreatedBy     *uint
	StartedAfter  *time.Time
	StartedBefore *time.Time
}
