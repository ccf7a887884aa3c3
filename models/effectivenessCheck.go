package models

import "time"

// EffectivenessCheck is a scheduled, dated verification that a corrective
// action actually worked. Checks are produced by the scheduler when an action
// is recorded; users perform them, they never create them ad hoc for an
// action that already has its set.
type EffectivenessCheck struct {
	ID                 int    `gorm:"primary_key" json:"id"`
	BusinessId         string `gorm:"size:64;not null;index" json:"business_id"`
	DeviationId        int    `gorm:"not null;index" json:"deviation_id"`
	CorrectiveActionId int    `gorm:"not null;index" json:"corrective_action_id"`

	CheckType   CheckType   `gorm:"size:20;not null" json:"check_type"`
	CheckMethod CheckMethod `gorm:"size:20;not null" json:"check_method"`
	PlannedDate time.Time   `gorm:"not null;index" json:"planned_date"`

	SuccessCriteria []SuccessCriterion `gorm:"foreignKey:CheckId" json:"success_criteria"`

	// Execution results; all nil until the check is performed.
	PerformedDate *time.Time        `gorm:"index" json:"performed_date"`
	PerformedBy   *string           `gorm:"size:100" json:"performed_by"`
	CriteriaMet   *bool             `json:"criteria_met"`
	ActualValues  map[string]string `gorm:"serializer:json" json:"actual_values,omitempty"`
	Observations  *string           `gorm:"type:text" json:"observations"`

	EffectivenessRating *EffectivenessRating `gorm:"size:25;index" json:"effectiveness_rating"`

	FollowUpRequired bool             `gorm:"not null;default:false" json:"follow_up_required"`
	FollowUpActions  []FollowUpAction `gorm:"foreignKey:CheckId" json:"follow_up_actions"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type SuccessCriterion struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index" json:"business_id"`
	CheckId    int    `gorm:"not null;index" json:"check_id"`

	Description      string `gorm:"size:255;not null" json:"description"`
	MeasurableTarget string `gorm:"size:100" json:"measurable_target"`
	Tolerance        string `gorm:"size:100" json:"tolerance"`
}

type FollowUpAction struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index" json:"business_id"`
	CheckId    int    `gorm:"not null;index" json:"check_id"`

	Description string    `gorm:"type:text;not null" json:"description"`
	DueDate     time.Time `gorm:"not null" json:"due_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NewEffectivenessCheck is the manual scheduling input (and the scheduler's
// internal shape). Manual scheduling is only allowed for supplementary checks,
// e.g. a customer-feedback round on top of the generated set.
type NewEffectivenessCheck struct {
	CorrectiveActionId int                   `json:"corrective_action_id" binding:"required"`
	CheckType          CheckType             `json:"check_type" binding:"required"`
	CheckMethod        CheckMethod           `json:"check_method" binding:"required"`
	PlannedDate        time.Time             `json:"planned_date" binding:"required"`
	SuccessCriteria    []NewSuccessCriterion `json:"success_criteria"`
}

type NewSuccessCriterion struct {
	Description      string `json:"description" binding:"required"`
	MeasurableTarget string `json:"measurable_target"`
	Tolerance        string `json:"tolerance"`
}

// CheckResults is what the person performing a check records.
type CheckResults struct {
	CriteriaMet   bool              `json:"criteria_met"`
	ActualValues  map[string]string `json:"actual_values"`
	Observations  string            `json:"observations"`
	PerformedBy   string            `json:"performed_by"`
	PerformedDate *time.Time        `json:"performed_date"`
}

func (c *EffectivenessCheck) Performed() bool {
	return c.PerformedDate != nil
}

// Overdue reports whether the check should have been performed by now.
func (c *EffectivenessCheck) Overdue(now time.Time) bool {
	return c.PerformedDate == nil && c.PlannedDate.Before(now)
}
