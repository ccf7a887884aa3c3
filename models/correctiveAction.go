package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CorrectiveAction removes the root cause of a deviation. Adding one triggers
// effectiveness-check scheduling in the same write (workflow.Engine).
type CorrectiveAction struct {
	ID          int    `gorm:"primary_key" json:"id"`
	BusinessId  string `gorm:"size:64;not null;index" json:"business_id"`
	DeviationId int    `gorm:"not null;index" json:"deviation_id"`

	Description      string `gorm:"type:text;not null" json:"description"`
	Responsible      string `gorm:"size:100;not null" json:"responsible"`
	ResponsiblePhone string `gorm:"size:32" json:"responsible_phone"`

	PlannedStartDate time.Time  `gorm:"not null" json:"planned_start_date"`
	PlannedEndDate   time.Time  `gorm:"not null;index" json:"planned_end_date"`
	ActualStartDate  *time.Time `json:"actual_start_date"`
	ActualEndDate    *time.Time `json:"actual_end_date"`

	Status ActionStatus `gorm:"size:20;not null;index" json:"status"`

	EstimatedCost decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"estimated_cost"`
	ActualCost    decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"actual_cost"`

	// Verification sub-record, set when Status moves to verified.
	VerifiedBy          *string    `gorm:"size:100" json:"verified_by"`
	VerifiedAt          *time.Time `json:"verified_at"`
	VerificationComment *string    `gorm:"type:text" json:"verification_comment"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCorrectiveAction struct {
	Description      string          `json:"description" binding:"required"`
	Responsible      string          `json:"responsible" binding:"required"`
	ResponsiblePhone string          `json:"responsible_phone"`
	PlannedStartDate time.Time       `json:"planned_start_date" binding:"required"`
	PlannedEndDate   time.Time       `json:"planned_end_date" binding:"required"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
}

// UpdateActionStatusInput moves an action through its sub-lifecycle.
type UpdateActionStatusInput struct {
	Status              ActionStatus    `json:"status" binding:"required"`
	ActualStartDate     *time.Time      `json:"actual_start_date"`
	ActualEndDate       *time.Time      `json:"actual_end_date"`
	ActualCost          decimal.Decimal `json:"actual_cost"`
	VerificationComment *string         `json:"verification_comment"`
}
