package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PreventiveAction prevents recurrence beyond the immediate case. Same shape
// as CorrectiveAction plus a probability x impact risk assessment.
type PreventiveAction struct {
	ID          int    `gorm:"primary_key" json:"id"`
	BusinessId  string `gorm:"size:64;not null;index" json:"business_id"`
	DeviationId int    `gorm:"not null;index" json:"deviation_id"`

	Description      string `gorm:"type:text;not null" json:"description"`
	Responsible      string `gorm:"size:100;not null" json:"responsible"`
	ResponsiblePhone string `gorm:"size:32" json:"responsible_phone"`

	PlannedStartDate time.Time  `gorm:"not null" json:"planned_start_date"`
	PlannedEndDate   time.Time  `gorm:"not null" json:"planned_end_date"`
	ActualStartDate  *time.Time `json:"actual_start_date"`
	ActualEndDate    *time.Time `json:"actual_end_date"`

	Status ActionStatus `gorm:"size:20;not null;index" json:"status"`

	EstimatedCost decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"estimated_cost"`
	ActualCost    decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"actual_cost"`

	// Risk assessment: probability and impact on a 1..5 scale.
	Probability int       `gorm:"not null" json:"probability"`
	Impact      int       `gorm:"not null" json:"impact"`
	RiskLevel   RiskLevel `gorm:"size:10;not null" json:"risk_level"`

	VerifiedBy          *string    `gorm:"size:100" json:"verified_by"`
	VerifiedAt          *time.Time `json:"verified_at"`
	VerificationComment *string    `gorm:"type:text" json:"verification_comment"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPreventiveAction struct {
	Description      string          `json:"description" binding:"required"`
	Responsible      string          `json:"responsible" binding:"required"`
	ResponsiblePhone string          `json:"responsible_phone"`
	PlannedStartDate time.Time       `json:"planned_start_date" binding:"required"`
	PlannedEndDate   time.Time       `json:"planned_end_date" binding:"required"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
	Probability      int             `json:"probability" binding:"required,min=1,max=5"`
	Impact           int             `json:"impact" binding:"required,min=1,max=5"`
}

// RiskLevelFor maps probability x impact to a risk level. Thresholds follow
// the QM handbook's 5x5 matrix: score >= 15 high, >= 6 medium, else low.
func RiskLevelFor(probability, impact int) RiskLevel {
	score := probability * impact
	switch {
	case score >= 15:
		return RiskLevelHigh
	case score >= 6:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}
