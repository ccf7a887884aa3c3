package models

import (
	"time"
)

// Deviation is the aggregate root of the CAPA module. All actions, checks and
// the closure record live and die with it; children never outlive the parent.
type Deviation struct {
	ID              int    `gorm:"primary_key" json:"id"`
	BusinessId      string `gorm:"size:64;not null;index;uniqueIndex:idx_deviation_number,priority:1" json:"business_id"`
	DeviationNumber string `gorm:"size:20;not null;uniqueIndex:idx_deviation_number,priority:2" json:"deviation_number"`

	Title       string            `gorm:"size:255;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Type        DeviationType     `gorm:"size:20;not null;index" json:"type"`
	Severity    DeviationSeverity `gorm:"size:20;not null;index" json:"severity"`
	Source      string            `gorm:"size:100" json:"source"`

	DiscoveredDate time.Time `gorm:"not null;index" json:"discovered_date"`
	DiscoveredBy   string    `gorm:"size:100;not null" json:"discovered_by"`

	// Optional provenance links into the recipe/FPC/ITT modules.
	RecipeId      *int    `gorm:"index" json:"recipe_id"`
	BatchId       *string `gorm:"size:64;index" json:"batch_id"`
	TestReportId  *int    `json:"test_report_id"`
	CalibrationId *int    `json:"calibration_id"`

	// Status is always re-derived from the child records on write, never set
	// directly. See workflow.DeriveStatus.
	Status DeviationStatus `gorm:"size:30;not null;index" json:"status"`

	// Containment taken at discovery. Mandatory for critical deviations.
	ImmediateAction *string `gorm:"type:text" json:"immediate_action"`

	RootCauseAnalysis   *RootCauseAnalysis   `gorm:"foreignKey:DeviationId" json:"root_cause_analysis"`
	CorrectiveActions   []CorrectiveAction   `gorm:"foreignKey:DeviationId" json:"corrective_actions"`
	PreventiveActions   []PreventiveAction   `gorm:"foreignKey:DeviationId" json:"preventive_actions"`
	EffectivenessChecks []EffectivenessCheck `gorm:"foreignKey:DeviationId" json:"effectiveness_checks"`
	Closure             *DeviationClosure    `gorm:"foreignKey:DeviationId" json:"closure"`
	Documents           []DeviationDocument  `gorm:"foreignKey:DeviationId" json:"documents"`

	// Version backs optimistic concurrency; every successful save increments it.
	Version int `gorm:"not null;default:0" json:"version"`

	CreatedBy string    `gorm:"size:100" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type RootCauseAnalysis struct {
	ID          int    `gorm:"primary_key" json:"id"`
	BusinessId  string `gorm:"size:64;not null;index" json:"business_id"`
	DeviationId int    `gorm:"not null;index" json:"deviation_id"`

	Method       RootCauseMethod `gorm:"size:20;not null" json:"method"`
	RootCause    string          `gorm:"type:text;not null" json:"root_cause"`
	AnalyzedBy   string          `gorm:"size:100" json:"analyzed_by"`
	AnalysisDate time.Time       `gorm:"not null" json:"analysis_date"`

	// Method-specific payloads. Only the one matching Method is populated.
	FiveWhys           []string            `gorm:"serializer:json" json:"five_whys,omitempty"`
	FishboneCategories map[string][]string `gorm:"serializer:json" json:"fishbone_categories,omitempty"`
	EightDSteps        map[string]string   `gorm:"serializer:json" json:"eight_d_steps,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type DeviationClosure struct {
	ID          int    `gorm:"primary_key" json:"id"`
	BusinessId  string `gorm:"size:64;not null;index" json:"business_id"`
	DeviationId int    `gorm:"not null;uniqueIndex" json:"deviation_id"`

	ClosedBy    string        `gorm:"size:100;not null" json:"closed_by"`
	ClosedAt    time.Time     `gorm:"not null" json:"closed_at"`
	Summary     string        `gorm:"type:text" json:"summary"`
	FinalStatus ClosureStatus `gorm:"size:20;not null" json:"final_status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NewDeviation is the creation input. Required-field and domain-rule checks
// are the engine validator's job (it reports every violation at once), so the
// fields carry no binding:"required" tags.
type NewDeviation struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Type            DeviationType     `json:"type"`
	Severity        DeviationSeverity `json:"severity"`
	Source          string            `json:"source"`
	DiscoveredDate  *time.Time        `json:"discovered_date"`
	DiscoveredBy    string            `json:"discovered_by"`
	RecipeId        *int              `json:"recipe_id"`
	BatchId         *string           `json:"batch_id"`
	TestReportId    *int              `json:"test_report_id"`
	CalibrationId   *int              `json:"calibration_id"`
	ImmediateAction *string           `json:"immediate_action"`
}

// UpdateDeviationInput is a partial update; nil fields stay untouched.
// Classification and provenance are editable while the deviation is open;
// status and children are never writable through here.
type UpdateDeviationInput struct {
	Title           *string            `json:"title"`
	Description     *string            `json:"description"`
	Type            *DeviationType     `json:"type"`
	Severity        *DeviationSeverity `json:"severity"`
	Source          *string            `json:"source"`
	RecipeId        *int               `json:"recipe_id"`
	BatchId         *string            `json:"batch_id"`
	TestReportId    *int               `json:"test_report_id"`
	CalibrationId   *int               `json:"calibration_id"`
	ImmediateAction *string            `json:"immediate_action"`
}

type NewRootCauseAnalysis struct {
	Method             RootCauseMethod     `json:"method"`
	RootCause          string              `json:"root_cause"`
	AnalyzedBy         string              `json:"analyzed_by"`
	FiveWhys           []string            `json:"five_whys"`
	FishboneCategories map[string][]string `json:"fishbone_categories"`
	EightDSteps        map[string]string   `json:"eight_d_steps"`
}

type DeviationFilter struct {
	Status   *DeviationStatus   `json:"status" form:"status"`
	Severity *DeviationSeverity `json:"severity" form:"severity"`
	Type     *DeviationType     `json:"type" form:"type"`
	FromDate *time.Time         `json:"from_date" form:"from_date" time_format:"2006-01-02"`
	ToDate   *time.Time         `json:"to_date" form:"to_date" time_format:"2006-01-02"`
	RecipeId *int               `json:"recipe_id" form:"recipe_id"`
	BatchId  *string            `json:"batch_id" form:"batch_id"`
}

// Matches applies the filter in memory. The GORM repository pushes the same
// conditions into SQL; the in-memory repository and the statistics aggregator
// use this directly.
func (f DeviationFilter) Matches(d *Deviation) bool {
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	if f.Severity != nil && d.Severity != *f.Severity {
		return false
	}
	if f.Type != nil && d.Type != *f.Type {
		return false
	}
	if f.FromDate != nil && d.DiscoveredDate.Before(*f.FromDate) {
		return false
	}
	if f.ToDate != nil && d.DiscoveredDate.After(*f.ToDate) {
		return false
	}
	if f.RecipeId != nil && (d.RecipeId == nil || *d.RecipeId != *f.RecipeId) {
		return false
	}
	if f.BatchId != nil && (d.BatchId == nil || *d.BatchId != *f.BatchId) {
		return false
	}
	return true
}

func (d *Deviation) FindCorrectiveAction(actionId int) *CorrectiveAction {
	for i := range d.CorrectiveActions {
		if d.CorrectiveActions[i].ID == actionId {
			return &d.CorrectiveActions[i]
		}
	}
	return nil
}

func (d *Deviation) FindPreventiveAction(actionId int) *PreventiveAction {
	for i := range d.PreventiveActions {
		if d.PreventiveActions[i].ID == actionId {
			return &d.PreventiveActions[i]
		}
	}
	return nil
}

func (d *Deviation) FindEffectivenessCheck(checkId int) *EffectivenessCheck {
	for i := range d.EffectivenessChecks {
		if d.EffectivenessChecks[i].ID == checkId {
			return &d.EffectivenessChecks[i]
		}
	}
	return nil
}

// checkSuperseded reports whether a performed, failed check was answered by a
// root-cause analysis recorded after it. Superseded checks no longer drive
// the lifecycle; the re-analysis restarts the workflow with fresh checks.
func (d *Deviation) checkSuperseded(c *EffectivenessCheck) bool {
	if d.RootCauseAnalysis == nil || c.PerformedDate == nil || c.EffectivenessRating == nil {
		return false
	}
	if *c.EffectivenessRating != RatingNotEffective {
		return false
	}
	return d.RootCauseAnalysis.AnalysisDate.After(*c.PerformedDate)
}

// ActiveEffectivenessChecks returns the checks that still drive the
// lifecycle, i.e. all checks minus superseded ones.
func (d *Deviation) ActiveEffectivenessChecks() []*EffectivenessCheck {
	var out []*EffectivenessCheck
	for i := range d.EffectivenessChecks {
		c := &d.EffectivenessChecks[i]
		if d.checkSuperseded(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (d *Deviation) HasSupersededCheck() bool {
	for i := range d.EffectivenessChecks {
		if d.checkSuperseded(&d.EffectivenessChecks[i]) {
			return true
		}
	}
	return false
}

// AllChecksPerformed and AllChecksEffective are the closure predicates: a
// deviation auto-closes only when both hold over the active check set. Both
// are false with no active checks, so scheduling is a precondition of
// closure.
func (d *Deviation) AllChecksPerformed() bool {
	active := d.ActiveEffectivenessChecks()
	if len(active) == 0 {
		return false
	}
	for _, c := range active {
		if !c.Performed() {
			return false
		}
	}
	return true
}

func (d *Deviation) AllChecksEffective() bool {
	active := d.ActiveEffectivenessChecks()
	if len(active) == 0 {
		return false
	}
	for _, c := range active {
		if c.EffectivenessRating == nil || *c.EffectivenessRating != RatingEffective {
			return false
		}
	}
	return true
}
