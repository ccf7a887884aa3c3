package workflow

import (
	"strings"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

// ValidationResult lists every violated rule plus advisory warnings. Warnings
// never block creation; the client renders them next to the saved record.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (e *Engine) ValidateDeviation(input *models.NewDeviation) ValidationResult {
	var errs, warns []string

	if strings.TrimSpace(input.Title) == "" {
		errs = append(errs, "title is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		errs = append(errs, "description is required")
	}
	if strings.TrimSpace(input.DiscoveredBy) == "" {
		errs = append(errs, "discovered_by is required")
	}
	if !input.Type.Valid() {
		errs = append(errs, "type must be one of product, process, system, documentation, calibration")
	}
	if !input.Severity.Valid() {
		errs = append(errs, "severity must be one of critical, major, minor, observation")
	}
	if input.Severity == models.DeviationSeverityCritical &&
		(input.ImmediateAction == nil || strings.TrimSpace(*input.ImmediateAction) == "") {
		errs = append(errs, "critical deviations require an immediate containment action")
	}
	if input.DiscoveredDate != nil && input.DiscoveredDate.After(e.Clock.Now()) {
		errs = append(errs, "discovered_date cannot be in the future")
	}

	if input.Type == models.DeviationTypeProduct && input.BatchId == nil {
		warns = append(warns, "product deviation without a batch reference limits traceability")
	}
	if input.Type == models.DeviationTypeCalibration && input.CalibrationId == nil {
		warns = append(warns, "calibration deviation without a calibration record reference")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}
