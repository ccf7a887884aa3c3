package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// Check horizons relative to the action's planned end date.
const (
	immediateCheckOffsetDays = 7
	shortTermCheckOffsetDays = 30
	longTermCheckOffsetDays  = 90
)

// checkMethodForType picks how effectiveness is verified. A product defect is
// re-tested, a process defect is re-measured, a system defect is re-audited.
func checkMethodForType(t models.DeviationType) models.CheckMethod {
	switch t {
	case models.DeviationTypeProduct:
		return models.CheckMethodTest
	case models.DeviationTypeProcess, models.DeviationTypeCalibration:
		return models.CheckMethodMeasurement
	case models.DeviationTypeSystem:
		return models.CheckMethodAudit
	case models.DeviationTypeDocumentation:
		return models.CheckMethodDocumentReview
	default:
		return models.CheckMethodObservation
	}
}

// scheduleChecksForAction builds the generated check set for a new corrective
// action: an immediate and a short-term check always, plus a long-term check
// for critical and major deviations. The checks are appended to the aggregate
// and persisted together with the action.
func (e *Engine) scheduleChecksForAction(d *models.Deviation, action *models.NewCorrectiveAction) []models.EffectivenessCheck {
	method := checkMethodForType(d.Type)
	base := action.PlannedEndDate

	horizons := []struct {
		checkType models.CheckType
		days      int
	}{
		{models.CheckTypeImmediate, immediateCheckOffsetDays},
		{models.CheckTypeShortTerm, shortTermCheckOffsetDays},
	}
	if d.Severity == models.DeviationSeverityCritical || d.Severity == models.DeviationSeverityMajor {
		horizons = append(horizons, struct {
			checkType models.CheckType
			days      int
		}{models.CheckTypeLongTerm, longTermCheckOffsetDays})
	}

	checks := make([]models.EffectivenessCheck, 0, len(horizons))
	for _, h := range horizons {
		checks = append(checks, models.EffectivenessCheck{
			CheckType:   h.checkType,
			CheckMethod: method,
			// Checks are calendar-dated; the action's planned end may carry
			// a time of day.
			PlannedDate:     utils.ConvertToDate(base.AddDate(0, 0, h.days)),
			SuccessCriteria: successCriteriaFor(d, h.checkType),
		})
	}
	return checks
}

// successCriteriaFor derives measurable criteria from the deviation's
// classification. The no-recurrence criterion is always first.
func successCriteriaFor(d *models.Deviation, checkType models.CheckType) []models.SuccessCriterion {
	criteria := []models.SuccessCriterion{{
		Description:      "no recurrence of the same nonconformance",
		MeasurableTarget: "0 occurrences",
	}}

	if d.Type == models.DeviationTypeProduct && d.RecipeId != nil {
		criteria = append(criteria, models.SuccessCriterion{
			Description:      "conformity of the affected recipe",
			MeasurableTarget: "conformity ≥ 95%",
		})
	}
	if d.Type == models.DeviationTypeProcess {
		criteria = append(criteria, models.SuccessCriterion{
			Description:      "process capability restored",
			MeasurableTarget: "process capability Cpk ≥ 1.33",
			Tolerance:        "≥ 1.0",
		})
	}
	if checkType == models.CheckTypeLongTerm {
		criteria = append(criteria, models.SuccessCriterion{
			Description: "sustained improvement over 3 months",
		})
	}
	return criteria
}

// ScheduleEffectivenessCheck adds a supplementary manual check on top of the
// generated set, e.g. a customer-feedback round after a complaint-driven
// deviation.
func (e *Engine) ScheduleEffectivenessCheck(ctx context.Context, deviationId int, input *models.NewEffectivenessCheck) (*models.EffectivenessCheck, error) {
	d, err := e.Repo.Get(ctx, deviationId)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("ScheduleEffectivenessCheck", "deviation is "+string(d.Status))
	}
	if d.FindCorrectiveAction(input.CorrectiveActionId) == nil {
		return nil, utils.ErrorRecordNotFound
	}

	var errs []string
	switch input.CheckType {
	case models.CheckTypeImmediate, models.CheckTypeShortTerm, models.CheckTypeLongTerm:
	default:
		errs = append(errs, "check_type must be one of immediate, short_term, long_term")
	}
	if input.PlannedDate.IsZero() {
		errs = append(errs, "planned_date is required")
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	check := models.EffectivenessCheck{
		CorrectiveActionId: input.CorrectiveActionId,
		CheckType:          input.CheckType,
		CheckMethod:        input.CheckMethod,
		PlannedDate:        input.PlannedDate,
	}
	if check.CheckMethod == "" {
		check.CheckMethod = checkMethodForType(d.Type)
	}
	for _, c := range input.SuccessCriteria {
		check.SuccessCriteria = append(check.SuccessCriteria, models.SuccessCriterion{
			Description:      c.Description,
			MeasurableTarget: c.MeasurableTarget,
			Tolerance:        c.Tolerance,
		})
	}
	d.EffectivenessChecks = append(d.EffectivenessChecks, check)
	d.Status = DeriveStatus(d)

	if err := e.Repo.Save(ctx, d); err != nil {
		config.LogError(e.Logger, "effectivenessScheduler.go", "ScheduleEffectivenessCheck", "save deviation", input, err)
		return nil, err
	}
	return &d.EffectivenessChecks[len(d.EffectivenessChecks)-1], nil
}
