package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

const (
	reanalysisFollowUp         = "perform new root-cause analysis and define alternative measures"
	additionalMeasuresFollowUp = "define additional measures for full effectiveness"

	reanalysisDueDays         = 7
	additionalMeasuresDueDays = 14
)

// PerformEffectivenessCheck records the results of a scheduled check, rates
// it, and applies the consequences: follow-ups and an escalation on a failed
// check, automatic closure when the last check passes. One write covers all
// of it.
func (e *Engine) PerformEffectivenessCheck(ctx context.Context, checkId int, results *models.CheckResults) (*models.Deviation, error) {
	d, err := e.Repo.GetByCheckId(ctx, checkId)
	if err != nil {
		return nil, err
	}
	check := d.FindEffectivenessCheck(checkId)
	if check == nil {
		return nil, utils.ErrorRecordNotFound
	}
	if d.Closure != nil {
		return nil, invariant("PerformEffectivenessCheck", "deviation is "+string(d.Status))
	}
	if check.Performed() {
		return nil, invariant("PerformEffectivenessCheck", "check was already performed")
	}
	if results == nil {
		return nil, invariant("PerformEffectivenessCheck", "results are required to rate a check")
	}

	now := e.Clock.Now()
	performedAt := now
	if results.PerformedDate != nil {
		performedAt = *results.PerformedDate
	}
	performedBy := results.PerformedBy
	if performedBy == "" {
		performedBy, _ = utils.GetUserNameFromContext(ctx)
	}

	check.PerformedDate = &performedAt
	check.PerformedBy = &performedBy
	check.CriteriaMet = &results.CriteriaMet
	check.ActualValues = results.ActualValues
	check.Observations = utils.NilIfEmpty(results.Observations)

	rating := e.rateCheck(check, results)
	check.EffectivenessRating = &rating

	var events []models.DeviationEvent
	switch rating {
	case models.RatingNotEffective:
		check.FollowUpRequired = true
		check.FollowUpActions = append(check.FollowUpActions, models.FollowUpAction{
			Description: reanalysisFollowUp,
			DueDate:     utils.ConvertToDate(performedAt.AddDate(0, 0, reanalysisDueDays)),
		})
		events = append(events, models.DeviationEvent{
			EventType:  models.DeviationEventReanalysis,
			OccurredAt: now,
			Payload: map[string]any{
				"check_id":   check.ID,
				"check_type": check.CheckType,
			},
		})
	case models.RatingPartiallyEffective:
		check.FollowUpRequired = true
		check.FollowUpActions = append(check.FollowUpActions, models.FollowUpAction{
			Description: additionalMeasuresFollowUp,
			DueDate:     utils.ConvertToDate(performedAt.AddDate(0, 0, additionalMeasuresDueDays)),
		})
	}

	// Auto-closure: every active check performed and effective. Behind
	// STRICT_CAPA_CLOSURE, every corrective action must also be verified.
	if d.AllChecksPerformed() && d.AllChecksEffective() &&
		(!e.StrictClosure || allActionsVerified(d)) {
		d.Closure = &models.DeviationClosure{
			ClosedBy:    performedBy,
			ClosedAt:    now,
			Summary:     "all effectiveness checks passed",
			FinalStatus: models.ClosureStatusResolved,
		}
		events = append(events, models.DeviationEvent{
			EventType:  models.DeviationEventClosed,
			OccurredAt: now,
			Payload:    map[string]any{"deviation_number": d.DeviationNumber},
		})
	}

	d.Status = DeriveStatus(d)
	if err := e.Repo.Save(ctx, d, events...); err != nil {
		config.LogError(e.Logger, "effectivenessEvaluator.go", "PerformEffectivenessCheck", "save deviation", results, err)
		return nil, err
	}
	return d, nil
}

// rateCheck scores a performed check against its success criteria.
//
// With no criteria the reporter's overall judgement decides. Otherwise: all
// criteria count as met when criteria_met is true; when it is false but
// measurements were recorded, a configurable fraction (default half) is
// credited; no measurements at all means nothing can be credited. The
// credited fraction equals PartialCreditRatio, so it only reaches
// partially_effective when the ratio clears the 0.7 threshold.
func (e *Engine) rateCheck(check *models.EffectivenessCheck, results *models.CheckResults) models.EffectivenessRating {
	n := len(check.SuccessCriteria)
	if n == 0 {
		if results.CriteriaMet {
			return models.RatingEffective
		}
		return models.RatingNotEffective
	}

	var met float64
	if results.CriteriaMet {
		met = float64(n)
	} else if len(results.ActualValues) > 0 {
		met = e.PartialCreditRatio * float64(n)
	}

	successRate := met / float64(n)
	switch {
	case successRate == 1.0:
		return models.RatingEffective
	case successRate >= 0.7:
		return models.RatingPartiallyEffective
	default:
		return models.RatingNotEffective
	}
}
