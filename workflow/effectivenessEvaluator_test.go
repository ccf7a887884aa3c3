package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

func checkOfType(t *testing.T, d *models.Deviation, ct models.CheckType) *models.EffectivenessCheck {
	t.Helper()
	for i := range d.EffectivenessChecks {
		if d.EffectivenessChecks[i].CheckType == ct {
			return &d.EffectivenessChecks[i]
		}
	}
	t.Fatalf("no %s check on deviation %d", ct, d.ID)
	return nil
}

// Anchor scenario continued: performing the 2025-02-08 immediate check with
// criteria_met=false and no recorded measurements rates it not_effective,
// requires a re-analysis follow-up due 2025-02-15 and drops the deviation
// back to investigation with an escalation event.
func TestEvaluator_FailedCheckForcesReanalysis(t *testing.T) {
	e, repo := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())
	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	immediate := checkOfType(t, got, models.CheckTypeImmediate)

	performed := date(2025, 2, 8)
	updated, err := e.PerformEffectivenessCheck(testCtx(), immediate.ID, &models.CheckResults{
		CriteriaMet:   false,
		ActualValues:  map[string]string{},
		Observations:  "strength still below class on retest",
		PerformedDate: &performed,
	})
	if err != nil {
		t.Fatalf("PerformEffectivenessCheck: %v", err)
	}

	rated := checkOfType(t, updated, models.CheckTypeImmediate)
	if rated.EffectivenessRating == nil {
		t.Fatal("check was not rated")
	}
	if *rated.EffectivenessRating != models.RatingNotEffective {
		t.Fatalf("rating = %s, want not_effective", *rated.EffectivenessRating)
	}
	if !rated.FollowUpRequired {
		t.Fatal("follow-up must be required")
	}
	if len(rated.FollowUpActions) != 1 {
		t.Fatalf("follow-up count = %d, want 1", len(rated.FollowUpActions))
	}
	fu := rated.FollowUpActions[0]
	if fu.Description != reanalysisFollowUp {
		t.Errorf("follow-up = %q, want the re-analysis follow-up", fu.Description)
	}
	if !fu.DueDate.Equal(date(2025, 2, 15)) {
		t.Errorf("follow-up due %s, want 2025-02-15", fu.DueDate.Format("2006-01-02"))
	}
	if updated.Status != models.DeviationStatusInvestigation {
		t.Fatalf("status = %s, want investigation", updated.Status)
	}

	last := repo.Events[len(repo.Events)-1]
	if last.EventType != models.DeviationEventReanalysis {
		t.Fatalf("last event = %s, want deviation_reanalysis_required", last.EventType)
	}
}

// Partial credit alone cannot clear the 0.7 threshold at the default ratio
// of 0.5: the credited fraction equals the ratio itself, regardless of how
// many criteria the check carries.
func TestEvaluator_DefaultPartialCreditIsBelowThreshold(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))

	check := &models.EffectivenessCheck{
		SuccessCriteria: []models.SuccessCriterion{
			{Description: "no recurrence of the same nonconformance"},
			{Description: "process capability restored"},
		},
	}
	rating := e.rateCheck(check, &models.CheckResults{
		CriteriaMet:  false,
		ActualValues: map[string]string{"cpk": "1.21"},
	})
	if rating != models.RatingNotEffective {
		t.Fatalf("rating = %s, want not_effective at the default partial-credit ratio", rating)
	}
}

func TestEvaluator_RecordedMeasurementsEarnPartialCredit(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	// The credited fraction must reach the partially_effective threshold for
	// this path to differ from a plain failure.
	e.PartialCreditRatio = 0.7
	d := mustCreate(t, e, validInput())
	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	immediate := checkOfType(t, got, models.CheckTypeImmediate)

	performed := date(2025, 2, 8)
	updated, err := e.PerformEffectivenessCheck(testCtx(), immediate.ID, &models.CheckResults{
		CriteriaMet:   false,
		ActualValues:  map[string]string{"cpk": "1.21"},
		PerformedDate: &performed,
	})
	if err != nil {
		t.Fatalf("PerformEffectivenessCheck: %v", err)
	}

	rated := checkOfType(t, updated, models.CheckTypeImmediate)
	if rated.EffectivenessRating == nil {
		t.Fatal("check was not rated")
	}
	if *rated.EffectivenessRating != models.RatingPartiallyEffective {
		t.Fatalf("rating = %s, want partially_effective", *rated.EffectivenessRating)
	}
	if rated.Observations != nil {
		t.Errorf("observations = %v, want nil when none were recorded", *rated.Observations)
	}
	if len(rated.FollowUpActions) != 1 || rated.FollowUpActions[0].Description != additionalMeasuresFollowUp {
		t.Fatalf("follow-up = %+v, want additional-measures follow-up", rated.FollowUpActions)
	}
	if !rated.FollowUpActions[0].DueDate.Equal(date(2025, 2, 22)) {
		t.Errorf("follow-up due %s, want 2025-02-22 (+14d)", rated.FollowUpActions[0].DueDate.Format("2006-01-02"))
	}
	// Partial success does not restart the investigation.
	if updated.Status != models.DeviationStatusCorrectiveAction {
		t.Fatalf("status = %s, want corrective_action", updated.Status)
	}
}

func TestEvaluator_NoCriteriaFallsBackToOverallJudgement(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))

	pass := e.rateCheck(&models.EffectivenessCheck{}, &models.CheckResults{CriteriaMet: true})
	if pass != models.RatingEffective {
		t.Errorf("criteria_met=true without criteria = %s, want effective", pass)
	}
	fail := e.rateCheck(&models.EffectivenessCheck{}, &models.CheckResults{CriteriaMet: false})
	if fail != models.RatingNotEffective {
		t.Errorf("criteria_met=false without criteria = %s, want not_effective", fail)
	}
}

func TestEvaluator_AllChecksEffectiveClosesDeviation(t *testing.T) {
	e, repo := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())
	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	for _, ct := range []models.CheckType{models.CheckTypeImmediate, models.CheckTypeShortTerm, models.CheckTypeLongTerm} {
		check := checkOfType(t, got, ct)
		updated, err := e.PerformEffectivenessCheck(testCtx(), check.ID, &models.CheckResults{
			CriteriaMet:  true,
			ActualValues: map[string]string{"cpk": "1.41"},
		})
		if err != nil {
			t.Fatalf("PerformEffectivenessCheck(%s): %v", ct, err)
		}
		got = updated
	}

	if got.Status != models.DeviationStatusClosed {
		t.Fatalf("status = %s, want closed", got.Status)
	}
	if got.Closure == nil || got.Closure.FinalStatus != models.ClosureStatusResolved {
		t.Fatalf("closure = %+v, want resolved", got.Closure)
	}

	last := repo.Events[len(repo.Events)-1]
	if last.EventType != models.DeviationEventClosed {
		t.Fatalf("last event = %s, want deviation_closed", last.EventType)
	}
}

func TestEvaluator_StrictClosureWaitsForVerification(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	e.StrictClosure = true
	d := mustCreate(t, e, validInput())
	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	for _, ct := range []models.CheckType{models.CheckTypeImmediate, models.CheckTypeShortTerm, models.CheckTypeLongTerm} {
		check := checkOfType(t, got, ct)
		updated, err := e.PerformEffectivenessCheck(testCtx(), check.ID, &models.CheckResults{CriteriaMet: true})
		if err != nil {
			t.Fatalf("PerformEffectivenessCheck(%s): %v", ct, err)
		}
		got = updated
	}

	if got.Closure != nil {
		t.Fatal("strict closure must wait for action verification")
	}
	if got.Status == models.DeviationStatusClosed {
		t.Fatalf("status = %s, must not be closed yet", got.Status)
	}
}

func TestEvaluator_CheckCannotBePerformedTwice(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())
	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	check := checkOfType(t, got, models.CheckTypeImmediate)

	if _, err := e.PerformEffectivenessCheck(testCtx(), check.ID, &models.CheckResults{CriteriaMet: true}); err != nil {
		t.Fatalf("first perform: %v", err)
	}
	_, err := e.PerformEffectivenessCheck(testCtx(), check.ID, &models.CheckResults{CriteriaMet: true})
	if _, ok := err.(*InvariantViolationError); !ok {
		t.Fatalf("expected InvariantViolationError, got %v", err)
	}
}

func TestEvaluator_ReanalysisSupersedesFailedCheck(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())
	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	immediate := checkOfType(t, got, models.CheckTypeImmediate)

	performed := date(2025, 2, 8)
	if _, err := e.PerformEffectivenessCheck(testCtx(), immediate.ID, &models.CheckResults{
		CriteriaMet:   false,
		PerformedDate: &performed,
	}); err != nil {
		t.Fatalf("PerformEffectivenessCheck: %v", err)
	}

	// New analysis after the failed check supersedes it; the workflow
	// restarts with alternative measures.
	e.Clock = fixedClock{now: date(2025, 2, 16)}
	updated, err := e.PerformRootCauseAnalysis(testCtx(), d.ID, &models.NewRootCauseAnalysis{
		Method:    models.RootCauseMethodFishbone,
		RootCause: "mix design itself marginal for the load class",
		FishboneCategories: map[string][]string{
			"material": {"aggregate grading at spec limit"},
		},
	})
	if err != nil {
		t.Fatalf("PerformRootCauseAnalysis: %v", err)
	}
	if updated.Status != models.DeviationStatusInvestigation {
		t.Fatalf("status = %s, want investigation", updated.Status)
	}

	// The superseded failure no longer pins the status once new work lands.
	action, err := e.AddCorrectiveAction(testCtx(), d.ID, &models.NewCorrectiveAction{
		Description:      "adjust mix design, increase binder content",
		Responsible:      "lab.lead",
		PlannedStartDate: date(2025, 2, 17),
		PlannedEndDate:   date(2025, 3, 1),
	})
	if err != nil {
		t.Fatalf("AddCorrectiveAction: %v", err)
	}
	if action.ID == 0 {
		t.Fatal("replacement action not persisted")
	}
	got, _ = e.GetDeviation(testCtx(), d.ID)
	if got.Status != models.DeviationStatusCorrectiveAction {
		t.Fatalf("status = %s, want corrective_action", got.Status)
	}
}
