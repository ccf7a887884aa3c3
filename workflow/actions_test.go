package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

func TestAddCorrectiveAction_ValidatesInput(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	_, err := e.AddCorrectiveAction(testCtx(), d.ID, &models.NewCorrectiveAction{
		Responsible:      "maintenance.lead",
		PlannedStartDate: date(2025, 2, 1),
		PlannedEndDate:   date(2025, 1, 15),
		ResponsiblePhone: "not-a-number",
	})
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 3 {
		t.Fatalf("violations = %v, want description, date order and phone", verr.Errors)
	}
}

func TestAddCorrectiveAction_AcceptsValidPhone(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	_, err := e.AddCorrectiveAction(testCtx(), d.ID, &models.NewCorrectiveAction{
		Description:      "swap dosing valve",
		Responsible:      "maintenance.lead",
		ResponsiblePhone: "+4915123456789",
		PlannedStartDate: date(2025, 1, 15),
		PlannedEndDate:   date(2025, 2, 1),
	})
	if err != nil {
		t.Fatalf("AddCorrectiveAction: %v", err)
	}
}

func TestAddPreventiveAction_ComputesRiskLevel(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	action, err := e.AddPreventiveAction(testCtx(), d.ID, &models.NewPreventiveAction{
		Description:      "add valve calibration to quarterly maintenance plan",
		Responsible:      "qm.lead",
		PlannedStartDate: date(2025, 2, 1),
		PlannedEndDate:   date(2025, 3, 1),
		Probability:      4,
		Impact:           4,
	})
	if err != nil {
		t.Fatalf("AddPreventiveAction: %v", err)
	}
	if action.RiskLevel != models.RiskLevelHigh {
		t.Fatalf("risk level = %s, want high (4x4=16)", action.RiskLevel)
	}

	// Preventive actions never trigger check scheduling.
	got, _ := e.GetDeviation(testCtx(), d.ID)
	if len(got.EffectivenessChecks) != 0 {
		t.Fatalf("check count = %d, want 0", len(got.EffectivenessChecks))
	}
}

func TestAddPreventiveAction_RiskScaleBounds(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	_, err := e.AddPreventiveAction(testCtx(), d.ID, &models.NewPreventiveAction{
		Description:      "x",
		Responsible:      "y",
		PlannedStartDate: date(2025, 2, 1),
		PlannedEndDate:   date(2025, 3, 1),
		Probability:      0,
		Impact:           6,
	})
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 2 {
		t.Fatalf("violations = %v, want probability and impact bounds", verr.Errors)
	}
}

func TestUpdateCorrectiveActionStatus_HappyPath(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())
	action := addAction(t, e, d.ID)

	steps := []models.ActionStatus{
		models.ActionStatusInProgress,
		models.ActionStatusCompleted,
		models.ActionStatusVerified,
	}
	var updated *models.Deviation
	var err error
	for _, s := range steps {
		updated, err = e.UpdateCorrectiveActionStatus(testCtx(), d.ID, action.ID, &models.UpdateActionStatusInput{Status: s})
		if err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}

	got := updated.FindCorrectiveAction(action.ID)
	if got.ActualStartDate == nil || got.ActualEndDate == nil {
		t.Fatal("actual dates must be stamped on start and completion")
	}
	if got.VerifiedBy == nil || *got.VerifiedBy != "qm.lead" {
		t.Fatalf("verified_by = %v, want qm.lead from context", got.VerifiedBy)
	}

	// The only action is verified and checks are pending.
	if updated.Status != models.DeviationStatusEffectivenessCheck {
		t.Fatalf("status = %s, want effectiveness_check", updated.Status)
	}
}

func TestUpdateCorrectiveActionStatus_IllegalTransition(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())
	action := addAction(t, e, d.ID)

	_, err := e.UpdateCorrectiveActionStatus(testCtx(), d.ID, action.ID, &models.UpdateActionStatusInput{
		Status: models.ActionStatusVerified,
	})
	if _, ok := err.(*InvariantViolationError); !ok {
		t.Fatalf("expected InvariantViolationError for planned->verified, got %v", err)
	}
}
