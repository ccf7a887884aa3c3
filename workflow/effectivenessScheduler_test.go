package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

// Anchor scenario: major process deviation, corrective action planned to end
// 2025-02-01. Expected generated checks: measurement on 2025-02-08 (+7d),
// 2025-03-03 (+30d) and 2025-05-02 (+90d, major gets the long-term check).
func TestScheduler_MajorProcessDeviationGetsThreeMeasurementChecks(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	addAction(t, e, d.ID)

	got, err := e.GetDeviation(testCtx(), d.ID)
	if err != nil {
		t.Fatalf("GetDeviation: %v", err)
	}
	if got.Status != models.DeviationStatusCorrectiveAction {
		t.Fatalf("status = %s, want corrective_action", got.Status)
	}
	if len(got.EffectivenessChecks) != 3 {
		t.Fatalf("check count = %d, want 3", len(got.EffectivenessChecks))
	}

	wantDates := map[models.CheckType]time.Time{
		models.CheckTypeImmediate: date(2025, 2, 8),
		models.CheckTypeShortTerm: date(2025, 3, 3),
		models.CheckTypeLongTerm:  date(2025, 5, 2),
	}
	for _, c := range got.EffectivenessChecks {
		if c.CheckMethod != models.CheckMethodMeasurement {
			t.Errorf("%s check method = %s, want measurement", c.CheckType, c.CheckMethod)
		}
		want, ok := wantDates[c.CheckType]
		if !ok {
			t.Errorf("unexpected check type %s", c.CheckType)
			continue
		}
		if !c.PlannedDate.Equal(want) {
			t.Errorf("%s check planned %s, want %s", c.CheckType, c.PlannedDate.Format("2006-01-02"), want.Format("2006-01-02"))
		}
		if c.CorrectiveActionId == 0 {
			t.Errorf("%s check not linked to its action", c.CheckType)
		}
	}
}

func TestScheduler_MinorDeviationSkipsLongTermCheck(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	input := validInput()
	input.Severity = models.DeviationSeverityMinor
	d := mustCreate(t, e, input)

	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	if len(got.EffectivenessChecks) != 2 {
		t.Fatalf("check count = %d, want 2", len(got.EffectivenessChecks))
	}
	for _, c := range got.EffectivenessChecks {
		if c.CheckType == models.CheckTypeLongTerm {
			t.Fatal("minor deviation must not get a long-term check")
		}
	}
}

func TestScheduler_CheckMethodFollowsDeviationType(t *testing.T) {
	cases := []struct {
		deviationType models.DeviationType
		want          models.CheckMethod
	}{
		{models.DeviationTypeProduct, models.CheckMethodTest},
		{models.DeviationTypeProcess, models.CheckMethodMeasurement},
		{models.DeviationTypeCalibration, models.CheckMethodMeasurement},
		{models.DeviationTypeSystem, models.CheckMethodAudit},
		{models.DeviationTypeDocumentation, models.CheckMethodDocumentReview},
	}
	for _, tc := range cases {
		if got := checkMethodForType(tc.deviationType); got != tc.want {
			t.Errorf("checkMethodForType(%s) = %s, want %s", tc.deviationType, got, tc.want)
		}
	}
}

func TestScheduler_CriteriaFollowClassification(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput()) // process deviation
	addAction(t, e, d.ID)

	got, _ := e.GetDeviation(testCtx(), d.ID)
	for _, c := range got.EffectivenessChecks {
		if len(c.SuccessCriteria) == 0 {
			t.Fatalf("%s check has no criteria", c.CheckType)
		}
		first := c.SuccessCriteria[0]
		if first.Description != "no recurrence of the same nonconformance" || first.MeasurableTarget != "0 occurrences" {
			t.Errorf("%s check first criterion = %+v, want the no-recurrence criterion", c.CheckType, first)
		}

		foundCpk := false
		foundSustained := false
		for _, sc := range c.SuccessCriteria {
			if sc.MeasurableTarget == "process capability Cpk ≥ 1.33" && sc.Tolerance == "≥ 1.0" {
				foundCpk = true
			}
			if sc.Description == "sustained improvement over 3 months" {
				foundSustained = true
			}
		}
		if !foundCpk {
			t.Errorf("%s check missing process capability criterion", c.CheckType)
		}
		if foundSustained != (c.CheckType == models.CheckTypeLongTerm) {
			t.Errorf("%s check sustained-improvement criterion presence = %v", c.CheckType, foundSustained)
		}
	}
}

func TestScheduler_ActionAndChecksLandAtomically(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	action := addAction(t, e, d.ID)
	if action.ID == 0 {
		t.Fatal("action was not assigned an id")
	}

	got, _ := e.GetDeviation(testCtx(), d.ID)
	if len(got.CorrectiveActions) != 1 || len(got.EffectivenessChecks) != 3 {
		t.Fatalf("persisted %d actions / %d checks, want 1 / 3",
			len(got.CorrectiveActions), len(got.EffectivenessChecks))
	}
	for _, c := range got.EffectivenessChecks {
		if c.CorrectiveActionId != got.CorrectiveActions[0].ID {
			t.Fatalf("check linked to action %d, want %d", c.CorrectiveActionId, got.CorrectiveActions[0].ID)
		}
	}
}

func TestScheduleEffectivenessCheck_ManualSupplementaryCheck(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())
	action := addAction(t, e, d.ID)

	check, err := e.ScheduleEffectivenessCheck(testCtx(), d.ID, &models.NewEffectivenessCheck{
		CorrectiveActionId: action.ID,
		CheckType:          models.CheckTypeLongTerm,
		CheckMethod:        models.CheckMethodCustomerFeedback,
		PlannedDate:        date(2025, 6, 1),
		SuccessCriteria: []models.NewSuccessCriterion{
			{Description: "no customer complaints on affected deliveries"},
		},
	})
	if err != nil {
		t.Fatalf("ScheduleEffectivenessCheck: %v", err)
	}
	if check.CheckMethod != models.CheckMethodCustomerFeedback {
		t.Fatalf("method = %s, want customer_feedback", check.CheckMethod)
	}

	got, _ := e.GetDeviation(testCtx(), d.ID)
	if len(got.EffectivenessChecks) != 4 {
		t.Fatalf("check count = %d, want 4", len(got.EffectivenessChecks))
	}
}

// Check horizons are calendar dates even when the action's planned end
// carries a time of day (the web client sends full timestamps).
func TestScheduler_ChecksLandOnCalendarDates(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	end := time.Date(2025, 2, 1, 15, 45, 0, 0, time.UTC)
	if _, err := e.AddCorrectiveAction(testCtx(), d.ID, &models.NewCorrectiveAction{
		Description:      "recalibrate dosing valve",
		Responsible:      "maintenance.lead",
		PlannedStartDate: date(2025, 1, 15),
		PlannedEndDate:   end,
	}); err != nil {
		t.Fatalf("AddCorrectiveAction: %v", err)
	}

	got, _ := e.GetDeviation(testCtx(), d.ID)
	for i := range got.EffectivenessChecks {
		c := &got.EffectivenessChecks[i]
		if !c.PlannedDate.Equal(date(c.PlannedDate.Year(), c.PlannedDate.Month(), c.PlannedDate.Day())) {
			t.Errorf("%s check planned at %s, want midnight", c.CheckType, c.PlannedDate)
		}
	}
	immediate := checkOfType(t, got, models.CheckTypeImmediate)
	if !immediate.PlannedDate.Equal(date(2025, 2, 8)) {
		t.Errorf("immediate check planned %s, want 2025-02-08", immediate.PlannedDate.Format("2006-01-02"))
	}
}
