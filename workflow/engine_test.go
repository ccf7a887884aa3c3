package workflow

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the workflow
// semantics (validation, derivation, scheduling, evaluation) against the
// in-memory repository, which enforces the same version check as the GORM
// repository. Full DB integration tests need MySQL.

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testCtx() context.Context {
	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, "biz-1")
	ctx = utils.SetUserNameInContext(ctx, "qm.lead")
	ctx = utils.SetUserIdInContext(ctx, 7)
	ctx = utils.SetCorrelationIdInContext(ctx, "corr-1")
	return ctx
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestEngine(now time.Time) (*Engine, *MemoryDeviationRepository) {
	repo := NewMemoryDeviationRepository()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Engine{
		Repo:               repo,
		Clock:              fixedClock{now: now},
		Logger:             logger,
		PartialCreditRatio: 0.5,
	}, repo
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func validInput() *models.NewDeviation {
	return &models.NewDeviation{
		Title:        "Compressive strength below class",
		Description:  "CT-C25-F4 batch failed 28d strength test",
		Type:         models.DeviationTypeProcess,
		Severity:     models.DeviationSeverityMajor,
		Source:       "internal_audit",
		DiscoveredBy: "site.engineer",
		RecipeId:     intPtr(12),
	}
}

func mustCreate(t *testing.T, e *Engine, input *models.NewDeviation) *models.Deviation {
	t.Helper()
	d, err := e.CreateDeviation(testCtx(), input)
	if err != nil {
		t.Fatalf("CreateDeviation: %v", err)
	}
	return d
}

func TestCreateDeviation_ReportsAllViolationsAtOnce(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))

	_, err := e.CreateDeviation(testCtx(), &models.NewDeviation{
		Type:     "bogus",
		Severity: models.DeviationSeverityCritical,
	})
	var verr *ValidationError
	ok := false
	if verr, ok = err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"title", "description", "discovered_by", "type must be", "immediate containment"}
	for _, w := range want {
		found := false
		for _, msg := range verr.Errors {
			if strings.Contains(msg, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing violation containing %q in %v", w, verr.Errors)
		}
	}
	if len(verr.Errors) < 5 {
		t.Errorf("expected at least 5 violations, got %d: %v", len(verr.Errors), verr.Errors)
	}
}

func TestCreateDeviation_CriticalRequiresImmediateAction(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))

	input := validInput()
	input.Severity = models.DeviationSeverityCritical

	if _, err := e.CreateDeviation(testCtx(), input); err == nil {
		t.Fatal("expected rejection without immediate action")
	}

	input.ImmediateAction = strPtr("block affected batch, stop line 2")
	d := mustCreate(t, e, input)
	if d.Status != models.DeviationStatusOpen {
		t.Fatalf("status = %s, want open", d.Status)
	}
}

func TestCreateDeviation_AssignsSequentialNumbers(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))

	first := mustCreate(t, e, validInput())
	second := mustCreate(t, e, validInput())

	if first.DeviationNumber != "DEV-2025-0001" {
		t.Errorf("first number = %s, want DEV-2025-0001", first.DeviationNumber)
	}
	if second.DeviationNumber != "DEV-2025-0002" {
		t.Errorf("second number = %s, want DEV-2025-0002", second.DeviationNumber)
	}
	if first.Version != 0 {
		t.Errorf("fresh deviation version = %d, want 0", first.Version)
	}
}

func TestCreateDeviation_ProductWithoutBatchWarns(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))

	result := e.ValidateDeviation(&models.NewDeviation{
		Title:        "Off-spec surface finish",
		Description:  "Visible pores on screed sample",
		Type:         models.DeviationTypeProduct,
		Severity:     models.DeviationSeverityMinor,
		DiscoveredBy: "lab.tech",
	})
	if !result.Valid {
		t.Fatalf("expected valid input, got errors %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected batch traceability warning")
	}
}

func TestCreateDeviation_CriticalEmitsEscalationEvent(t *testing.T) {
	e, repo := newTestEngine(date(2025, 1, 10))

	input := validInput()
	input.Severity = models.DeviationSeverityCritical
	input.ImmediateAction = strPtr("quarantine batch")
	mustCreate(t, e, input)

	var got []models.DeviationEventType
	for _, ev := range repo.Events {
		got = append(got, ev.EventType)
	}
	if len(got) != 2 || got[0] != models.DeviationEventCreated || got[1] != models.DeviationEventEscalated {
		t.Fatalf("events = %v, want [deviation_created deviation_escalated]", got)
	}
}

func TestPerformRootCauseAnalysis_MovesToInvestigation(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	updated, err := e.PerformRootCauseAnalysis(testCtx(), d.ID, &models.NewRootCauseAnalysis{
		Method:    models.RootCauseMethodFiveWhy,
		RootCause: "dosing valve drift after maintenance",
		FiveWhys:  []string{"strength low", "w/c ratio high", "valve overdosing", "calibration skipped", "maintenance checklist incomplete"},
	})
	if err != nil {
		t.Fatalf("PerformRootCauseAnalysis: %v", err)
	}
	if updated.Status != models.DeviationStatusInvestigation {
		t.Fatalf("status = %s, want investigation", updated.Status)
	}
	if updated.RootCauseAnalysis == nil || updated.RootCauseAnalysis.AnalysisDate != date(2025, 1, 10) {
		t.Fatal("analysis date not pinned to clock")
	}
}

func TestPerformRootCauseAnalysis_FiveWhyNeedsChain(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	_, err := e.PerformRootCauseAnalysis(testCtx(), d.ID, &models.NewRootCauseAnalysis{
		Method:    models.RootCauseMethodFiveWhy,
		RootCause: "unknown",
	})
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdateDeviation_RefusedWhenClosed(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	if _, err := e.RejectDeviation(testCtx(), d.ID, "duplicate of DEV-2025-0001"); err != nil {
		t.Fatalf("RejectDeviation: %v", err)
	}

	_, err := e.UpdateDeviation(testCtx(), d.ID, &models.UpdateDeviationInput{Title: strPtr("edited")})
	if _, ok := err.(*InvariantViolationError); !ok {
		t.Fatalf("expected InvariantViolationError, got %v", err)
	}
}

func TestUpdateDeviation_RaisingToCriticalNeedsImmediateAction(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	crit := models.DeviationSeverityCritical
	_, err := e.UpdateDeviation(testCtx(), d.ID, &models.UpdateDeviationInput{Severity: &crit})
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	updated, err := e.UpdateDeviation(testCtx(), d.ID, &models.UpdateDeviationInput{
		Severity:        &crit,
		ImmediateAction: strPtr("stop affected deliveries"),
	})
	if err != nil {
		t.Fatalf("UpdateDeviation: %v", err)
	}
	if updated.Severity != crit {
		t.Fatalf("severity = %s, want critical", updated.Severity)
	}
}

func TestRejectDeviation_OnlyBeforeCorrectiveWork(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	addAction(t, e, d.ID)

	_, err := e.RejectDeviation(testCtx(), d.ID, "not a real deviation")
	if _, ok := err.(*InvariantViolationError); !ok {
		t.Fatalf("expected InvariantViolationError, got %v", err)
	}
}

func TestStaleSave_IsRefusedAndNeverRetried(t *testing.T) {
	e, repo := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	ctx := testCtx()
	copy1, _ := repo.Get(ctx, d.ID)
	copy2, _ := repo.Get(ctx, d.ID)

	copy1.Title = "writer one"
	if err := repo.Save(ctx, copy1); err != nil {
		t.Fatalf("first save: %v", err)
	}

	copy2.Title = "writer two"
	if err := repo.Save(ctx, copy2); err != utils.ErrorStaleRecord {
		t.Fatalf("second save err = %v, want ErrorStaleRecord", err)
	}

	// The losing write must not have landed.
	stored, _ := repo.Get(ctx, d.ID)
	if stored.Title != "writer one" {
		t.Fatalf("stored title = %q, want the first writer's", stored.Title)
	}
}

func TestCreateDeviation_EventCarriesReporterUserId(t *testing.T) {
	e, repo := newTestEngine(date(2025, 1, 10))
	mustCreate(t, e, validInput())

	if len(repo.Events) == 0 {
		t.Fatal("no events recorded")
	}
	payload, ok := repo.Events[0].Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload is %T, want map", repo.Events[0].Payload)
	}
	if got, _ := payload["reported_by_user_id"].(int); got != 7 {
		t.Fatalf("reported_by_user_id = %v, want 7", payload["reported_by_user_id"])
	}
}

func TestTenantIsolation(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	otherTenant := utils.SetBusinessIdInContext(context.Background(), "biz-2")
	if _, err := e.GetDeviation(otherTenant, d.ID); err != utils.ErrorRecordNotFound {
		t.Fatalf("cross-tenant read err = %v, want ErrorRecordNotFound", err)
	}
}

// addAction records a standard corrective action: planned 2025-01-15 to
// 2025-02-01, the anchor dates for the scheduling assertions.
func addAction(t *testing.T, e *Engine, deviationId int) *models.CorrectiveAction {
	t.Helper()
	action, err := e.AddCorrectiveAction(testCtx(), deviationId, &models.NewCorrectiveAction{
		Description:      "recalibrate dosing valve and update maintenance checklist",
		Responsible:      "maintenance.lead",
		PlannedStartDate: date(2025, 1, 15),
		PlannedEndDate:   date(2025, 2, 1),
		EstimatedCost:    decimal.NewFromInt(1200),
	})
	if err != nil {
		t.Fatalf("AddCorrectiveAction: %v", err)
	}
	return action
}
