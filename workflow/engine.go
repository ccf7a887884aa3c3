package workflow

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// Engine runs the CAPA workflow: deviation intake, root-cause analysis,
// corrective/preventive actions, effectiveness checking and closure. All
// state transitions go through DeriveStatus; all writes go through the
// repository's optimistic version check. The engine holds no global state so
// tests construct it with a pinned clock and an in-memory repository.
type Engine struct {
	Repo   DeviationRepository
	Clock  Clock
	Logger *logrus.Logger

	// PartialCreditRatio is the criteria fraction credited when a check
	// misses its criteria but recorded measurements (see rateCheck).
	PartialCreditRatio float64

	// StrictClosure additionally requires every corrective action to be
	// verified before auto-closure.
	StrictClosure bool
}

func NewEngine(repo DeviationRepository, clock Clock, logger *logrus.Logger) *Engine {
	return &Engine{
		Repo:               repo,
		Clock:              clock,
		Logger:             logger,
		PartialCreditRatio: config.PartialCreditRatio(),
		StrictClosure:      config.StrictCAPAClosure(),
	}
}

var ErrMissingBusinessId = errors.New("missing business id in context")

func (e *Engine) CreateDeviation(ctx context.Context, input *models.NewDeviation) (*models.Deviation, error) {
	result := e.ValidateDeviation(input)
	if !result.Valid {
		return nil, &ValidationError{Errors: result.Errors, Warnings: result.Warnings}
	}

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, ErrMissingBusinessId
	}
	actor, _ := utils.GetUserNameFromContext(ctx)

	now := e.Clock.Now()
	discovered := now
	if input.DiscoveredDate != nil {
		discovered = *input.DiscoveredDate
	}

	d := &models.Deviation{
		BusinessId:      businessId,
		Title:           input.Title,
		Description:     input.Description,
		Type:            input.Type,
		Severity:        input.Severity,
		Source:          input.Source,
		DiscoveredDate:  discovered,
		DiscoveredBy:    input.DiscoveredBy,
		RecipeId:        input.RecipeId,
		BatchId:         input.BatchId,
		TestReportId:    input.TestReportId,
		CalibrationId:   input.CalibrationId,
		ImmediateAction: input.ImmediateAction,
		CreatedBy:       actor,
		CreatedAt:       now,
	}
	d.Status = DeriveStatus(d)

	payload := map[string]any{
		"title":    d.Title,
		"type":     d.Type,
		"severity": d.Severity,
	}
	// The notification service resolves the reporter by id, not by name.
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		payload["reported_by_user_id"] = userId
	}
	events := []models.DeviationEvent{{
		EventType:  models.DeviationEventCreated,
		OccurredAt: now,
		Payload:    payload,
	}}
	if d.Severity == models.DeviationSeverityCritical {
		events = append(events, models.DeviationEvent{
			EventType:  models.DeviationEventEscalated,
			OccurredAt: now,
			Payload:    map[string]any{"reason": "critical deviation reported"},
		})
	}

	if err := e.Repo.Create(ctx, d, events...); err != nil {
		config.LogError(e.Logger, "engine.go", "CreateDeviation", "create deviation", input, err)
		return nil, err
	}

	// Advisory recurrence scan. Matches are logged for the QM dashboard,
	// never blocking: reporting a repeat problem must stay frictionless.
	if matches, err := e.CheckRecurrence(ctx, input, d.ID); err == nil && len(matches) > 0 {
		e.Logger.WithFields(logrus.Fields{
			"deviation_id":     d.ID,
			"deviation_number": d.DeviationNumber,
			"recurrence_count": len(matches),
		}).Warn("possible recurrence of an earlier deviation")
	}

	return d, nil
}

func (e *Engine) GetDeviation(ctx context.Context, id int) (*models.Deviation, error) {
	return e.Repo.Get(ctx, id)
}

func (e *Engine) ListDeviations(ctx context.Context, filter models.DeviationFilter) ([]*models.Deviation, error) {
	return e.Repo.List(ctx, filter)
}

// UpdateDeviation applies a partial update to classification and provenance.
// The merged record must still pass full validation, so e.g. raising severity
// to critical without an immediate action is refused with every violation
// listed.
func (e *Engine) UpdateDeviation(ctx context.Context, id int, input *models.UpdateDeviationInput) (*models.Deviation, error) {
	d, err := e.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("UpdateDeviation", "deviation is "+string(d.Status))
	}

	if input.Title != nil {
		d.Title = *input.Title
	}
	if input.Description != nil {
		d.Description = *input.Description
	}
	if input.Type != nil {
		d.Type = *input.Type
	}
	if input.Severity != nil {
		d.Severity = *input.Severity
	}
	if input.Source != nil {
		d.Source = *input.Source
	}
	if input.RecipeId != nil {
		d.RecipeId = input.RecipeId
	}
	if input.BatchId != nil {
		d.BatchId = input.BatchId
	}
	if input.TestReportId != nil {
		d.TestReportId = input.TestReportId
	}
	if input.CalibrationId != nil {
		d.CalibrationId = input.CalibrationId
	}
	if input.ImmediateAction != nil {
		d.ImmediateAction = input.ImmediateAction
	}

	result := e.ValidateDeviation(&models.NewDeviation{
		Title:           d.Title,
		Description:     d.Description,
		Type:            d.Type,
		Severity:        d.Severity,
		Source:          d.Source,
		DiscoveredDate:  &d.DiscoveredDate,
		DiscoveredBy:    d.DiscoveredBy,
		RecipeId:        d.RecipeId,
		BatchId:         d.BatchId,
		ImmediateAction: d.ImmediateAction,
	})
	if !result.Valid {
		return nil, &ValidationError{Errors: result.Errors, Warnings: result.Warnings}
	}

	d.Status = DeriveStatus(d)
	if err := e.Repo.Save(ctx, d); err != nil {
		config.LogError(e.Logger, "engine.go", "UpdateDeviation", "save deviation", input, err)
		return nil, err
	}
	return d, nil
}

// RejectDeviation discards a report that turned out not to be a real
// nonconformance. Only possible before corrective work started.
func (e *Engine) RejectDeviation(ctx context.Context, id int, reason string) (*models.Deviation, error) {
	d, err := e.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("RejectDeviation", "deviation is "+string(d.Status))
	}
	if d.Status != models.DeviationStatusOpen && d.Status != models.DeviationStatusInvestigation {
		return nil, invariant("RejectDeviation", "deviations with corrective work in progress cannot be rejected")
	}

	actor, _ := utils.GetUserNameFromContext(ctx)
	now := e.Clock.Now()

	d.Closure = &models.DeviationClosure{
		ClosedBy:    actor,
		ClosedAt:    now,
		Summary:     reason,
		FinalStatus: models.ClosureStatusRejected,
	}
	d.Status = DeriveStatus(d)

	event := models.DeviationEvent{
		EventType:  models.DeviationEventRejected,
		OccurredAt: now,
		Payload:    map[string]any{"reason": reason},
	}
	if err := e.Repo.Save(ctx, d, event); err != nil {
		config.LogError(e.Logger, "engine.go", "RejectDeviation", "save deviation", id, err)
		return nil, err
	}
	return d, nil
}
