package workflow

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// Phone numbers of responsibles are validated against the tenant's home
// region; the notification service sends SMS reminders for overdue actions.
const defaultPhoneRegion = "DE"

// AddCorrectiveAction records a corrective action and schedules its
// effectiveness checks in the same write. Either both land or neither does;
// an action without its check set would silently drop the verification duty.
func (e *Engine) AddCorrectiveAction(ctx context.Context, deviationId int, input *models.NewCorrectiveAction) (*models.CorrectiveAction, error) {
	d, err := e.Repo.Get(ctx, deviationId)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("AddCorrectiveAction", "deviation is "+string(d.Status))
	}

	var errs []string
	if strings.TrimSpace(input.Description) == "" {
		errs = append(errs, "description is required")
	}
	if strings.TrimSpace(input.Responsible) == "" {
		errs = append(errs, "responsible is required")
	}
	if input.PlannedEndDate.Before(input.PlannedStartDate) {
		errs = append(errs, "planned_end_date must not be before planned_start_date")
	}
	if input.EstimatedCost.IsNegative() {
		errs = append(errs, "estimated_cost must not be negative")
	}
	if input.ResponsiblePhone != "" {
		if err := utils.ValidatePhoneNumber(input.ResponsiblePhone, defaultPhoneRegion); err != nil {
			errs = append(errs, "responsible_phone is not a valid phone number")
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	// CreatedAt is pinned to the engine clock (not left to the DB) because
	// the derivation orders actions against the analysis date.
	d.CorrectiveActions = append(d.CorrectiveActions, models.CorrectiveAction{
		Description:      input.Description,
		Responsible:      input.Responsible,
		ResponsiblePhone: input.ResponsiblePhone,
		PlannedStartDate: input.PlannedStartDate,
		PlannedEndDate:   input.PlannedEndDate,
		Status:           models.ActionStatusPlanned,
		EstimatedCost:    input.EstimatedCost,
		CreatedAt:        e.Clock.Now(),
	})
	d.EffectivenessChecks = append(d.EffectivenessChecks, e.scheduleChecksForAction(d, input)...)
	d.Status = DeriveStatus(d)

	if err := e.Repo.Save(ctx, d); err != nil {
		config.LogError(e.Logger, "actions.go", "AddCorrectiveAction", "save deviation", input, err)
		return nil, err
	}
	return &d.CorrectiveActions[len(d.CorrectiveActions)-1], nil
}

func (e *Engine) AddPreventiveAction(ctx context.Context, deviationId int, input *models.NewPreventiveAction) (*models.PreventiveAction, error) {
	d, err := e.Repo.Get(ctx, deviationId)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("AddPreventiveAction", "deviation is "+string(d.Status))
	}

	var errs []string
	if strings.TrimSpace(input.Description) == "" {
		errs = append(errs, "description is required")
	}
	if strings.TrimSpace(input.Responsible) == "" {
		errs = append(errs, "responsible is required")
	}
	if input.PlannedEndDate.Before(input.PlannedStartDate) {
		errs = append(errs, "planned_end_date must not be before planned_start_date")
	}
	if input.Probability < 1 || input.Probability > 5 {
		errs = append(errs, "probability must be between 1 and 5")
	}
	if input.Impact < 1 || input.Impact > 5 {
		errs = append(errs, "impact must be between 1 and 5")
	}
	if input.ResponsiblePhone != "" {
		if err := utils.ValidatePhoneNumber(input.ResponsiblePhone, defaultPhoneRegion); err != nil {
			errs = append(errs, "responsible_phone is not a valid phone number")
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	d.PreventiveActions = append(d.PreventiveActions, models.PreventiveAction{
		Description:      input.Description,
		Responsible:      input.Responsible,
		ResponsiblePhone: input.ResponsiblePhone,
		PlannedStartDate: input.PlannedStartDate,
		PlannedEndDate:   input.PlannedEndDate,
		Status:           models.ActionStatusPlanned,
		EstimatedCost:    input.EstimatedCost,
		Probability:      input.Probability,
		Impact:           input.Impact,
		RiskLevel:        models.RiskLevelFor(input.Probability, input.Impact),
	})
	d.Status = DeriveStatus(d)

	if err := e.Repo.Save(ctx, d); err != nil {
		config.LogError(e.Logger, "actions.go", "AddPreventiveAction", "save deviation", input, err)
		return nil, err
	}
	return &d.PreventiveActions[len(d.PreventiveActions)-1], nil
}

var actionTransitions = map[models.ActionStatus][]models.ActionStatus{
	models.ActionStatusPlanned:    {models.ActionStatusInProgress, models.ActionStatusCancelled},
	models.ActionStatusInProgress: {models.ActionStatusCompleted, models.ActionStatusCancelled},
	models.ActionStatusCompleted:  {models.ActionStatusVerified},
}

func actionTransitionAllowed(from, to models.ActionStatus) bool {
	for _, s := range actionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateCorrectiveActionStatus moves an action through
// planned -> in_progress -> completed -> verified (cancellation allowed until
// completion). Completing the last action moves the deviation into the
// effectiveness phase via re-derivation.
func (e *Engine) UpdateCorrectiveActionStatus(ctx context.Context, deviationId, actionId int, input *models.UpdateActionStatusInput) (*models.Deviation, error) {
	d, err := e.Repo.Get(ctx, deviationId)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("UpdateCorrectiveActionStatus", "deviation is "+string(d.Status))
	}
	action := d.FindCorrectiveAction(actionId)
	if action == nil {
		return nil, utils.ErrorRecordNotFound
	}

	if !input.Status.Valid() {
		return nil, &ValidationError{Errors: []string{"status must be one of planned, in_progress, completed, verified, cancelled"}}
	}
	if !actionTransitionAllowed(action.Status, input.Status) {
		return nil, invariant("UpdateCorrectiveActionStatus",
			"cannot move action from "+string(action.Status)+" to "+string(input.Status))
	}

	now := e.Clock.Now()
	action.Status = input.Status
	switch input.Status {
	case models.ActionStatusInProgress:
		start := now
		if input.ActualStartDate != nil {
			start = *input.ActualStartDate
		}
		action.ActualStartDate = &start
	case models.ActionStatusCompleted:
		end := now
		if input.ActualEndDate != nil {
			end = *input.ActualEndDate
		}
		action.ActualEndDate = &end
		if !input.ActualCost.IsZero() {
			action.ActualCost = input.ActualCost
		}
	case models.ActionStatusVerified:
		actor, _ := utils.GetUserNameFromContext(ctx)
		action.VerifiedBy = &actor
		action.VerifiedAt = &now
		action.VerificationComment = input.VerificationComment
	}

	d.Status = DeriveStatus(d)
	if err := e.Repo.Save(ctx, d); err != nil {
		config.LogError(e.Logger, "actions.go", "UpdateCorrectiveActionStatus", "save deviation", input, err)
		return nil, err
	}
	return d, nil
}

func (e *Engine) UpdatePreventiveActionStatus(ctx context.Context, deviationId, actionId int, input *models.UpdateActionStatusInput) (*models.Deviation, error) {
	d, err := e.Repo.Get(ctx, deviationId)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("UpdatePreventiveActionStatus", "deviation is "+string(d.Status))
	}
	action := d.FindPreventiveAction(actionId)
	if action == nil {
		return nil, utils.ErrorRecordNotFound
	}

	if !input.Status.Valid() {
		return nil, &ValidationError{Errors: []string{"status must be one of planned, in_progress, completed, verified, cancelled"}}
	}
	if !actionTransitionAllowed(action.Status, input.Status) {
		return nil, invariant("UpdatePreventiveActionStatus",
			"cannot move action from "+string(action.Status)+" to "+string(input.Status))
	}

	now := e.Clock.Now()
	action.Status = input.Status
	switch input.Status {
	case models.ActionStatusInProgress:
		start := now
		if input.ActualStartDate != nil {
			start = *input.ActualStartDate
		}
		action.ActualStartDate = &start
	case models.ActionStatusCompleted:
		end := now
		if input.ActualEndDate != nil {
			end = *input.ActualEndDate
		}
		action.ActualEndDate = &end
		if !input.ActualCost.IsZero() {
			action.ActualCost = input.ActualCost
		}
	case models.ActionStatusVerified:
		actor, _ := utils.GetUserNameFromContext(ctx)
		action.VerifiedBy = &actor
		action.VerifiedAt = &now
		action.VerificationComment = input.VerificationComment
	}

	// Preventive actions do not gate the effectiveness phase, but the
	// derivation is cheap and keeps every write on the same path.
	d.Status = DeriveStatus(d)
	if err := e.Repo.Save(ctx, d); err != nil {
		config.LogError(e.Logger, "actions.go", "UpdatePreventiveActionStatus", "save deviation", input, err)
		return nil, err
	}
	return d, nil
}
