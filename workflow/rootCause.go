package workflow

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// PerformRootCauseAnalysis records (or replaces) the root-cause analysis.
// Replacing after a not_effective check is the re-analysis path: it
// supersedes the failed check and the workflow restarts with new measures.
func (e *Engine) PerformRootCauseAnalysis(ctx context.Context, deviationId int, input *models.NewRootCauseAnalysis) (*models.Deviation, error) {
	d, err := e.Repo.Get(ctx, deviationId)
	if err != nil {
		return nil, err
	}
	if d.Closure != nil {
		return nil, invariant("PerformRootCauseAnalysis", "deviation is "+string(d.Status))
	}

	var errs []string
	if !input.Method.Valid() {
		errs = append(errs, "method must be one of five_why, fishbone, eight_d, other")
	}
	if strings.TrimSpace(input.RootCause) == "" {
		errs = append(errs, "root_cause is required")
	}
	if input.Method == models.RootCauseMethodFiveWhy && len(input.FiveWhys) == 0 {
		errs = append(errs, "five_why analysis requires the chain of whys")
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	analyzedBy := input.AnalyzedBy
	if analyzedBy == "" {
		analyzedBy, _ = utils.GetUserNameFromContext(ctx)
	}

	now := e.Clock.Now()
	analysis := &models.RootCauseAnalysis{
		Method:             input.Method,
		RootCause:          input.RootCause,
		AnalyzedBy:         analyzedBy,
		AnalysisDate:       now,
		FiveWhys:           input.FiveWhys,
		FishboneCategories: input.FishboneCategories,
		EightDSteps:        input.EightDSteps,
	}
	if d.RootCauseAnalysis != nil {
		// Keep the row, replace its content; one analysis per deviation.
		analysis.ID = d.RootCauseAnalysis.ID
	}
	d.RootCauseAnalysis = analysis
	d.Status = DeriveStatus(d)

	if err := e.Repo.Save(ctx, d); err != nil {
		config.LogError(e.Logger, "rootCause.go", "PerformRootCauseAnalysis", "save deviation", input, err)
		return nil, err
	}
	return d, nil
}
