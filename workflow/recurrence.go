package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

// CheckRecurrence finds existing deviations of the same type that share a
// recipe or batch with the candidate. Purely advisory: the result feeds the
// QM dashboard and a log line on creation, it never blocks intake.
// excludeId skips the candidate's own record when scanning after creation.
// The list is capped at config.SearchLimit; the repository orders by
// discovered date descending, so the cap keeps the most recent matches.
func (e *Engine) CheckRecurrence(ctx context.Context, candidate *models.NewDeviation, excludeId int) ([]*models.Deviation, error) {
	if candidate.RecipeId == nil && candidate.BatchId == nil {
		return nil, nil
	}

	existing, err := e.Repo.List(ctx, models.DeviationFilter{Type: &candidate.Type})
	if err != nil {
		return nil, err
	}

	var matches []*models.Deviation
	for _, d := range existing {
		if d.ID == excludeId {
			continue
		}
		sameRecipe := candidate.RecipeId != nil && d.RecipeId != nil && *candidate.RecipeId == *d.RecipeId
		sameBatch := candidate.BatchId != nil && d.BatchId != nil && *candidate.BatchId == *d.BatchId
		if sameRecipe || sameBatch {
			matches = append(matches, d)
			if len(matches) == config.SearchLimit {
				break
			}
		}
	}
	return matches, nil
}
