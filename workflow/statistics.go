package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

// GetCAPAStatistics aggregates the tenant's deviation set for the QM
// dashboard. Deviation volumes are small (hundreds per tenant-year), so a
// full scan per request beats maintaining counters.
func (e *Engine) GetCAPAStatistics(ctx context.Context) (*models.CAPAStatistics, error) {
	all, err := e.Repo.List(ctx, models.DeviationFilter{})
	if err != nil {
		return nil, err
	}

	now := e.Clock.Now()
	stats := &models.CAPAStatistics{
		BySeverity: map[models.DeviationSeverity]int{},
		ByStatus:   map[models.DeviationStatus]int{},
	}

	var closedCount int
	var closedDays float64
	for _, d := range all {
		stats.TotalDeviations++
		stats.BySeverity[d.Severity]++
		stats.ByStatus[d.Status]++

		if d.Status == models.DeviationStatusClosed && d.Closure != nil {
			closedCount++
			closedDays += d.Closure.ClosedAt.Sub(d.CreatedAt).Hours() / 24
		}

		if d.Closure == nil {
			for i := range d.CorrectiveActions {
				a := &d.CorrectiveActions[i]
				if !a.Status.Done() && a.Status != models.ActionStatusCancelled &&
					a.PlannedEndDate.Before(now) {
					stats.OverdueActions++
				}
			}
		}

		for i := range d.EffectivenessChecks {
			c := &d.EffectivenessChecks[i]
			if !c.Performed() {
				stats.ChecksPending++
				if c.Overdue(now) {
					stats.OverdueEffectivenessChecks++
				}
				continue
			}
			if c.EffectivenessRating == nil {
				continue
			}
			switch *c.EffectivenessRating {
			case models.RatingEffective:
				stats.ChecksEffective++
			case models.RatingPartiallyEffective:
				stats.ChecksPartiallyEffective++
			case models.RatingNotEffective:
				stats.ChecksNotEffective++
			}
		}
	}
	if closedCount > 0 {
		stats.AverageClosureDays = closedDays / float64(closedCount)
	}
	return stats, nil
}

// OverdueCheck pairs an unperformed, past-due effectiveness check with its
// deviation so reminder jobs do not need a second lookup.
type OverdueCheck struct {
	DeviationId     int                       `json:"deviation_id"`
	DeviationNumber string                    `json:"deviation_number"`
	Severity        models.DeviationSeverity  `json:"severity"`
	Check           models.EffectivenessCheck `json:"check"`
}

func (e *Engine) GetOverdueEffectivenessChecks(ctx context.Context) ([]OverdueCheck, error) {
	all, err := e.Repo.List(ctx, models.DeviationFilter{})
	if err != nil {
		return nil, err
	}

	now := e.Clock.Now()
	var out []OverdueCheck
	for _, d := range all {
		// A closure requires every active check to be performed, so a
		// closed or rejected deviation carries no actionable overdue checks.
		if d.Closure != nil {
			continue
		}
		for i := range d.EffectivenessChecks {
			c := d.EffectivenessChecks[i]
			if c.Overdue(now) {
				out = append(out, OverdueCheck{
					DeviationId:     d.ID,
					DeviationNumber: d.DeviationNumber,
					Severity:        d.Severity,
					Check:           c,
				})
			}
		}
	}
	return out, nil
}
