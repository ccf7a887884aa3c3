package workflow

import (
	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

// DeriveStatus recomputes the deviation status from the full set of child
// records. It is called on every mutating operation and is the only writer of
// Deviation.Status; nothing increments the status ad hoc, so the status can
// never diverge from the data even after a partial failure.
//
// Precedence:
//  1. a closure record is terminal (closed or rejected);
//  2. a performed check rated not_effective forces investigation, unless a
//     root-cause analysis recorded after that check supersedes it (the
//     re-analysis restarts the workflow); until a corrective action newer
//     than that re-analysis exists, the deviation stays in investigation;
//  3. with checks scheduled: all performed but not all effective means more
//     measures are needed (corrective_action); otherwise the deviation is in
//     the effectiveness phase once every corrective action is done;
//  4. any corrective action puts it in corrective_action;
//  5. a root-cause analysis puts it in investigation;
//  6. otherwise open.
func DeriveStatus(d *models.Deviation) models.DeviationStatus {
	if d.Closure != nil {
		if d.Closure.FinalStatus == models.ClosureStatusRejected {
			return models.DeviationStatusRejected
		}
		return models.DeviationStatusClosed
	}

	active := d.ActiveEffectivenessChecks()
	for _, c := range active {
		if c.Performed() && c.EffectivenessRating != nil && *c.EffectivenessRating == models.RatingNotEffective {
			return models.DeviationStatusInvestigation
		}
	}

	if d.HasSupersededCheck() && actionsPredateAnalysis(d) {
		return models.DeviationStatusInvestigation
	}

	if len(active) > 0 {
		if d.AllChecksPerformed() && !d.AllChecksEffective() {
			return models.DeviationStatusCorrectiveAction
		}
		if allActionsDone(d) {
			return models.DeviationStatusEffectivenessCheck
		}
		return models.DeviationStatusCorrectiveAction
	}

	if len(d.CorrectiveActions) > 0 {
		return models.DeviationStatusCorrectiveAction
	}
	if d.RootCauseAnalysis != nil {
		return models.DeviationStatusInvestigation
	}
	return models.DeviationStatusOpen
}

// actionsPredateAnalysis reports whether every corrective action was created
// before the current root-cause analysis, i.e. the re-analysis has not been
// answered with alternative measures yet.
func actionsPredateAnalysis(d *models.Deviation) bool {
	if d.RootCauseAnalysis == nil {
		return false
	}
	for i := range d.CorrectiveActions {
		if !d.CorrectiveActions[i].CreatedAt.Before(d.RootCauseAnalysis.AnalysisDate) {
			return false
		}
	}
	return true
}

func allActionsDone(d *models.Deviation) bool {
	for i := range d.CorrectiveActions {
		s := d.CorrectiveActions[i].Status
		if s == models.ActionStatusCancelled {
			continue
		}
		if !s.Done() {
			return false
		}
	}
	return true
}

// allActionsVerified is the stricter closure gate behind STRICT_CAPA_CLOSURE.
func allActionsVerified(d *models.Deviation) bool {
	for i := range d.CorrectiveActions {
		s := d.CorrectiveActions[i].Status
		if s == models.ActionStatusCancelled {
			continue
		}
		if s != models.ActionStatusVerified {
			return false
		}
	}
	return true
}
