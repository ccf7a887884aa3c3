package models

import (
	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// MigrateTable panics on a failed migration; a revision that cannot migrate
// must not serve traffic.
func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Deviation{}, &RootCauseAnalysis{}, &DeviationClosure{},
		&CorrectiveAction{}, &PreventiveAction{},
		&EffectivenessCheck{}, &SuccessCriterion{}, &FollowUpAction{},
		&DeviationNumberSeries{},
		&DeviationEventRecord{},
		&DeviationDocument{},
	)
	utils.ErrorPanic(err)
}
