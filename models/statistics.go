package models

// CAPAStatistics is the dashboard response. Recomputed from the full
// deviation set on every request; no caching (low volume, correctness first).
type CAPAStatistics struct {
	TotalDeviations int `json:"total_deviations"`

	BySeverity map[DeviationSeverity]int `json:"by_severity"`
	ByStatus   map[DeviationStatus]int   `json:"by_status"`

	// Effectiveness distribution across all checks of all deviations.
	ChecksEffective          int `json:"checks_effective"`
	ChecksPartiallyEffective int `json:"checks_partially_effective"`
	ChecksNotEffective       int `json:"checks_not_effective"`
	ChecksPending            int `json:"checks_pending"`

	// Mean of closed_at - created_at over closed deviations, in days.
	AverageClosureDays float64 `json:"average_closure_days"`

	// Corrective actions past planned end without completion.
	OverdueActions int `json:"overdue_actions"`

	// Unperformed checks whose planned date has passed.
	OverdueEffectivenessChecks int `json:"overdue_effectiveness_checks"`
}
