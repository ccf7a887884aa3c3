package models

import (
	"testing"
	"time"
)

func ratingPtr(r EffectivenessRating) *EffectivenessRating { return &r }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// The closure predicates must ignore superseded checks: a failed check that a
// later root-cause analysis answered would otherwise block closure forever,
// even after the replacement measures all verified effective.
func TestClosurePredicatesIgnoreSupersededChecks(t *testing.T) {
	d := &Deviation{
		RootCauseAnalysis: &RootCauseAnalysis{
			AnalysisDate: time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC),
		},
		EffectivenessChecks: []EffectivenessCheck{
			{
				// Failed before the re-analysis: superseded.
				PerformedDate:       datePtr(2025, 2, 8),
				EffectivenessRating: ratingPtr(RatingNotEffective),
			},
			{
				// Replacement check, passed after the re-analysis.
				PerformedDate:       datePtr(2025, 3, 10),
				EffectivenessRating: ratingPtr(RatingEffective),
			},
		},
	}

	if !d.HasSupersededCheck() {
		t.Fatal("failed check answered by a later analysis must count as superseded")
	}
	if got := len(d.ActiveEffectivenessChecks()); got != 1 {
		t.Fatalf("active checks = %d, want 1", got)
	}
	if !d.AllChecksPerformed() {
		t.Error("AllChecksPerformed must hold over the active set")
	}
	if !d.AllChecksEffective() {
		t.Error("AllChecksEffective must hold over the active set")
	}
}

func TestClosurePredicatesRequireActiveChecks(t *testing.T) {
	d := &Deviation{}
	if d.AllChecksPerformed() || d.AllChecksEffective() {
		t.Fatal("no scheduled checks means the closure predicates cannot hold")
	}

	d.EffectivenessChecks = []EffectivenessCheck{{
		PlannedDate: time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC),
	}}
	if d.AllChecksPerformed() {
		t.Fatal("a pending check must block AllChecksPerformed")
	}

	// A failed check without a newer analysis stays active and blocks
	// effectiveness.
	d.EffectivenessChecks[0].PerformedDate = datePtr(2025, 2, 8)
	d.EffectivenessChecks[0].EffectivenessRating = ratingPtr(RatingNotEffective)
	if d.HasSupersededCheck() {
		t.Fatal("no analysis recorded, nothing can be superseded")
	}
	if !d.AllChecksPerformed() {
		t.Error("the performed check must count")
	}
	if d.AllChecksEffective() {
		t.Error("a not_effective check must block AllChecksEffective")
	}
}
