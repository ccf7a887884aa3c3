package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
)

func TestCheckRecurrence_MatchesSameTypeAndRecipe(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	existing := mustCreate(t, e, validInput()) // process, recipe 12

	other := validInput()
	other.Type = models.DeviationTypeProduct // same recipe, different type
	mustCreate(t, e, other)

	matches, err := e.CheckRecurrence(testCtx(), validInput(), 0)
	if err != nil {
		t.Fatalf("CheckRecurrence: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != existing.ID {
		t.Fatalf("matches = %v, want only the same-type same-recipe deviation", matches)
	}
}

func TestCheckRecurrence_MatchesOnBatch(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))

	input := validInput()
	input.RecipeId = nil
	input.BatchId = strPtr("B-2025-0042")
	mustCreate(t, e, input)

	candidate := validInput()
	candidate.RecipeId = nil
	candidate.BatchId = strPtr("B-2025-0042")

	matches, err := e.CheckRecurrence(testCtx(), candidate, 0)
	if err != nil {
		t.Fatalf("CheckRecurrence: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("match count = %d, want 1", len(matches))
	}
}

func TestCheckRecurrence_ExcludesSelfAndUnlinked(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	d := mustCreate(t, e, validInput())

	// The freshly created record must not match itself.
	matches, err := e.CheckRecurrence(testCtx(), validInput(), d.ID)
	if err != nil {
		t.Fatalf("CheckRecurrence: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("match count = %d, want 0", len(matches))
	}

	// Candidates without recipe or batch links can never recur.
	unlinked := validInput()
	unlinked.RecipeId = nil
	matches, err = e.CheckRecurrence(testCtx(), unlinked, 0)
	if err != nil || len(matches) != 0 {
		t.Fatalf("unlinked candidate: matches=%v err=%v, want none", matches, err)
	}
}

func TestCheckRecurrence_CapsAdvisoryMatches(t *testing.T) {
	e, _ := newTestEngine(date(2025, 1, 10))
	for i := 0; i < config.SearchLimit+3; i++ {
		mustCreate(t, e, validInput()) // all process, recipe 12
	}

	matches, err := e.CheckRecurrence(testCtx(), validInput(), 0)
	if err != nil {
		t.Fatalf("CheckRecurrence: %v", err)
	}
	if len(matches) != config.SearchLimit {
		t.Fatalf("match count = %d, want the %d cap", len(matches), config.SearchLimit)
	}
}
