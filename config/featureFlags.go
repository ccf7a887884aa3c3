package config

import (
	"os"
	"strconv"
	"strings"
)

// PartialCreditRatio is the fraction of success criteria counted as met when a
// performed effectiveness check reports criteria_met=false but recorded actual
// values. The historical behavior pinned this at 0.5; it is configurable so QM
// can tighten it without a release.
//
// Set via env:
// - CAPA_PARTIAL_CREDIT_RATIO=0.5
func PartialCreditRatio() float64 {
	raw := strings.TrimSpace(os.Getenv("CAPA_PARTIAL_CREDIT_RATIO"))
	if raw == "" {
		return 0.5
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0.5
	}
	return v
}

// StrictCAPAClosure requires every corrective action to reach Verified (not
// just Completed) before a deviation may close, on top of the effectiveness
// rules.
//
// Set via env:
// - STRICT_CAPA_CLOSURE=true
func StrictCAPAClosure() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_CAPA_CLOSURE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
