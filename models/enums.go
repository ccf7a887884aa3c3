package models

// Enum values below are the wire contract shared with the web client and the
// report service; they are stored as-is and must not be renamed.

type DeviationType string

const (
	DeviationTypeProduct       DeviationType = "product"
	DeviationTypeProcess       DeviationType = "process"
	DeviationTypeSystem        DeviationType = "system"
	DeviationTypeDocumentation DeviationType = "documentation"
	DeviationTypeCalibration   DeviationType = "calibration"
)

func (t DeviationType) Valid() bool {
	switch t {
	case DeviationTypeProduct, DeviationTypeProcess, DeviationTypeSystem,
		DeviationTypeDocumentation, DeviationTypeCalibration:
		return true
	}
	return false
}

type DeviationSeverity string

const (
	DeviationSeverityCritical    DeviationSeverity = "critical"
	DeviationSeverityMajor       DeviationSeverity = "major"
	DeviationSeverityMinor       DeviationSeverity = "minor"
	DeviationSeverityObservation DeviationSeverity = "observation"
)

func (s DeviationSeverity) Valid() bool {
	switch s {
	case DeviationSeverityCritical, DeviationSeverityMajor,
		DeviationSeverityMinor, DeviationSeverityObservation:
		return true
	}
	return false
}

type DeviationStatus string

const (
	DeviationStatusOpen               DeviationStatus = "open"
	DeviationStatusInvestigation      DeviationStatus = "investigation"
	DeviationStatusCorrectiveAction   DeviationStatus = "corrective_action"
	DeviationStatusEffectivenessCheck DeviationStatus = "effectiveness_check"
	DeviationStatusClosed             DeviationStatus = "closed"
	DeviationStatusRejected           DeviationStatus = "rejected"
)

type ActionStatus string

const (
	ActionStatusPlanned    ActionStatus = "planned"
	ActionStatusInProgress ActionStatus = "in_progress"
	ActionStatusCompleted  ActionStatus = "completed"
	ActionStatusVerified   ActionStatus = "verified"
	ActionStatusCancelled  ActionStatus = "cancelled"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusPlanned, ActionStatusInProgress, ActionStatusCompleted,
		ActionStatusVerified, ActionStatusCancelled:
		return true
	}
	return false
}

// Done reports whether the action no longer blocks the effectiveness phase.
func (s ActionStatus) Done() bool {
	return s == ActionStatusCompleted || s == ActionStatusVerified
}

type CheckType string

const (
	CheckTypeImmediate CheckType = "immediate"
	CheckTypeShortTerm CheckType = "short_term"
	CheckTypeLongTerm  CheckType = "long_term"
)

type CheckMethod string

const (
	CheckMethodAudit            CheckMethod = "audit"
	CheckMethodTest             CheckMethod = "test"
	CheckMethodMeasurement      CheckMethod = "measurement"
	CheckMethodObservation      CheckMethod = "observation"
	CheckMethodDocumentReview   CheckMethod = "document_review"
	CheckMethodCustomerFeedback CheckMethod = "customer_feedback"
)

type EffectivenessRating string

const (
	RatingEffective          EffectivenessRating = "effective"
	RatingPartiallyEffective EffectivenessRating = "partially_effective"
	RatingNotEffective       EffectivenessRating = "not_effective"
)

type RootCauseMethod string

const (
	RootCauseMethodFiveWhy  RootCauseMethod = "five_why"
	RootCauseMethodFishbone RootCauseMethod = "fishbone"
	RootCauseMethodEightD   RootCauseMethod = "eight_d"
	RootCauseMethodOther    RootCauseMethod = "other"
)

func (m RootCauseMethod) Valid() bool {
	switch m {
	case RootCauseMethodFiveWhy, RootCauseMethodFishbone, RootCauseMethodEightD, RootCauseMethodOther:
		return true
	}
	return false
}

type ClosureStatus string

const (
	ClosureStatusResolved ClosureStatus = "resolved"
	ClosureStatusRejected ClosureStatus = "rejected"
)

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// DeviationEventType tags outbox events for the notification dispatcher.
type DeviationEventType string

const (
	DeviationEventCreated    DeviationEventType = "deviation_created"
	DeviationEventEscalated  DeviationEventType = "deviation_escalated"
	DeviationEventClosed     DeviationEventType = "deviation_closed"
	DeviationEventRejected   DeviationEventType = "deviation_rejected"
	DeviationEventReanalysis DeviationEventType = "deviation_reanalysis_required"
)
