package models

// DecisionStatus is the closed set of states a decision version can hold.
type DecisionStatus string

const (
	DecisionOpen       DecisionStatus = "open"
	DecisionFinal      DecisionStatus = "final"
	DecisionTentative  DecisionStatus = "tentative"
	DecisionSuperseded DecisionStatus = "superseded"
	DecisionConflicted DecisionStatus = "conflicted"
)

// ValidDecisionStatus reports whether s is one of the known decision states.
func ValidDecisionStatus(s DecisionStatus) bool {
	switch s {
	case DecisionOpen, DecisionFinal, DecisionTentative, DecisionSuperseded, DecisionConflicted:
		return true
	}
	return false
}

// ResponsibilityStatus is the closed set of states for an action item.
type ResponsibilityStatus string

const (
	ResponsibilityOpen      ResponsibilityStatus = "open"
	ResponsibilityOverdue   ResponsibilityStatus = "overdue"
	ResponsibilityCompleted ResponsibilityStatus = "completed"
)

// ValidResponsibilityStatus reports whether s is one of the known
// responsibility states.
func ValidResponsibilityStatus(s ResponsibilityStatus) bool {
	switch s {
	case ResponsibilityOpen, ResponsibilityOverdue, ResponsibilityCompleted:
		return true
	}
	return false
}
