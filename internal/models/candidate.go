package models

import "time"

// DecisionCandidate is an unpersisted decision proposal produced by the
// trigger classifier or by an inference provider. Candidates live for one
// pass: they go straight to the merger/resolver and are never stored.
type DecisionCandidate struct {
	ID          string         `json:"id"`
	GroupKey    string         `json:"group_key,omitempty"`
	Title       string         `json:"title"`
	Status      DecisionStatus `json:"status"`
	Confidence  int            `json:"confidence"`
	Explanation string         `json:"explanation,omitempty"`
	DecidedAt   time.Time      `json:"decided_at"`
	Evidence    []string       `json:"evidence"`
}

// ResponsibilityCandidate is an unpersisted action-item proposal.
type ResponsibilityCandidate struct {
	ID          string   `json:"id"`
	Owner       string   `json:"owner"`
	Task        string   `json:"task"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Confidence  int      `json:"confidence"`
	Evidence    []string `json:"evidence"`
}

// CandidateSet is one pass worth of candidates.
type CandidateSet struct {
	Decisions        []DecisionCandidate       `json:"decisions"`
	Responsibilities []ResponsibilityCandidate `json:"responsibilities"`
}

// HasEvidence reports whether the candidate carries at least one
// evidence fingerprint. Candidates without evidence are never persisted.
func (c DecisionCandidate) HasEvidence() bool { return len(c.Evidence) > 0 }

// HasEvidence reports whether the candidate carries at least one
// evidence fingerprint.
func (c ResponsibilityCandidate) HasEvidence() bool { return len(c.Evidence) > 0 }
