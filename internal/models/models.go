package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemSender is the sentinel sender for unattributed or system messages.
const SystemSender = "system"

// UnassignedOwner is the sentinel owner for responsibilities nobody claimed.
const UnassignedOwner = "unassigned"

// Message is one normalized transcript message. Created at ingestion,
// never mutated. The fingerprint is a pure function of the normalized
// timestamp, sender and body, so re-importing the same transcript always
// reproduces the same fingerprints.
type Message struct {
	Fingerprint string    `json:"fingerprint"`
	Scope       string    `json:"scope"`
	Sender      string    `json:"sender"`
	Timestamp   time.Time `json:"timestamp"`
	Body        string    `json:"body"`
}

// DecisionThread groups every version of one real-world decision topic.
// Key is derived from the normalized title and is unique within a scope.
type DecisionThread struct {
	ID        uuid.UUID `json:"id"`
	Scope     string    `json:"scope"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// DecisionVersion is one immutable snapshot of a decision's state.
// Version numbers start at 1 and are strictly monotonic per thread;
// at most one version per thread is Latest.
type DecisionVersion struct {
	ID         uuid.UUID      `json:"id"`
	ThreadID   uuid.UUID      `json:"thread_id"`
	Version    int            `json:"version"`
	Status     DecisionStatus `json:"status"`
	Confidence int            `json:"confidence"`
	Title      string         `json:"title"`
	Outcome    string         `json:"outcome"`
	DecidedAt  time.Time      `json:"decided_at"`
	Latest     bool           `json:"latest"`
	Evidence   []string       `json:"evidence"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Responsibility is a persisted action item. Responsibilities are not
// version-chained: identity is (scope, owner, normalized task) and a
// re-detected responsibility updates status and due date in place.
type Responsibility struct {
	ID        uuid.UUID            `json:"id"`
	Scope     string               `json:"scope"`
	Owner     string               `json:"owner"`
	Task      string               `json:"task"`
	TaskKey   string               `json:"task_key"`
	Status    ResponsibilityStatus `json:"status"`
	DueDate   string               `json:"due_date,omitempty"`
	Evidence  []string             `json:"evidence"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// EvidenceRef links a persisted record to one source message by
// fingerprint. Position preserves evidence ordering.
type EvidenceRef struct {
	RecordID    uuid.UUID `json:"record_id"`
	Fingerprint string    `json:"fingerprint"`
	Position    int       `json:"position"`
}
