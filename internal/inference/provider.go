// Package inference is the optional non-deterministic collaborator: it
// ships message batches to an LLM provider and returns candidate sets
// keyed by short-lived batch-local message refs. Callers translate refs
// back to durable fingerprints before the merger sees the result;
// provider failure is always a normal, non-fatal path.
package inference

import (
	"context"
	"errors"
	"time"
)

// BatchMessage is one message as presented to a provider, identified by
// a batch-local ref instead of its durable fingerprint.
type BatchMessage struct {
	Ref       int       `json:"ref"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Body      string    `json:"body"`
}

// Decision is a provider-reported decision candidate, evidence still in
// batch-local refs.
type Decision struct {
	GroupKey    string
	Title       string
	Status      string
	Confidence  int
	Explanation string
	DecidedAt   time.Time
	Evidence    []int
}

// Responsibility is a provider-reported action item with a single
// batch-local evidence ref.
type Responsibility struct {
	Title       string
	Owner       string
	DueDate     string
	Description string
	Evidence    int
}

// Result is one provider response after sanitization.
type Result struct {
	Decisions        []Decision
	Responsibilities []Responsibility
}

// Provider extracts candidates from one message batch.
type Provider interface {
	Name() string
	Extract(ctx context.Context, batch []BatchMessage) (*Result, error)
}

// ErrRateLimited marks a retryable provider failure. Providers wrap
// their backend's throttling signal with it; the chain retries only this.
var ErrRateLimited = errors.New("inference: rate limited")
