package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/declog/declog/internal/models"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("storage: not found")

// MessageRepository persists normalized transcript messages keyed by
// (scope, fingerprint).
type MessageRepository interface {
	// InsertMessage is insert-if-absent; it reports whether a new row
	// was created.
	InsertMessage(ctx context.Context, msg *models.Message) (bool, error)
	GetMessage(ctx context.Context, scope, fingerprint string) (*models.Message, error)
	// GetMessages resolves a batch of fingerprints within a scope;
	// missing fingerprints are simply absent from the result map.
	GetMessages(ctx context.Context, scope string, fingerprints []string) (map[string]*models.Message, error)
	// ListMessages returns every message in a scope in chronological order.
	ListMessages(ctx context.Context, scope string) ([]*models.Message, error)
}

// DecisionRepository persists decision threads, their version chains and
// version evidence. Uniqueness on (scope, key) and (thread, version) is
// the serialization point the resolver's idempotency relies on.
type DecisionRepository interface {
	// InsertThread is insert-if-absent by (scope, key); it returns the
	// stored thread, which is the pre-existing one on conflict.
	InsertThread(ctx context.Context, thread *models.DecisionThread) (*models.DecisionThread, error)
	GetThread(ctx context.Context, scope, key string) (*models.DecisionThread, error)
	// LatestVersion returns the thread's latest version, or ErrNotFound
	// for a thread with no versions yet.
	LatestVersion(ctx context.Context, threadID uuid.UUID) (*models.DecisionVersion, error)
	// InsertVersion is insert-if-absent by (thread, version); it reports
	// whether a new row was created. Evidence refs are persisted with it.
	InsertVersion(ctx context.Context, v *models.DecisionVersion) (bool, error)
	// MarkSuperseded flips every version of the thread below the given
	// number to superseded and clears its latest flag.
	MarkSuperseded(ctx context.Context, threadID uuid.UUID, belowVersion int) error
	// AttachEvidence idempotently links extra fingerprints to a version.
	AttachEvidence(ctx context.Context, versionID uuid.UUID, fingerprints []string) error
	ListVersions(ctx context.Context, threadID uuid.UUID) ([]*models.DecisionVersion, error)
}

// ResponsibilityRepository persists action items keyed by
// (scope, owner, task key).
type ResponsibilityRepository interface {
	InsertResponsibility(ctx context.Context, r *models.Responsibility) (bool, error)
	GetResponsibility(ctx context.Context, scope, owner, taskKey string) (*models.Responsibility, error)
	// UpdateResponsibility changes status and due date in place;
	// everything else on a stored responsibility is immutable.
	UpdateResponsibility(ctx context.Context, id uuid.UUID, status models.ResponsibilityStatus, dueDate string) error
	AttachResponsibilityEvidence(ctx context.Context, id uuid.UUID, fingerprints []string) error
	ListResponsibilities(ctx context.Context, scope string) ([]*models.Responsibility, error)
}

// Store aggregates the per-family repositories behind one handle.
type Store interface {
	MessageRepository
	DecisionRepository
	ResponsibilityRepository
	Close() error
}
