package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/declog/declog/internal/models"
)

// MemoryStore is the in-memory Store used for tests and for
// database.use_in_memory mode. It enforces the same natural-key
// uniqueness the Postgres schema does.
type MemoryStore struct {
	mu               sync.RWMutex
	messages         map[string]*models.Message        // scope|fingerprint
	threads          map[string]*models.DecisionThread // scope|key
	versions         map[uuid.UUID][]*models.DecisionVersion
	responsibilities map[string]*models.Responsibility // scope|owner|taskKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:         make(map[string]*models.Message),
		threads:          make(map[string]*models.DecisionThread),
		versions:         make(map[uuid.UUID][]*models.DecisionVersion),
		responsibilities: make(map[string]*models.Responsibility),
	}
}

func msgKey(scope, fingerprint string) string { return scope + "|" + fingerprint }

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := msgKey(msg.Scope, msg.Fingerprint)
	if _, exists := s.messages[key]; exists {
		return false, nil
	}
	cp := *msg
	s.messages[key] = &cp
	return true, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, scope, fingerprint string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, exists := s.messages[msgKey(scope, fingerprint)]; exists {
		cp := *m
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetMessages(ctx context.Context, scope string, fingerprints []string) (map[string]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.Message, len(fingerprints))
	for _, fp := range fingerprints {
		if m, exists := s.messages[msgKey(scope, fp)]; exists {
			cp := *m
			out[fp] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, scope string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Message
	for _, m := range s.messages {
		if m.Scope == scope {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Fingerprint < out[j].Fingerprint
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func threadKey(scope, key string) string { return scope + "|" + key }

func (s *MemoryStore) InsertThread(ctx context.Context, thread *models.DecisionThread) (*models.DecisionThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := threadKey(thread.Scope, thread.Key)
	if existing, exists := s.threads[k]; exists {
		cp := *existing
		return &cp, nil
	}
	cp := *thread
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.threads[k] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetThread(ctx context.Context, scope, key string) (*models.DecisionThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, exists := s.threads[threadKey(scope, key)]; exists {
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) LatestVersion(ctx context.Context, threadID uuid.UUID) (*models.DecisionVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.DecisionVersion
	for _, v := range s.versions[threadID] {
		if latest == nil || v.Version > latest.Version {
			latest = v
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	cp.Evidence = append([]string(nil), latest.Evidence...)
	return &cp, nil
}

func (s *MemoryStore) InsertVersion(ctx context.Context, v *models.DecisionVersion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.versions[v.ThreadID] {
		if existing.Version == v.Version {
			return false, nil
		}
	}
	cp := *v
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.Evidence = append([]string(nil), v.Evidence...)
	s.versions[v.ThreadID] = append(s.versions[v.ThreadID], &cp)
	v.ID = cp.ID
	return true, nil
}

func (s *MemoryStore) MarkSuperseded(ctx context.Context, threadID uuid.UUID, belowVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions[threadID] {
		if v.Version < belowVersion && v.Latest {
			v.Latest = false
			v.Status = models.DecisionSuperseded
		}
	}
	return nil
}

func (s *MemoryStore) AttachEvidence(ctx context.Context, versionID uuid.UUID, fingerprints []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, versions := range s.versions {
		for _, v := range versions {
			if v.ID != versionID {
				continue
			}
			for _, fp := range fingerprints {
				dup := false
				for _, existing := range v.Evidence {
					if existing == fp {
						dup = true
						break
					}
				}
				if !dup {
					v.Evidence = append(v.Evidence, fp)
				}
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListVersions(ctx context.Context, threadID uuid.UUID) ([]*models.DecisionVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DecisionVersion, 0, len(s.versions[threadID]))
	for _, v := range s.versions[threadID] {
		cp := *v
		cp.Evidence = append([]string(nil), v.Evidence...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func respKey(scope, owner, taskKey string) string { return scope + "|" + owner + "|" + taskKey }

func (s *MemoryStore) InsertResponsibility(ctx context.Context, r *models.Responsibility) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := respKey(r.Scope, r.Owner, r.TaskKey)
	if _, exists := s.responsibilities[k]; exists {
		return false, nil
	}
	cp := *r
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	cp.Evidence = append([]string(nil), r.Evidence...)
	s.responsibilities[k] = &cp
	r.ID = cp.ID
	return true, nil
}

func (s *MemoryStore) GetResponsibility(ctx context.Context, scope, owner, taskKey string) (*models.Responsibility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, exists := s.responsibilities[respKey(scope, owner, taskKey)]; exists {
		cp := *r
		cp.Evidence = append([]string(nil), r.Evidence...)
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateResponsibility(ctx context.Context, id uuid.UUID, status models.ResponsibilityStatus, dueDate string) error {
	if !models.ValidResponsibilityStatus(status) {
		return fmt.Errorf("invalid responsibility status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.responsibilities {
		if r.ID == id {
			r.Status = status
			if dueDate != "" {
				r.DueDate = dueDate
			}
			r.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) AttachResponsibilityEvidence(ctx context.Context, id uuid.UUID, fingerprints []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.responsibilities {
		if r.ID != id {
			continue
		}
		for _, fp := range fingerprints {
			dup := false
			for _, existing := range r.Evidence {
				if existing == fp {
					dup = true
					break
				}
			}
			if !dup {
				r.Evidence = append(r.Evidence, fp)
			}
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) ListResponsibilities(ctx context.Context, scope string) ([]*models.Responsibility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Responsibility
	for _, r := range s.responsibilities {
		if r.Scope == scope {
			cp := *r
			cp.Evidence = append([]string(nil), r.Evidence...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
