// Package resolver turns candidates into persisted state: it groups
// decision candidates into threads, appends monotonically numbered
// versions when the observed outcome changed, flags irreconcilable
// same-pass conflicts, and enforces the no-evidence-no-persistence rule
// through chunked fingerprint resolution. All writes go through
// insert-if-absent repository calls, so repeated passes over the same
// input converge instead of duplicating.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/declog/declog/internal/classifier"
	"github.com/declog/declog/internal/models"
	"github.com/declog/declog/internal/storage"
)

// evidenceChunkSize bounds bulk fingerprint lookups per query.
const evidenceChunkSize = 200

// conflictMargin is the confidence gap below which two contradicting
// same-pass candidates cannot be ranked and are flagged instead.
const conflictMargin = 10

type Resolver struct {
	store  storage.Store
	logger *zap.Logger
}

func New(store storage.Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Report aggregates what one resolution pass did.
type Report struct {
	DecisionsSeen        int
	DecisionsPersisted   int
	DecisionsConflicted  int
	DecisionsDropped     int
	ResponsibilitiesSeen int
	ResponsibilitiesNew  int
	ResponsibilitiesUpd  int
	ResponsibilitiesDrop int
}

// Resolve persists the pass's candidate set into the scope and returns
// counts. Per-candidate failures are logged and counted, never fatal.
func (r *Resolver) Resolve(ctx context.Context, scope string, set *models.CandidateSet) (*Report, error) {
	report := &Report{}
	if set == nil {
		return report, nil
	}

	for _, group := range groupByThreadKey(set.Decisions) {
		report.DecisionsSeen += len(group.candidates)
		if err := r.resolveDecisionGroup(ctx, scope, group, report); err != nil {
			r.logger.Error("Failed to resolve decision group",
				zap.Error(err),
				zap.String("scope", scope),
				zap.String("thread_key", group.key))
		}
	}

	for _, cand := range set.Responsibilities {
		report.ResponsibilitiesSeen++
		if err := r.resolveResponsibility(ctx, scope, cand, report); err != nil {
			r.logger.Error("Failed to resolve responsibility",
				zap.Error(err),
				zap.String("scope", scope),
				zap.String("owner", cand.Owner))
		}
	}
	return report, nil
}

type threadGroup struct {
	key        string
	candidates []models.DecisionCandidate
}

func groupByThreadKey(cands []models.DecisionCandidate) []threadGroup {
	index := make(map[string]int)
	var groups []threadGroup
	for _, c := range cands {
		key := ThreadKey(c)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			groups[i].candidates = append(groups[i].candidates, c)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, threadGroup{key: key, candidates: []models.DecisionCandidate{c}})
	}
	return groups
}

// ThreadKey derives the durable grouping key for a decision candidate.
// External grouping keys take precedence over the normalized title.
func ThreadKey(c models.DecisionCandidate) string {
	if c.GroupKey != "" {
		return classifier.NormalizeKey(c.GroupKey)
	}
	return classifier.NormalizeKey(c.Title)
}

func (r *Resolver) resolveDecisionGroup(ctx context.Context, scope string, group threadGroup, report *Report) error {
	winner, conflicted := rankGroup(group.candidates)

	evidence, err := r.resolveEvidence(ctx, scope, winner.Evidence)
	if err != nil {
		return err
	}
	if len(evidence) == 0 {
		report.DecisionsDropped++
		r.logger.Warn("Dropping decision candidate with no resolvable evidence",
			zap.String("scope", scope),
			zap.String("title", winner.Title))
		return nil
	}

	thread, err := r.store.InsertThread(ctx, &models.DecisionThread{
		Scope: scope,
		Key:   group.key,
	})
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}

	status := winner.Status
	if conflicted {
		status = models.DecisionConflicted
		report.DecisionsConflicted++
	}

	next := 1
	latest, err := r.store.LatestVersion(ctx, thread.ID)
	switch {
	case err == nil:
		if sameObservation(latest, winner, status) {
			return nil
		}
		next = latest.Version + 1
	case errors.Is(err, storage.ErrNotFound):
		// First version for this thread.
	default:
		return fmt.Errorf("latest version: %w", err)
	}

	decidedAt := winner.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}
	created, err := r.store.InsertVersion(ctx, &models.DecisionVersion{
		ID:         uuid.New(),
		ThreadID:   thread.ID,
		Version:    next,
		Status:     status,
		Confidence: winner.Confidence,
		Title:      winner.Title,
		Outcome:    winner.Explanation,
		DecidedAt:  decidedAt,
		Latest:     true,
		Evidence:   evidence,
	})
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	if !created {
		// A concurrent writer got there first; treat our write as done.
		return nil
	}
	report.DecisionsPersisted++
	if next > 1 {
		if err := r.store.MarkSuperseded(ctx, thread.ID, next); err != nil {
			return fmt.Errorf("supersede: %w", err)
		}
	}
	return nil
}

// rankGroup picks the group's strongest candidate and reports whether the
// group is irreconcilably conflicted: two candidates asserting different
// outcomes with a confidence gap too small to rank.
func rankGroup(cands []models.DecisionCandidate) (models.DecisionCandidate, bool) {
	winner := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > winner.Confidence ||
			(c.Confidence == winner.Confidence && c.DecidedAt.After(winner.DecidedAt)) {
			winner = c
		}
	}
	for _, c := range cands {
		if c.ID == winner.ID && c.DecidedAt.Equal(winner.DecidedAt) {
			continue
		}
		sameOutcome := classifier.NormalizeKey(c.Explanation) == classifier.NormalizeKey(winner.Explanation) &&
			classifier.NormalizeKey(c.Title) == classifier.NormalizeKey(winner.Title)
		if sameOutcome {
			continue
		}
		gap := winner.Confidence - c.Confidence
		recencyGap := !c.DecidedAt.Equal(winner.DecidedAt)
		if gap < conflictMargin && !recencyGap {
			return winner, true
		}
	}
	return winner, false
}

func sameObservation(latest *models.DecisionVersion, c models.DecisionCandidate, status models.DecisionStatus) bool {
	return classifier.NormalizeKey(latest.Title) == classifier.NormalizeKey(c.Title) &&
		classifier.NormalizeKey(latest.Outcome) == classifier.NormalizeKey(c.Explanation) &&
		latest.Status == status
}

func (r *Resolver) resolveResponsibility(ctx context.Context, scope string, cand models.ResponsibilityCandidate, report *Report) error {
	evidence, err := r.resolveEvidence(ctx, scope, cand.Evidence)
	if err != nil {
		return err
	}
	if len(evidence) == 0 {
		report.ResponsibilitiesDrop++
		r.logger.Warn("Dropping responsibility candidate with no resolvable evidence",
			zap.String("scope", scope),
			zap.String("task", cand.Task))
		return nil
	}

	owner := cand.Owner
	if owner == "" {
		owner = models.UnassignedOwner
	}
	taskKey := classifier.NormalizeKey(cand.Task)

	existing, err := r.store.GetResponsibility(ctx, scope, owner, taskKey)
	switch {
	case err == nil:
		if err := r.store.AttachResponsibilityEvidence(ctx, existing.ID, evidence); err != nil {
			return fmt.Errorf("attach evidence: %w", err)
		}
		if cand.DueDate != "" && cand.DueDate != existing.DueDate {
			if err := r.store.UpdateResponsibility(ctx, existing.ID, existing.Status, cand.DueDate); err != nil {
				return fmt.Errorf("update responsibility: %w", err)
			}
			report.ResponsibilitiesUpd++
		}
		return nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("get responsibility: %w", err)
	}

	created, err := r.store.InsertResponsibility(ctx, &models.Responsibility{
		ID:       uuid.New(),
		Scope:    scope,
		Owner:    owner,
		Task:     cand.Task,
		TaskKey:  taskKey,
		Status:   models.ResponsibilityOpen,
		DueDate:  cand.DueDate,
		Evidence: evidence,
	})
	if err != nil {
		return fmt.Errorf("insert responsibility: %w", err)
	}
	if created {
		report.ResponsibilitiesNew++
	}
	return nil
}

// resolveEvidence maps candidate fingerprints to stored messages in
// chunks, preserving order and silently dropping unresolvable ones.
func (r *Resolver) resolveEvidence(ctx context.Context, scope string, fingerprints []string) ([]string, error) {
	var resolved []string
	for start := 0; start < len(fingerprints); start += evidenceChunkSize {
		end := start + evidenceChunkSize
		if end > len(fingerprints) {
			end = len(fingerprints)
		}
		chunk := fingerprints[start:end]
		found, err := r.store.GetMessages(ctx, scope, chunk)
		if err != nil {
			return nil, fmt.Errorf("resolve evidence: %w", err)
		}
		for _, fp := range chunk {
			if _, ok := found[fp]; ok {
				resolved = append(resolved, fp)
			}
		}
	}
	return resolved, nil
}
