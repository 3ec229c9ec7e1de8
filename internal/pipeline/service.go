// Package pipeline exposes the two boundaries of the extraction engine:
// Ingest (raw transcript in, counts out) and Enrich (re-scan a scope with
// the optional inference collaborator folded in). Both are best-effort:
// per-item failures are logged and counted, and a dead inference chain
// degrades to deterministic-only output instead of failing the request.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/declog/declog/internal/classifier"
	"github.com/declog/declog/internal/inference"
	"github.com/declog/declog/internal/merge"
	"github.com/declog/declog/internal/models"
	"github.com/declog/declog/internal/resolver"
	"github.com/declog/declog/internal/storage"
	"github.com/declog/declog/internal/transcript"
)

// DeterministicOnly is reported by Enrich when no inference provider
// contributed to the result.
const DeterministicOnly = "deterministic-only"

type Options struct {
	// ChunkSize caps how many messages go to the inference chain per
	// request; larger scopes are processed in sequential chunks.
	ChunkSize int
	// ChunkDelay is the pause between chunks, respecting provider rate
	// limits.
	ChunkDelay time.Duration
}

func (o *Options) withDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 150
	}
}

type Service struct {
	store    storage.Store
	engine   *classifier.Engine
	chain    *inference.Chain // nil disables the enrichment merge path
	resolver *resolver.Resolver
	opts     Options
	logger   *zap.Logger
}

func NewService(store storage.Store, engine *classifier.Engine, chain *inference.Chain, opts Options, logger *zap.Logger) *Service {
	opts.withDefaults()
	return &Service{
		store:    store,
		engine:   engine,
		chain:    chain,
		resolver: resolver.New(store, logger),
		opts:     opts,
		logger:   logger,
	}
}

// IngestReport is the count summary returned by Ingest.
type IngestReport struct {
	MessagesParsed       int `json:"messages_parsed"`
	MessagesNew          int `json:"messages_new"`
	MessagesDuplicate    int `json:"messages_duplicate"`
	DecisionsDetected    int `json:"decisions_detected"`
	DecisionsNew         int `json:"decisions_new"`
	ResponsibilitiesSeen int `json:"responsibilities_detected"`
	ResponsibilitiesNew  int `json:"responsibilities_new"`
}

// Ingest parses raw transcript text into the given scope, persists the
// messages idempotently and runs the deterministic extraction pass.
// Re-ingesting identical content yields zero net-new counts.
func (s *Service) Ingest(ctx context.Context, scope, raw string) (*IngestReport, error) {
	if scope == "" {
		return nil, fmt.Errorf("ingest: scope is required")
	}

	msgs := transcript.Parse(raw)
	report := &IngestReport{MessagesParsed: len(msgs)}

	for i := range msgs {
		msgs[i].Scope = scope
		created, err := s.store.InsertMessage(ctx, &msgs[i])
		if err != nil {
			return nil, fmt.Errorf("ingest: persist message: %w", err)
		}
		if created {
			report.MessagesNew++
		} else {
			report.MessagesDuplicate++
		}
	}

	set := s.engine.Classify(msgs)
	report.DecisionsDetected = len(set.Decisions)
	report.ResponsibilitiesSeen = len(set.Responsibilities)

	res, err := s.resolver.Resolve(ctx, scope, set)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve: %w", err)
	}
	report.DecisionsNew = res.DecisionsPersisted
	report.ResponsibilitiesNew = res.ResponsibilitiesNew

	s.logger.Info("Ingest complete",
		zap.String("scope", scope),
		zap.Int("parsed", report.MessagesParsed),
		zap.Int("new_messages", report.MessagesNew),
		zap.Int("new_decisions", report.DecisionsNew),
		zap.Int("new_responsibilities", report.ResponsibilitiesNew))
	return report, nil
}

// EnrichReport is the count summary returned by Enrich.
type EnrichReport struct {
	Messages            int    `json:"messages"`
	Provider            string `json:"provider"`
	DecisionsMerged     int    `json:"decisions_merged"`
	DecisionsNew        int    `json:"decisions_new"`
	DecisionsConflicted int    `json:"decisions_conflicted"`
	ResponsibilitiesNew int    `json:"responsibilities_new"`
	ResponsibilitiesUpd int    `json:"responsibilities_updated"`
}

// Enrich re-runs extraction over every message in the scope, folding in
// the inference collaborator's candidates when a provider answers. A
// failed or absent chain is the normal deterministic-only path, not an
// error.
func (s *Service) Enrich(ctx context.Context, scope string) (*EnrichReport, error) {
	if scope == "" {
		return nil, fmt.Errorf("enrich: scope is required")
	}

	stored, err := s.store.ListMessages(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("enrich: list messages: %w", err)
	}
	msgs := make([]models.Message, len(stored))
	for i, m := range stored {
		msgs[i] = *m
	}

	report := &EnrichReport{Messages: len(msgs), Provider: DeterministicOnly}

	merged := s.engine.Classify(msgs)
	if s.chain != nil && len(msgs) > 0 {
		merged = s.runInference(ctx, msgs, merged, report)
	}

	report.DecisionsMerged = len(merged.Decisions)

	res, err := s.resolver.Resolve(ctx, scope, merged)
	if err != nil {
		return nil, fmt.Errorf("enrich: resolve: %w", err)
	}
	report.DecisionsNew = res.DecisionsPersisted
	report.DecisionsConflicted = res.DecisionsConflicted
	report.ResponsibilitiesNew = res.ResponsibilitiesNew
	report.ResponsibilitiesUpd = res.ResponsibilitiesUpd

	s.logger.Info("Enrich complete",
		zap.String("scope", scope),
		zap.String("provider", report.Provider),
		zap.Int("decisions_new", report.DecisionsNew),
		zap.Int("conflicted", report.DecisionsConflicted))
	return report, nil
}

// runInference chunks the scope's messages through the provider chain in
// chronological order and merges each chunk's candidates into the
// accumulated set sequentially.
func (s *Service) runInference(ctx context.Context, msgs []models.Message, base *models.CandidateSet, report *EnrichReport) *models.CandidateSet {
	merged := base
	for start := 0; start < len(msgs); start += s.opts.ChunkSize {
		end := start + s.opts.ChunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[start:end]

		if start > 0 && s.opts.ChunkDelay > 0 {
			select {
			case <-time.After(s.opts.ChunkDelay):
			case <-ctx.Done():
				return merged
			}
		}

		batch := make([]inference.BatchMessage, len(chunk))
		for i, m := range chunk {
			batch[i] = inference.BatchMessage{
				Ref:       i,
				Sender:    m.Sender,
				Timestamp: m.Timestamp,
				Body:      m.Body,
			}
		}

		result, provider, err := s.chain.Extract(ctx, batch)
		if err != nil {
			s.logger.Warn("Inference unavailable, keeping deterministic candidates",
				zap.Error(err),
				zap.Int("chunk_start", start))
			continue
		}
		report.Provider = provider
		merged = merge.Candidates(merged, translate(result, chunk))
	}
	return merged
}

// translate maps batch-local evidence refs back to durable fingerprints,
// dropping items whose refs cannot be resolved.
func translate(result *inference.Result, chunk []models.Message) *models.CandidateSet {
	set := &models.CandidateSet{}
	for _, d := range result.Decisions {
		var evidence []string
		for _, ref := range d.Evidence {
			if ref >= 0 && ref < len(chunk) {
				evidence = append(evidence, chunk[ref].Fingerprint)
			}
		}
		if len(evidence) == 0 {
			continue
		}
		status := models.DecisionStatus(d.Status)
		if !models.ValidDecisionStatus(status) {
			status = models.DecisionTentative
		}
		set.Decisions = append(set.Decisions, models.DecisionCandidate{
			GroupKey:    d.GroupKey,
			Title:       d.Title,
			Status:      status,
			Confidence:  d.Confidence,
			Explanation: d.Explanation,
			DecidedAt:   d.DecidedAt,
			Evidence:    evidence,
		})
	}
	for _, r := range result.Responsibilities {
		if r.Evidence < 0 || r.Evidence >= len(chunk) {
			continue
		}
		owner := r.Owner
		if owner == "" {
			owner = models.UnassignedOwner
		}
		set.Responsibilities = append(set.Responsibilities, models.ResponsibilityCandidate{
			Owner:       owner,
			Task:        r.Title,
			Description: r.Description,
			DueDate:     r.DueDate,
			Confidence:  70,
			Evidence:    []string{chunk[r.Evidence].Fingerprint},
		})
	}
	return set
}
