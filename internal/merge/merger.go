// Package merge folds an externally-inferred candidate set into the
// deterministic baseline. Matching is evidential (shared fingerprints),
// then two dedup passes collapse survivors: exact grouping-key collapse
// and fuzzy title-similarity collapse. The merger is pure given its two
// inputs and never discards a deterministic finding the external set
// missed.
package merge

import (
	"strings"

	"github.com/declog/declog/internal/classifier"
	"github.com/declog/declog/internal/models"
)

// similarityThreshold is the significant-word overlap, relative to the
// smaller word set, above which two titles name the same topic.
const similarityThreshold = 0.65

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "go": {}, "going": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "lets": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"should": {}, "that": {}, "the": {}, "this": {}, "to": {}, "use": {},
	"we": {}, "weve": {}, "will": {}, "with": {},
}

// Candidates merges the external set into the deterministic base.
// An empty or nil external set is the identity operation.
func Candidates(base, external *models.CandidateSet) *models.CandidateSet {
	if base == nil {
		base = &models.CandidateSet{}
	}
	if external == nil || (len(external.Decisions) == 0 && len(external.Responsibilities) == 0) {
		// Identity: an empty external set must not disturb the baseline,
		// so the dedup passes are skipped entirely.
		return cloneSet(base)
	}
	out := &models.CandidateSet{
		Decisions:        mergeDecisions(base.Decisions, external.Decisions),
		Responsibilities: mergeResponsibilities(base.Responsibilities, external.Responsibilities),
	}
	return out
}

func mergeDecisions(base, external []models.DecisionCandidate) []models.DecisionCandidate {
	merged := make([]models.DecisionCandidate, len(base))
	for i, c := range base {
		merged[i] = cloneDecision(c)
	}

	for _, ext := range external {
		idx := matchByEvidence(merged, ext.Evidence)
		if idx >= 0 {
			// The external source is presumed richer when it agrees
			// evidentially: its fields win, the evidence unions.
			ev := unionEvidence(merged[idx].Evidence, ext.Evidence)
			enriched := cloneDecision(ext)
			enriched.ID = merged[idx].ID
			enriched.Evidence = ev
			if enriched.Title == "" {
				enriched.Title = merged[idx].Title
			}
			// An evidential match is the topic the baseline already keyed.
			// Keep that thread identity so resolution appends to the
			// existing thread instead of opening a second one under the
			// external grouping key.
			if merged[idx].GroupKey != "" {
				enriched.GroupKey = merged[idx].GroupKey
			} else {
				enriched.GroupKey = classifier.NormalizeKey(merged[idx].Title)
			}
			merged[idx] = enriched
			continue
		}
		// Net-new external finding, keyed by its grouping key.
		nc := cloneDecision(ext)
		if nc.ID == "" {
			if nc.GroupKey != "" {
				nc.ID = classifier.CandidateID(nc.GroupKey)
			} else {
				nc.ID = classifier.CandidateID(nc.Title)
			}
		}
		merged = append(merged, nc)
	}

	merged = collapseByGroupKey(merged)
	merged = collapseBySimilarity(merged)
	return merged
}

func matchByEvidence(cands []models.DecisionCandidate, evidence []string) int {
	for i, c := range cands {
		for _, fp := range evidence {
			for _, have := range c.Evidence {
				if have == fp {
					return i
				}
			}
		}
	}
	return -1
}

// collapseByGroupKey merges survivors sharing the same non-empty external
// grouping key: highest confidence wins, evidence unions.
func collapseByGroupKey(cands []models.DecisionCandidate) []models.DecisionCandidate {
	byKey := make(map[string]int)
	var out []models.DecisionCandidate
	for _, c := range cands {
		if c.GroupKey == "" {
			out = append(out, c)
			continue
		}
		if i, dup := byKey[c.GroupKey]; dup {
			out[i] = combineDecisions(out[i], c)
			continue
		}
		byKey[c.GroupKey] = len(out)
		out = append(out, c)
	}
	return out
}

// collapseBySimilarity merges survivors whose titles overlap above the
// fuzzy threshold even when their grouping keys differ.
func collapseBySimilarity(cands []models.DecisionCandidate) []models.DecisionCandidate {
	var out []models.DecisionCandidate
	for _, c := range cands {
		matched := -1
		for i, kept := range out {
			if TitleSimilarity(kept.Title, c.Title) >= similarityThreshold {
				matched = i
				break
			}
		}
		if matched >= 0 {
			out[matched] = combineDecisions(out[matched], c)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// combineDecisions keeps the higher-confidence candidate and unions the
// evidence of both.
func combineDecisions(a, b models.DecisionCandidate) models.DecisionCandidate {
	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}
	winner.Evidence = unionEvidence(winner.Evidence, loser.Evidence)
	if winner.GroupKey == "" {
		winner.GroupKey = loser.GroupKey
	}
	return winner
}

func mergeResponsibilities(base, external []models.ResponsibilityCandidate) []models.ResponsibilityCandidate {
	merged := make([]models.ResponsibilityCandidate, len(base))
	for i, c := range base {
		merged[i] = cloneResponsibility(c)
	}

	for _, ext := range external {
		idx := matchRespByEvidence(merged, ext.Evidence)
		if idx >= 0 {
			ev := unionEvidence(merged[idx].Evidence, ext.Evidence)
			enriched := cloneResponsibility(ext)
			enriched.ID = merged[idx].ID
			enriched.Evidence = ev
			if enriched.Owner == "" {
				enriched.Owner = merged[idx].Owner
			}
			if enriched.Task == "" {
				enriched.Task = merged[idx].Task
			}
			merged[idx] = enriched
			continue
		}
		nc := cloneResponsibility(ext)
		if nc.ID == "" && len(nc.Evidence) > 0 {
			nc.ID = classifier.CandidateID(nc.Evidence[0])
		}
		merged = append(merged, nc)
	}

	return collapseResponsibilities(merged)
}

func matchRespByEvidence(cands []models.ResponsibilityCandidate, evidence []string) int {
	for i, c := range cands {
		for _, fp := range evidence {
			for _, have := range c.Evidence {
				if have == fp {
					return i
				}
			}
		}
	}
	return -1
}

// collapseResponsibilities dedupes by (owner, normalized task); on
// collision the candidate carrying a due date wins.
func collapseResponsibilities(cands []models.ResponsibilityCandidate) []models.ResponsibilityCandidate {
	byIdentity := make(map[string]int)
	var out []models.ResponsibilityCandidate
	for _, c := range cands {
		key := strings.ToLower(c.Owner) + "|" + classifier.NormalizeKey(c.Task)
		if i, dup := byIdentity[key]; dup {
			winner, loser := out[i], c
			if winner.DueDate == "" && loser.DueDate != "" {
				winner, loser = loser, winner
			}
			winner.Evidence = unionEvidence(winner.Evidence, loser.Evidence)
			out[i] = winner
			continue
		}
		byIdentity[key] = len(out)
		out = append(out, c)
	}
	return out
}

// TitleSimilarity is the significant-word overlap of two titles relative
// to the smaller word set, in [0, 1].
func TitleSimilarity(a, b string) float64 {
	wa := significantWords(a)
	wb := significantWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	small, large := wa, wb
	if len(wb) < len(wa) {
		small, large = wb, wa
	}
	shared := 0
	for w := range small {
		if _, ok := large[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func significantWords(title string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.Trim(w, ".,!?;:'\"()[]")
		w = strings.ReplaceAll(w, "'", "")
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func unionEvidence(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, fp := range b {
		dup := false
		for _, have := range out {
			if have == fp {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, fp)
		}
	}
	return out
}

func cloneDecision(c models.DecisionCandidate) models.DecisionCandidate {
	c.Evidence = append([]string(nil), c.Evidence...)
	return c
}

func cloneResponsibility(c models.ResponsibilityCandidate) models.ResponsibilityCandidate {
	c.Evidence = append([]string(nil), c.Evidence...)
	return c
}

func cloneSet(s *models.CandidateSet) *models.CandidateSet {
	out := &models.CandidateSet{}
	for _, c := range s.Decisions {
		out.Decisions = append(out.Decisions, cloneDecision(c))
	}
	for _, c := range s.Responsibilities {
		out.Responsibilities = append(out.Responsibilities, cloneResponsibility(c))
	}
	return out
}
