// Package classifier is the deterministic trigger engine: it scans
// normalized messages against ordered rule tables and emits decision and
// responsibility candidates tied to the evidence message that produced
// them. It is pure; it never reads or writes persisted state.
package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/declog/declog/internal/models"
)

// maxTitleRunes caps candidate titles derived from message first lines.
const maxTitleRunes = 120

type Engine struct {
	decisions        []decisionRule
	responsibilities []responsibilityRule
}

func NewEngine() *Engine {
	return &Engine{
		decisions:        decisionRules(),
		responsibilities: responsibilityRules(),
	}
}

// Classify runs every message through the rule tables in chronological
// order and returns the pass's candidate set. Candidates producing the
// same normalized title collapse to one, with evidence merged.
func (e *Engine) Classify(msgs []models.Message) *models.CandidateSet {
	set := &models.CandidateSet{}
	decSeen := make(map[string]int)  // candidate id -> index in set.Decisions
	respSeen := make(map[string]int) // candidate id -> index in set.Responsibilities

	for _, msg := range msgs {
		if dc, ok := e.classifyDecision(msg); ok {
			if i, dup := decSeen[dc.ID]; dup {
				set.Decisions[i].Evidence = appendUnique(set.Decisions[i].Evidence, dc.Evidence...)
			} else {
				decSeen[dc.ID] = len(set.Decisions)
				set.Decisions = append(set.Decisions, dc)
			}
		}
		if rc, ok := e.classifyResponsibility(msg); ok {
			if i, dup := respSeen[rc.ID]; dup {
				set.Responsibilities[i].Evidence = appendUnique(set.Responsibilities[i].Evidence, rc.Evidence...)
			} else {
				respSeen[rc.ID] = len(set.Responsibilities)
				set.Responsibilities = append(set.Responsibilities, rc)
			}
		}
	}
	return set
}

func (e *Engine) classifyDecision(msg models.Message) (models.DecisionCandidate, bool) {
	for _, rule := range e.decisions {
		if !rule.pattern.MatchString(msg.Body) {
			continue
		}
		title := TitleFrom(msg.Body)
		status := models.DecisionFinal
		if rule.tier == tierTentative {
			status = models.DecisionTentative
		}
		return models.DecisionCandidate{
			ID:          CandidateID(title),
			Title:       title,
			Status:      status,
			Confidence:  rule.confidence,
			Explanation: title,
			DecidedAt:   msg.Timestamp,
			Evidence:    []string{msg.Fingerprint},
		}, true
	}
	return models.DecisionCandidate{}, false
}

func (e *Engine) classifyResponsibility(msg models.Message) (models.ResponsibilityCandidate, bool) {
	for _, rule := range e.responsibilities {
		if !rule.pattern.MatchString(msg.Body) {
			continue
		}
		if rule.gate != nil && !rule.gate.MatchString(msg.Body) {
			continue
		}
		task := TitleFrom(msg.Body)
		owner := models.UnassignedOwner
		if rule.ownerIsSender && msg.Sender != models.SystemSender {
			owner = msg.Sender
		}
		due := ""
		if m := dueRe.FindStringSubmatch(msg.Body); m != nil {
			due = strings.ToLower(m[1])
		}
		return models.ResponsibilityCandidate{
			ID:          CandidateID(owner + "|" + task),
			Owner:       owner,
			Task:        task,
			Description: task,
			DueDate:     due,
			Confidence:  rule.confidence,
			Evidence:    []string{msg.Fingerprint},
		}, true
	}
	return models.ResponsibilityCandidate{}, false
}

// TitleFrom derives a candidate title from the first line of a message
// body, capped and ellipsized.
func TitleFrom(body string) string {
	line := body
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		line = body[:i]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > maxTitleRunes {
		line = string(runes[:maxTitleRunes-1]) + "…"
	}
	return line
}

// NormalizeKey lowercases s and collapses every run of non-alphanumeric
// characters to a single dash. It is the shared identity normalizer for
// candidate ids, thread keys and responsibility task keys.
func NormalizeKey(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// CandidateID is the stable in-pass identity for a candidate: a short
// hash of the normalized title key.
func CandidateID(title string) string {
	sum := sha256.Sum256([]byte(NormalizeKey(title)))
	return hex.EncodeToString(sum[:8])
}

func appendUnique(dst []string, add ...string) []string {
	for _, a := range add {
		found := false
		for _, d := range dst {
			if d == a {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, a)
		}
	}
	return dst
}
