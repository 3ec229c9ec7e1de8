package inference

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// Provider output is untrusted: it may arrive fenced in markdown, with
// trailing prose, or structurally broken. Sanitize strips the wrapping,
// repairs the JSON if needed, then validates item by item, dropping
// malformed entries while keeping the well-formed rest of the response.

type rawPayload struct {
	Decisions        []json.RawMessage `json:"decisions"`
	Responsibilities []json.RawMessage `json:"responsibilities"`
}

type rawDecision struct {
	GroupKey    string  `json:"group_key"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	DecidedAt   string  `json:"decided_at"`
	Evidence    []int   `json:"evidence"`
}

type rawResponsibility struct {
	Title       string `json:"title"`
	Owner       string `json:"owner"`
	DueDate     string `json:"due_date"`
	Description string `json:"description"`
	Evidence    int    `json:"evidence"`
}

// Sanitize parses and validates one provider response. batchSize bounds
// the valid evidence ref range. An unparseable envelope is an error; a
// malformed item inside a parseable envelope is silently dropped.
func Sanitize(response string, batchSize int) (*Result, error) {
	cleaned := stripFences(response)

	if !json.Valid([]byte(cleaned)) {
		repaired, err := jsonrepair.JSONRepair(cleaned)
		if err != nil {
			return nil, fmt.Errorf("unrepairable provider response: %w", err)
		}
		cleaned = repaired
	}

	var payload rawPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("malformed provider response: %w", err)
	}

	result := &Result{}
	for _, item := range payload.Decisions {
		var d rawDecision
		if err := json.Unmarshal(item, &d); err != nil {
			continue
		}
		dec, ok := validateDecision(d, batchSize)
		if !ok {
			continue
		}
		result.Decisions = append(result.Decisions, dec)
	}
	for _, item := range payload.Responsibilities {
		var r rawResponsibility
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		resp, ok := validateResponsibility(r, batchSize)
		if !ok {
			continue
		}
		result.Responsibilities = append(result.Responsibilities, resp)
	}
	return result, nil
}

func validateDecision(d rawDecision, batchSize int) (Decision, bool) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return Decision{}, false
	}
	evidence := validRefs(d.Evidence, batchSize)
	if len(evidence) == 0 {
		return Decision{}, false
	}

	status := strings.ToLower(strings.TrimSpace(d.Status))
	switch status {
	case "final", "tentative", "open":
	default:
		status = "tentative"
	}

	conf := int(d.Confidence)
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}

	var decidedAt time.Time
	if d.DecidedAt != "" {
		if ts, err := time.Parse(time.RFC3339, d.DecidedAt); err == nil {
			decidedAt = ts.UTC()
		}
	}

	return Decision{
		GroupKey:    strings.TrimSpace(d.GroupKey),
		Title:       title,
		Status:      status,
		Confidence:  conf,
		Explanation: strings.TrimSpace(d.Explanation),
		DecidedAt:   decidedAt,
		Evidence:    evidence,
	}, true
}

func validateResponsibility(r rawResponsibility, batchSize int) (Responsibility, bool) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return Responsibility{}, false
	}
	if r.Evidence < 0 || r.Evidence >= batchSize {
		return Responsibility{}, false
	}
	return Responsibility{
		Title:       title,
		Owner:       strings.TrimSpace(r.Owner),
		DueDate:     strings.TrimSpace(r.DueDate),
		Description: strings.TrimSpace(r.Description),
		Evidence:    r.Evidence,
	}, true
}

func validRefs(refs []int, batchSize int) []int {
	var out []int
	for _, ref := range refs {
		if ref < 0 || ref >= batchSize {
			continue
		}
		dup := false
		for _, have := range out {
			if have == ref {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ref)
		}
	}
	return out
}

// stripFences removes a markdown code fence and any prose around the
// outermost JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
