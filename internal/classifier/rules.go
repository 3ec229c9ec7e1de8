package classifier

import "regexp"

// Trigger rules are data, compiled once at engine construction. Ordering
// matters: the first matching decision rule wins, so the final tier is
// listed before the tentative tier and the structural option pattern
// comes last.

// Baseline confidences per trigger tier.
const (
	finalConfidence     = 80
	tentativeConfidence = 55
	optionConfidence    = 60
)

type decisionRule struct {
	name       string
	pattern    *regexp.Regexp
	tier       decisionTier
	confidence int
}

type decisionTier int

const (
	tierFinal decisionTier = iota
	tierTentative
)

func decisionRules() []decisionRule {
	return []decisionRule{
		{"final-decided", regexp.MustCompile(`(?i)\b(we(?:'ve| have)? decided|it(?:'s| is) decided|decision(?: is)?:)`), tierFinal, finalConfidence},
		{"final-going-with", regexp.MustCompile(`(?i)\bwe(?:'re| are) going with\b`), tierFinal, finalConfidence},
		{"final-will-use", regexp.MustCompile(`(?i)\bwe (?:will|are going to) (?:use|go with|adopt)\b`), tierFinal, finalConfidence},
		{"final-settled", regexp.MustCompile(`(?i)\b(it'?s settled|final decision|signed off on|we agreed (?:on|to))\b`), tierFinal, finalConfidence},
		{"tentative-lets-go", regexp.MustCompile(`(?i)\blet'?s go with\b`), tierTentative, tentativeConfidence},
		{"tentative-suggest", regexp.MustCompile(`(?i)\b(i suggest|i propose|how about we|what if we)\b`), tierTentative, tentativeConfidence},
		{"tentative-should", regexp.MustCompile(`(?i)\bwe should (?:probably )?(?:use|go with|try|pick)\b`), tierTentative, tentativeConfidence},
		{"tentative-leaning", regexp.MustCompile(`(?i)\bleaning towards?\b`), tierTentative, tentativeConfidence},
		{"option-selection", regexp.MustCompile(`(?i)\boption\s+([A-Za-z0-9]{1,3})\b`), tierTentative, optionConfidence},
	}
}

type responsibilityRule struct {
	name    string
	pattern *regexp.Regexp
	// ownerIsSender marks first-person commitments; delegation and
	// politeness triggers leave the owner unassigned.
	ownerIsSender bool
	confidence    int
	// gate, when set, must also match for the rule to fire.
	gate *regexp.Regexp
}

func responsibilityRules() []responsibilityRule {
	return []responsibilityRule{
		{
			name:          "self-commitment",
			pattern:       regexp.MustCompile(`(?i)\b(i(?:'ll| will)|i can take|i(?:'m| am) going to|let me)\s+\w+`),
			ownerIsSender: true,
			confidence:    75,
		},
		{
			name:       "delegation",
			pattern:    regexp.MustCompile(`(?i)\b(can you|could you|you should|you need to|you(?:'ll| will) (?:need to|have to)|assigned? (?:this )?to you)\b`),
			confidence: 70,
		},
		{
			// "please" alone is conversational; require a concrete action
			// verb within three tokens after it.
			name:       "politeness-gated",
			pattern:    regexp.MustCompile(`(?i)\bplease\b(?:\s+\S+){0,2}\s+(send|review|update|check|fix|create|prepare|share|schedule|finish|draft|complete|upload|write|book|confirm)\b`),
			confidence: 65,
		},
		{
			name:          "idiomatic-commitment",
			pattern:       regexp.MustCompile(`(?i)\b(i'?m on it|consider it done|will do|leave it (?:to|with) me|i'?ve got (?:this|it)|taking this one|on my plate)\b`),
			ownerIsSender: true,
			confidence:    70,
		},
		{
			// Deadline nouns only count alongside an action or boundary
			// word; otherwise it is calendar chatter.
			name:       "deadline-mention",
			pattern:    regexp.MustCompile(`(?i)\b(deadline|due date|eod|eow|end of (?:day|week))\b`),
			gate:       regexp.MustCompile(`(?i)\b(by|before|until|submit|deliver|finish|complete|send|ship)\b`),
			confidence: 60,
		},
	}
}

// dueRe pulls a lightweight due-date phrase out of a triggering message.
var dueRe = regexp.MustCompile(`(?i)\bby\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|tonight|eod|eow|end of (?:day|week)|\d{1,2}[/.\-]\d{1,2}(?:[/.\-]\d{2,4})?)`)
