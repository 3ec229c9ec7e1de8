package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declog/declog/internal/models"
)

func baseSet() *models.CandidateSet {
	return &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{
				ID:          "det-1",
				Title:       "Let's go with option B",
				Status:      models.DecisionTentative,
				Confidence:  55,
				Explanation: "Let's go with option B",
				DecidedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
				Evidence:    []string{"fp1"},
			},
		},
		Responsibilities: []models.ResponsibilityCandidate{
			{
				ID:       "det-r1",
				Owner:    "Bob",
				Task:     "Send the report",
				Evidence: []string{"fp3"},
			},
		},
	}
}

func TestMergeEmptyExternalIsIdentity(t *testing.T) {
	base := baseSet()

	merged := Candidates(base, &models.CandidateSet{})
	assert.Equal(t, base, merged)

	merged = Candidates(base, nil)
	assert.Equal(t, base, merged)
}

func TestMergeEvidenceOverlapUnionsEvidence(t *testing.T) {
	base := baseSet()
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{
				GroupKey:    "option-b",
				Title:       "Go with option B for the rollout",
				Status:      models.DecisionFinal,
				Confidence:  90,
				Explanation: "Team confirmed option B",
				Evidence:    []string{"fp1", "fp2"},
			},
		},
	}

	merged := Candidates(base, external)
	require.Len(t, merged.Decisions, 1)

	d := merged.Decisions[0]
	// External fields win on an evidential match.
	assert.Equal(t, "Go with option B for the rollout", d.Title)
	assert.Equal(t, models.DecisionFinal, d.Status)
	assert.Equal(t, 90, d.Confidence)
	// Evidence is the union of both sides.
	assert.ElementsMatch(t, []string{"fp1", "fp2"}, d.Evidence)
	// The deterministic identity survives.
	assert.Equal(t, "det-1", d.ID)
}

func TestMergeEvidenceOverlapKeepsBaselineThreadKey(t *testing.T) {
	base := baseSet()
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{GroupKey: "option-b", Title: "Option B chosen", Status: models.DecisionFinal, Confidence: 90, Evidence: []string{"fp1"}},
		},
	}

	merged := Candidates(base, external)
	require.Len(t, merged.Decisions, 1)
	// The matched candidate resolves under the baseline's thread key, not
	// the external grouping key.
	assert.Equal(t, "let-s-go-with-option-b", merged.Decisions[0].GroupKey)
}

func TestMergeTentativeThenReactionGroupsUnderOneKey(t *testing.T) {
	// Deterministic rules saw only the trigger message; the external set
	// groups the trigger and the bare reaction under one key.
	base := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{ID: "det-1", Title: "Let's go with option B", Status: models.DecisionTentative, Confidence: 55, Evidence: []string{"fp1"}},
		},
	}
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{GroupKey: "option-b", Title: "Option B chosen", Status: models.DecisionFinal, Confidence: 85, Evidence: []string{"fp1", "fp2"}},
		},
	}

	merged := Candidates(base, external)
	require.Len(t, merged.Decisions, 1)
	assert.ElementsMatch(t, []string{"fp1", "fp2"}, merged.Decisions[0].Evidence)
}

func TestMergeKeepsUnmatchedDeterministic(t *testing.T) {
	base := baseSet()
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{GroupKey: "hiring", Title: "Freeze hiring until Q3", Status: models.DecisionFinal, Confidence: 75, Evidence: []string{"fp9"}},
		},
	}

	merged := Candidates(base, external)
	require.Len(t, merged.Decisions, 2)

	titles := []string{merged.Decisions[0].Title, merged.Decisions[1].Title}
	assert.Contains(t, titles, "Let's go with option B")
	assert.Contains(t, titles, "Freeze hiring until Q3")
}

func TestMergeNetNewExternalGetsStableID(t *testing.T) {
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{GroupKey: "hiring", Title: "Freeze hiring", Confidence: 75, Evidence: []string{"fp9"}},
		},
	}

	first := Candidates(&models.CandidateSet{}, external)
	second := Candidates(&models.CandidateSet{}, external)
	require.Len(t, first.Decisions, 1)
	assert.NotEmpty(t, first.Decisions[0].ID)
	assert.Equal(t, first.Decisions[0].ID, second.Decisions[0].ID)
}

func TestMergeExactGroupKeyCollapse(t *testing.T) {
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{GroupKey: "db-choice", Title: "Use Postgres", Confidence: 70, Evidence: []string{"fp1"}},
			{GroupKey: "db-choice", Title: "Database will be Postgres", Confidence: 85, Evidence: []string{"fp2"}},
		},
	}

	merged := Candidates(&models.CandidateSet{}, external)
	require.Len(t, merged.Decisions, 1)

	d := merged.Decisions[0]
	assert.Equal(t, 85, d.Confidence)
	assert.ElementsMatch(t, []string{"fp1", "fp2"}, d.Evidence)
}

func TestMergeFuzzyTitleCollapse(t *testing.T) {
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{GroupKey: "k1", Title: "Adopt Postgres database for storage", Confidence: 70, Evidence: []string{"fp1"}},
			{GroupKey: "k2", Title: "Postgres database storage adopted", Confidence: 80, Evidence: []string{"fp2"}},
		},
	}

	merged := Candidates(&models.CandidateSet{}, external)
	require.Len(t, merged.Decisions, 1)
	assert.Equal(t, 80, merged.Decisions[0].Confidence)
	assert.ElementsMatch(t, []string{"fp1", "fp2"}, merged.Decisions[0].Evidence)
}

func TestMergeDissimilarTitlesStaySeparate(t *testing.T) {
	external := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{
			{GroupKey: "k1", Title: "Adopt Postgres for storage", Confidence: 70, Evidence: []string{"fp1"}},
			{GroupKey: "k2", Title: "Freeze hiring until next quarter", Confidence: 80, Evidence: []string{"fp2"}},
		},
	}

	merged := Candidates(&models.CandidateSet{}, external)
	assert.Len(t, merged.Decisions, 2)
}

func TestMergeResponsibilityDueDateWins(t *testing.T) {
	base := &models.CandidateSet{
		Responsibilities: []models.ResponsibilityCandidate{
			{ID: "r1", Owner: "Bob", Task: "Send the report", Evidence: []string{"fp3"}},
		},
	}
	external := &models.CandidateSet{
		Responsibilities: []models.ResponsibilityCandidate{
			{Owner: "Bob", Task: "send the report", DueDate: "friday", Evidence: []string{"fp4"}},
		},
	}

	merged := Candidates(base, external)
	require.Len(t, merged.Responsibilities, 1)

	r := merged.Responsibilities[0]
	assert.Equal(t, "friday", r.DueDate)
	assert.ElementsMatch(t, []string{"fp3", "fp4"}, r.Evidence)
}

func TestMergeResponsibilityEvidenceOverlap(t *testing.T) {
	base := &models.CandidateSet{
		Responsibilities: []models.ResponsibilityCandidate{
			{ID: "r1", Owner: "Bob", Task: "Send the report", Evidence: []string{"fp3"}},
		},
	}
	external := &models.CandidateSet{
		Responsibilities: []models.ResponsibilityCandidate{
			{Owner: "Bob", Task: "Send the weekly report to finance", DueDate: "eod", Evidence: []string{"fp3"}},
		},
	}

	merged := Candidates(base, external)
	require.Len(t, merged.Responsibilities, 1)
	assert.Equal(t, "Send the weekly report to finance", merged.Responsibilities[0].Task)
	assert.Equal(t, "r1", merged.Responsibilities[0].ID)
}

func TestTitleSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, TitleSimilarity("use postgres database", "postgres database use case"), 0.01)
	assert.Equal(t, 0.0, TitleSimilarity("", "anything"))
	assert.Less(t, TitleSimilarity("freeze hiring this quarter", "adopt postgres storage"), 0.65)
}
