package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/declog/declog/internal/models"
	"github.com/declog/declog/internal/storage"
)

const scope = "team-chat"

func seedMessage(t *testing.T, store storage.Store, fp string) {
	t.Helper()
	_, err := store.InsertMessage(context.Background(), &models.Message{
		Fingerprint: fp,
		Scope:       scope,
		Sender:      "Alice",
		Timestamp:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Body:        "body for " + fp,
	})
	require.NoError(t, err)
}

func decision(title, explanation string, conf int, evidence ...string) models.DecisionCandidate {
	return models.DecisionCandidate{
		ID:          title,
		Title:       title,
		Status:      models.DecisionFinal,
		Confidence:  conf,
		Explanation: explanation,
		DecidedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Evidence:    evidence,
	}
}

func TestResolveCreatesThreadAndVersionOne(t *testing.T) {
	store := storage.NewMemoryStore()
	seedMessage(t, store, "fp1")
	r := New(store, zap.NewNop())

	report, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Decisions: []models.DecisionCandidate{decision("Use Postgres", "Use Postgres", 80, "fp1")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DecisionsPersisted)

	thread, err := store.GetThread(context.Background(), scope, "use-postgres")
	require.NoError(t, err)

	latest, err := store.LatestVersion(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)
	assert.True(t, latest.Latest)
	assert.Equal(t, models.DecisionFinal, latest.Status)
	assert.Equal(t, []string{"fp1"}, latest.Evidence)
}

func TestResolveIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	seedMessage(t, store, "fp1")
	r := New(store, zap.NewNop())

	set := &models.CandidateSet{
		Decisions: []models.DecisionCandidate{decision("Use Postgres", "Use Postgres", 80, "fp1")},
	}
	_, err := r.Resolve(context.Background(), scope, set)
	require.NoError(t, err)

	second, err := r.Resolve(context.Background(), scope, set)
	require.NoError(t, err)
	assert.Equal(t, 0, second.DecisionsPersisted)

	thread, err := store.GetThread(context.Background(), scope, "use-postgres")
	require.NoError(t, err)
	versions, err := store.ListVersions(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestResolveChangedOutcomeBumpsVersion(t *testing.T) {
	store := storage.NewMemoryStore()
	seedMessage(t, store, "fp1")
	seedMessage(t, store, "fp2")
	r := New(store, zap.NewNop())

	_, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Decisions: []models.DecisionCandidate{decision("Use Postgres", "Use Postgres for everything", 80, "fp1")},
	})
	require.NoError(t, err)

	// Same thread key, genuinely new outcome: must persist as version 2,
	// not silently vanish behind the version-1 duplicate skip.
	report, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Decisions: []models.DecisionCandidate{decision("Use Postgres", "Use Postgres only for OLTP", 80, "fp2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DecisionsPersisted)

	thread, err := store.GetThread(context.Background(), scope, "use-postgres")
	require.NoError(t, err)
	versions, err := store.ListVersions(context.Background(), thread.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, models.DecisionSuperseded, versions[0].Status)
	assert.False(t, versions[0].Latest)

	assert.Equal(t, 2, versions[1].Version)
	assert.True(t, versions[1].Latest)
}

func TestResolveMonotonicVersionsSingleLatest(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(store, zap.NewNop())
	for i, fp := range []string{"fp1", "fp2", "fp3"} {
		seedMessage(t, store, fp)
		_, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
			Decisions: []models.DecisionCandidate{
				decision("Use Postgres", "outcome revision "+string(rune('a'+i)), 80, fp),
			},
		})
		require.NoError(t, err)
	}

	thread, err := store.GetThread(context.Background(), scope, "use-postgres")
	require.NoError(t, err)
	versions, err := store.ListVersions(context.Background(), thread.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	latestCount := 0
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
		if v.Latest {
			latestCount++
		}
	}
	assert.Equal(t, 1, latestCount)
}

func TestResolveDropsCandidateWithoutEvidence(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(store, zap.NewNop())

	report, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Decisions: []models.DecisionCandidate{decision("Use Postgres", "Use Postgres", 80, "never-stored")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DecisionsDropped)
	assert.Equal(t, 0, report.DecisionsPersisted)

	_, err = store.GetThread(context.Background(), scope, "use-postgres")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResolveConflictedCandidates(t *testing.T) {
	store := storage.NewMemoryStore()
	seedMessage(t, store, "fp1")
	seedMessage(t, store, "fp2")
	r := New(store, zap.NewNop())

	a := decision("Deploy on Friday", "ship friday", 80, "fp1")
	a.GroupKey = "deploy-window"
	b := decision("Deploy next Monday", "ship monday", 80, "fp2")
	b.GroupKey = "deploy-window"

	report, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Decisions: []models.DecisionCandidate{a, b},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DecisionsConflicted)

	thread, err := store.GetThread(context.Background(), scope, "deploy-window")
	require.NoError(t, err)
	latest, err := store.LatestVersion(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionConflicted, latest.Status)
}

func TestResolveConfidenceGapAvoidsConflict(t *testing.T) {
	store := storage.NewMemoryStore()
	seedMessage(t, store, "fp1")
	seedMessage(t, store, "fp2")
	r := New(store, zap.NewNop())

	a := decision("Deploy on Friday", "ship friday", 85, "fp1")
	a.GroupKey = "deploy-window"
	b := decision("Deploy next Monday", "ship monday", 60, "fp2")
	b.GroupKey = "deploy-window"

	report, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Decisions: []models.DecisionCandidate{a, b},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.DecisionsConflicted)

	thread, err := store.GetThread(context.Background(), scope, "deploy-window")
	require.NoError(t, err)
	latest, err := store.LatestVersion(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deploy on Friday", latest.Title)
	assert.Equal(t, models.DecisionFinal, latest.Status)
}

func TestResolveResponsibilityLifecycle(t *testing.T) {
	store := storage.NewMemoryStore()
	seedMessage(t, store, "fp1")
	seedMessage(t, store, "fp2")
	r := New(store, zap.NewNop())

	first, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Responsibilities: []models.ResponsibilityCandidate{
			{Owner: "Bob", Task: "Send the report", Evidence: []string{"fp1"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ResponsibilitiesNew)

	// Same identity with a due date: updated in place, not duplicated.
	second, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Responsibilities: []models.ResponsibilityCandidate{
			{Owner: "Bob", Task: "Send the report", DueDate: "friday", Evidence: []string{"fp2"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, second.ResponsibilitiesNew)
	assert.Equal(t, 1, second.ResponsibilitiesUpd)

	stored, err := store.GetResponsibility(context.Background(), scope, "Bob", "send-the-report")
	require.NoError(t, err)
	assert.Equal(t, "friday", stored.DueDate)
	assert.Equal(t, models.ResponsibilityOpen, stored.Status)

	all, err := store.ListResponsibilities(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.ElementsMatch(t, []string{"fp1", "fp2"}, all[0].Evidence)
}

func TestResolveResponsibilityWithoutEvidenceDropped(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(store, zap.NewNop())

	report, err := r.Resolve(context.Background(), scope, &models.CandidateSet{
		Responsibilities: []models.ResponsibilityCandidate{
			{Owner: "Bob", Task: "Send the report", Evidence: []string{"missing"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ResponsibilitiesDrop)

	all, err := store.ListResponsibilities(context.Background(), scope)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestThreadKeyPrefersGroupKey(t *testing.T) {
	c := models.DecisionCandidate{GroupKey: "DB Choice", Title: "something else"}
	assert.Equal(t, "db-choice", ThreadKey(c))

	c.GroupKey = ""
	assert.Equal(t, "something-else", ThreadKey(c))
}
