package learning_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofounder/internal/db"
	"cofounder/internal/domain"
	"cofounder/internal/learning"
	"cofounder/internal/migrate"
	"cofounder/internal/repo"
)

const testBusiness = "biz-1"

type testStore struct {
	DB   *sql.DB
	Repo repo.Repo
	Ctx  context.Context
}

func newTestStore(t *testing.T) testStore {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	ctx := context.Background()
	r := repo.Repo{DB: conn}
	require.NoError(t, r.InsertBusiness(ctx, domain.Business{
		ID: testBusiness, Name: "Test Plumbing", Industry: "plumbing",
		Status: "active", CreatedAt: "2024-01-01T00:00:00Z",
	}))
	return testStore{DB: conn, Repo: r, Ctx: ctx}
}

func newProcessor(s testStore) learning.Processor {
	p := learning.NewProcessor(s.DB)
	p.Now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	return p
}

func seedDecision(t *testing.T, s testStore, dtype domain.DecisionType, text string) domain.Decision {
	t.Helper()
	d := domain.Decision{
		ID:         uuid.New().String(),
		BusinessID: testBusiness,
		Type:       dtype,
		Decision:   text,
		Reasoning:  "test reasoning",
		CreatedAt:  "2024-01-01T12:00:00Z",
	}
	require.NoError(t, s.Repo.InsertDecision(s.Ctx, d))
	return d
}

func seedPreference(t *testing.T, s testStore, category domain.PreferenceCategory, label string, confidence float64) domain.LearnedPreference {
	t.Helper()
	tx, err := s.DB.BeginTx(s.Ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	p := domain.LearnedPreference{
		ID: uuid.New().String(), BusinessID: testBusiness,
		Category: category, Preference: label, Confidence: confidence,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}
	require.NoError(t, s.Repo.InsertPreference(s.Ctx, tx, p))
	require.NoError(t, tx.Commit())
	return p
}

func findUpdate(updates []learning.PreferenceUpdate, label string) (learning.PreferenceUpdate, bool) {
	for _, u := range updates {
		if u.Preference == label {
			return u, true
		}
	}
	return learning.PreferenceUpdate{}, false
}

func TestApprovalCreatesPreference(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "I'll take care of that for you")

	analysis, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackApproved, "owner")
	require.NoError(t, err)

	update, ok := findUpdate(analysis.Updates, "collaborative")
	require.True(t, ok, "expected a collaborative update, got %+v", analysis.Updates)
	assert.Equal(t, learning.UpdateCreated, update.Kind)
	assert.InDelta(t, 0.3, update.ConfidenceAfter, 1e-9)

	stored, err := s.Repo.GetPreferenceByKey(s.Ctx, testBusiness, domain.CategoryCommunicationStyle, "collaborative")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, stored.Confidence, 1e-9)
	assert.Equal(t, []string{"I'll take care of that for you"}, stored.Examples)

	got, err := s.Repo.GetDecision(s.Ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, domain.FeedbackApproved, *got.Feedback)
}

func TestApprovalReinforcesExisting(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "collaborative", 0.5)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "We can handle that together")

	analysis, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackApproved, "owner")
	require.NoError(t, err)

	update, ok := findUpdate(analysis.Updates, "collaborative")
	require.True(t, ok)
	assert.Equal(t, learning.UpdateIncreased, update.Kind)
	assert.InDelta(t, 0.5, update.ConfidenceBefore, 1e-9)
	assert.InDelta(t, 0.6, update.ConfidenceAfter, 1e-9)
}

func TestApprovalCapsAtOne(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "collaborative", 0.95)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "Let's get this sorted")

	analysis, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackApproved, "owner")
	require.NoError(t, err)

	update, ok := findUpdate(analysis.Updates, "collaborative")
	require.True(t, ok)
	assert.InDelta(t, 1.0, update.ConfidenceAfter, 1e-9)
}

func TestRejectionDeletesAndCreatesAvoid(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "collaborative", 0.2)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "I'll take care of that for you")

	analysis, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackRejected, "owner")
	require.NoError(t, err)

	deleted, ok := findUpdate(analysis.Updates, "collaborative")
	require.True(t, ok)
	assert.Equal(t, learning.UpdateDeleted, deleted.Kind)
	assert.Zero(t, deleted.ConfidenceAfter)

	_, err = s.Repo.GetPreferenceByKey(s.Ctx, testBusiness, domain.CategoryCommunicationStyle, "collaborative")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	avoid, err := s.Repo.GetPreferenceByKey(s.Ctx, testBusiness, domain.CategoryCommunicationStyle, "avoid:collaborative")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, avoid.Confidence, 1e-9)
}

func TestRejectionLowersWithoutDeleting(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "collaborative", 0.7)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "We can handle that together")

	analysis, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackRejected, "owner")
	require.NoError(t, err)

	update, ok := findUpdate(analysis.Updates, "collaborative")
	require.True(t, ok)
	assert.Equal(t, learning.UpdateDecreased, update.Kind)
	assert.InDelta(t, 0.45, update.ConfidenceAfter, 1e-9)
}

func TestModifiedFloorsAtPointOne(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "collaborative", 0.12)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "Let's tweak this a bit")

	analysis, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackModified, "owner")
	require.NoError(t, err)

	update, ok := findUpdate(analysis.Updates, "collaborative")
	require.True(t, ok)
	assert.Equal(t, learning.UpdateDecreased, update.Kind)
	assert.InDelta(t, 0.1, update.ConfidenceAfter, 1e-9)

	stored, err := s.Repo.GetPreferenceByKey(s.Ctx, testBusiness, domain.CategoryCommunicationStyle, "collaborative")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, stored.Confidence, 1e-9)
}

func TestModifiedDoesNotCreate(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "I'll take care of that for you")

	_, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackModified, "owner")
	require.NoError(t, err)

	_, err = s.Repo.GetPreferenceByKey(s.Ctx, testBusiness, domain.CategoryCommunicationStyle, "collaborative")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestFeedbackUnknownDecision(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)

	_, err := p.ProcessFeedback(s.Ctx, testBusiness, "missing", domain.FeedbackApproved, "owner")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRepeatedFeedbackAccumulates(t *testing.T) {
	s := newTestStore(t)
	p := newProcessor(s)
	d := seedDecision(t, s, domain.DecisionMessageResponse, "I'll take care of that for you")

	_, err := p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackApproved, "owner")
	require.NoError(t, err)
	_, err = p.ProcessFeedback(s.Ctx, testBusiness, d.ID, domain.FeedbackApproved, "owner")
	require.NoError(t, err)

	stored, err := s.Repo.GetPreferenceByKey(s.Ctx, testBusiness, domain.CategoryCommunicationStyle, "collaborative")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, stored.Confidence, 1e-9)
}
