package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-core/internal/config"
	"github.com/spec-kit/itsm-core/internal/domain"
)

func newTestDetector() *DuplicateDetector {
	return NewDuplicateDetector(config.DuplicateConfig{
		SimilarityThreshold: 0.3,
		WindowSize:          500,
		TimeoutMillis:       250,
	}, zap.NewNop())
}

func TestSimilarityIsSymmetric(t *testing.T) {
	detector := newTestDetector()

	a := "printer on the fourth floor is jamming constantly"
	b := "fourth floor printer keeps jamming"
	assert.InDelta(t, detector.Similarity(a, b), detector.Similarity(b, a), 1e-9)
}

func TestSimilarityOfIdenticalTextsIsOne(t *testing.T) {
	detector := newTestDetector()

	text := "cannot reach the staging database from the office network"
	assert.Equal(t, 1.0, detector.Similarity(text, text))

	// Texts with no usable tokens compare as identical too.
	assert.Equal(t, 1.0, detector.Similarity("a b c", "x y z"))
}

func TestSimilarityIgnoresShortAndStopWords(t *testing.T) {
	detector := newTestDetector()

	// Only "printer" and "jamming" survive tokenization on both sides.
	score := detector.Similarity("the printer is jamming", "this printer jamming please")
	assert.Equal(t, 1.0, score)
}

func TestFindCandidatesFiltersAndRanks(t *testing.T) {
	detector := newTestDetector()
	now := time.Now().UTC()

	candidate := &domain.Ticket{
		ID:          "TKT-4-DDDD",
		Title:       "Outlook calendar invites missing",
		Description: "Calendar invites from external partners never arrive in outlook",
	}
	recent := []domain.Ticket{
		{
			ID:          "TKT-1-AAAA",
			Title:       "Outlook calendar invites missing",
			Description: "Calendar invites from external partners never arrive in outlook",
			CreatedAt:   now.Add(-3 * time.Hour),
		},
		{
			ID:          "TKT-2-BBBB",
			Title:       "Outlook calendar invites missing for some users",
			Description: "External calendar invites never arrive",
			CreatedAt:   now.Add(-1 * time.Hour),
		},
		{
			ID:          "TKT-3-CCCC",
			Title:       "Laptop battery drains overnight",
			Description: "Battery drops from full to empty while the laptop sleeps",
			CreatedAt:   now.Add(-2 * time.Hour),
		},
	}

	candidates, err := detector.FindCandidates(context.Background(), candidate, recent)
	require.NoError(t, err)
	require.Len(t, candidates, 2, "the unrelated ticket must not appear")

	assert.Equal(t, "TKT-1-AAAA", candidates[0].TicketID, "exact duplicate ranks first")
	assert.Equal(t, 1.0, candidates[0].Score)
	assert.Equal(t, "TKT-2-BBBB", candidates[1].TicketID)
	assert.Greater(t, candidates[1].Score, 0.3)
	assert.Less(t, candidates[1].Score, 1.0)
}

func TestFindCandidatesBreaksScoreTiesByRecency(t *testing.T) {
	detector := newTestDetector()
	now := time.Now().UTC()

	candidate := &domain.Ticket{
		ID:          "TKT-9-XXXX",
		Title:       "Monitor flickering badly",
		Description: "External monitor flickering whenever the dock is used",
	}
	older := domain.Ticket{
		ID:          "TKT-1-AAAA",
		Title:       "Monitor flickering badly",
		Description: "External monitor flickering whenever the dock is used",
		CreatedAt:   now.Add(-6 * time.Hour),
	}
	newer := older
	newer.ID = "TKT-2-BBBB"
	newer.CreatedAt = now.Add(-1 * time.Hour)

	candidates, err := detector.FindCandidates(context.Background(), candidate, []domain.Ticket{older, newer})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "TKT-2-BBBB", candidates[0].TicketID, "ties go to the most recent ticket")
}

func TestFindCandidatesSkipsOwnID(t *testing.T) {
	detector := newTestDetector()

	candidate := &domain.Ticket{
		ID:          "TKT-1-AAAA",
		Title:       "VPN client rejects credentials",
		Description: "The VPN client rejects valid credentials since the update",
	}
	recent := []domain.Ticket{*candidate}

	candidates, err := detector.FindCandidates(context.Background(), candidate, recent)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindCandidatesTimesOutSoftly(t *testing.T) {
	detector := newTestDetector()

	candidate := &domain.Ticket{ID: "TKT-1-AAAA", Title: "anything", Description: "anything at all"}
	recent := []domain.Ticket{
		{ID: "TKT-2-BBBB", Title: "filler ticket title", Description: "filler ticket description"},
	}

	// An already-expired context degrades to an empty result plus a timeout
	// error instead of blocking.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	candidates, err := detector.FindCandidates(ctx, candidate, recent)
	require.Error(t, err)
	assert.Empty(t, candidates)
}
