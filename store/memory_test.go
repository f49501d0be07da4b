package store

import (
	"context"
	"github.com/lefinal/rally-server/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestMemoryProgress(t *testing.T) {
	s := NewMemory()
	progress, err := s.PlayerProgress(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, Progress{UserID: "alice"}, progress)

	progress, err = s.ApplyProgress(context.Background(), "alice", 25, 80)
	require.NoError(t, err)
	assert.EqualValues(t, 25, progress.Rank)
	assert.EqualValues(t, 80, progress.XP)
	assert.False(t, progress.UpdatedAt.IsZero())

	progress, err = s.ApplyProgress(context.Background(), "alice", -100, 0)
	require.NoError(t, err)
	assert.EqualValues(t, ranking.RankMin, progress.Rank, "should clamp rank")

	got, err := s.PlayerProgress(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, progress, got)
}

func TestMemoryMatchHistory(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.AppendMatchHistory(context.Background(), MatchHistoryEntry{MatchID: "a"}))
	require.NoError(t, s.AppendMatchHistory(context.Background(), MatchHistoryEntry{MatchID: "b"}))
	history := s.MatchHistory()
	require.Len(t, history, 2)
	assert.EqualValues(t, "a", history[0].MatchID)
	assert.EqualValues(t, "b", history[1].MatchID)
}
