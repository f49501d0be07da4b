package store

import (
	"context"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/ranking"
	"sync"
	"time"
)

// Memory keeps progress and match history in memory. It is used when no
// database is configured.
type Memory struct {
	m        sync.Mutex
	progress map[messages.UserID]Progress
	history  []MatchHistoryEntry
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		progress: make(map[messages.UserID]Progress),
	}
}

// PlayerProgress returns the Progress of the given player. Unknown players have
// zero progress.
func (s *Memory) PlayerProgress(_ context.Context, userID messages.UserID) (Progress, error) {
	s.m.Lock()
	defer s.m.Unlock()
	progress, ok := s.progress[userID]
	if !ok {
		return Progress{UserID: userID}, nil
	}
	return progress, nil
}

// ApplyProgress adds the rank change and experience to the progress of the
// given player.
func (s *Memory) ApplyProgress(_ context.Context, userID messages.UserID, rankChange int, xpGain int) (Progress, error) {
	s.m.Lock()
	defer s.m.Unlock()
	progress, ok := s.progress[userID]
	if !ok {
		progress = Progress{UserID: userID}
	}
	progress.Rank = ranking.ApplyRank(progress.Rank, rankChange)
	progress.XP += int64(xpGain)
	if progress.XP < 0 {
		progress.XP = 0
	}
	progress.UpdatedAt = time.Now().UTC()
	s.progress[userID] = progress
	return progress, nil
}

// AppendMatchHistory appends the given entry.
func (s *Memory) AppendMatchHistory(_ context.Context, entry MatchHistoryEntry) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.history = append(s.history, entry)
	return nil
}

// MatchHistory returns all appended entries.
func (s *Memory) MatchHistory() []MatchHistoryEntry {
	s.m.Lock()
	defer s.m.Unlock()
	history := make([]MatchHistoryEntry, len(s.history))
	copy(history, s.history)
	return history
}
