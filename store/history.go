package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"time"
)

// Match outcomes for MatchHistoryEntry.
const (
	OutcomeFinished = "finished"
	OutcomeTimedOut = "timed-out"
	OutcomeAborted  = "aborted"
)

// MatchHistoryEntry is one played match.
type MatchHistoryEntry struct {
	MatchID   messages.MatchID
	LobbyID   messages.LobbyID
	LobbyType messages.LobbyType
	Player1   messages.UserID
	Player2   messages.UserID
	Score1    int
	Score2    int
	// Winner is not set for matches without result.
	Winner     nulls.String
	Outcome    string
	DurationMS int64
	StartedAt  nulls.Time
}

func (m *Mall) appendMatchHistoryQuery(entry MatchHistoryEntry, now time.Time) (string, error) {
	q, _, err := m.dialect.Insert(goqu.T("match_history")).Rows(goqu.Record{
		"match_id":    entry.MatchID,
		"lobby_id":    entry.LobbyID,
		"lobby_type":  entry.LobbyType,
		"player_1":    entry.Player1,
		"player_2":    entry.Player2,
		"score_1":     entry.Score1,
		"score_2":     entry.Score2,
		"winner":      entry.Winner,
		"outcome":     entry.Outcome,
		"duration_ms": entry.DurationMS,
		"started_at":  entry.StartedAt,
		"recorded_at": now,
	}).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, errors.Details{"match_id": entry.MatchID})
	}
	return q, nil
}

// AppendMatchHistory appends the given entry to the match history.
func (m *Mall) AppendMatchHistory(ctx context.Context, entry MatchHistoryEntry) error {
	q, err := m.appendMatchHistoryQuery(entry, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "append query", nil)
	}
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec append match history", q)
	}
	if result.RowsAffected() != 1 {
		return errors.NewInternalError("match history entry not created", errors.Details{"query": q})
	}
	return nil
}
