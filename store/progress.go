package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v4"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/ranking"
	"time"
)

// Progress is the rank and experience of a player.
type Progress struct {
	UserID messages.UserID
	// Rank is the clamped rank points.
	Rank int64
	// XP is the total experience.
	XP int64
	// UpdatedAt is the time of the last change. It is zero for players without
	// any finished match.
	UpdatedAt time.Time
}

// Tier returns the ranking.Tier for the rank.
func (p Progress) Tier() ranking.Tier {
	return ranking.TierForRank(p.Rank)
}

// Level returns the level for the experience.
func (p Progress) Level() int {
	return ranking.Level(p.XP)
}

func (m *Mall) progressQuery(userID messages.UserID, forUpdate bool) (string, error) {
	ds := m.dialect.From(goqu.T("player_progress")).
		Select(goqu.C("rank"),
			goqu.C("xp"),
			goqu.C("updated_at")).
		Where(goqu.C("user_id").Eq(userID))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	q, _, err := ds.ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, errors.Details{"user_id": userID})
	}
	return q, nil
}

// scanProgress scans the progress of the given user. Unknown players have zero
// progress.
func scanProgress(row pgx.Row, userID messages.UserID, q string) (Progress, error) {
	progress := Progress{UserID: userID}
	err := row.Scan(&progress.Rank, &progress.XP, &progress.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Progress{UserID: userID}, nil
	}
	if err != nil {
		return Progress{}, errors.NewScanDBRowError(err, "scan progress", q)
	}
	return progress, nil
}

// PlayerProgress retrieves the Progress of the given player. Unknown players
// have zero progress.
func (m *Mall) PlayerProgress(ctx context.Context, userID messages.UserID) (Progress, error) {
	q, err := m.progressQuery(userID, false)
	if err != nil {
		return Progress{}, errors.Wrap(err, "progress query", nil)
	}
	progress, err := scanProgress(m.db.QueryRow(ctx, q), userID, q)
	if err != nil {
		return Progress{}, errors.Wrap(err, "scan progress", nil)
	}
	return progress, nil
}

// upsertProgressQuery builds the query for setting the progress of a player.
func (m *Mall) upsertProgressQuery(progress Progress) (string, error) {
	q, _, err := m.dialect.Insert(goqu.T("player_progress")).Rows(goqu.Record{
		"user_id":    progress.UserID,
		"rank":       progress.Rank,
		"xp":         progress.XP,
		"updated_at": progress.UpdatedAt,
	}).OnConflict(goqu.DoUpdate("user_id", goqu.Record{
		"rank":       progress.Rank,
		"xp":         progress.XP,
		"updated_at": progress.UpdatedAt,
	})).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, errors.Details{"user_id": progress.UserID})
	}
	return q, nil
}

// ApplyProgress adds the rank change and experience to the progress of the
// given player. The rank is clamped. The new Progress is returned.
func (m *Mall) ApplyProgress(ctx context.Context, userID messages.UserID, rankChange int, xpGain int) (Progress, error) {
	// Begin tx.
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return Progress{}, errors.NewDBTxBeginError(err)
	}
	defer m.rollbackTx(ctx, tx, "apply progress failed")
	// Lock current progress.
	q, err := m.progressQuery(userID, true)
	if err != nil {
		return Progress{}, errors.Wrap(err, "progress query", nil)
	}
	progress, err := scanProgress(tx.QueryRow(ctx, q), userID, q)
	if err != nil {
		return Progress{}, errors.Wrap(err, "scan progress", nil)
	}
	progress.Rank = ranking.ApplyRank(progress.Rank, rankChange)
	progress.XP += int64(xpGain)
	if progress.XP < 0 {
		progress.XP = 0
	}
	progress.UpdatedAt = time.Now().UTC()
	// Upsert.
	q, err = m.upsertProgressQuery(progress)
	if err != nil {
		return Progress{}, errors.Wrap(err, "upsert query", nil)
	}
	_, err = tx.Exec(ctx, q)
	if err != nil {
		return Progress{}, errors.NewExecQueryError(err, "exec upsert progress", q)
	}
	// Commit.
	err = tx.Commit(ctx)
	if err != nil {
		return Progress{}, errors.NewDBTxCommitError(err)
	}
	return progress, nil
}
