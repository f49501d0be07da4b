// Package ranking calculates rank points and experience for finished matches.
package ranking

import "math"

// Rank bounds. MaxSafeInteger is the largest integer that survives a round
// trip through a float64 JSON number.
const (
	MaxSafeInteger int64 = 1<<53 - 1
	RankMin        int64 = -30
	RankMax              = MaxSafeInteger - 200
)

// Rank delta constants.
const (
	baseChange  = 15
	gainSpread  = 10
	lossSpread  = 5
	xpBase      = 50
	xpWinBonus  = 30
	xpTournBase = 20
	// xpPerLevel is the amount of XP needed for each level.
	xpPerLevel = 500
)

// Delta is the rank change of the winner and the loser of a match.
type Delta struct {
	// Gain is the positive change for the winner.
	Gain int
	// Loss is the negative change for the loser.
	Loss int
}

// RankDelta calculates the rank change for a final score of winnerScore to
// loserScore. A one-point margin counts as a close game and yields the base
// change.
func RankDelta(winnerScore int, loserScore int) Delta {
	ratio := 0.0
	diff := math.Abs(float64(winnerScore - loserScore))
	top := math.Max(float64(winnerScore), float64(loserScore))
	if diff > 1 && top > 0 {
		ratio = math.Min(diff/top, 1)
	}
	return Delta{
		Gain: int(math.Round(baseChange + gainSpread*ratio)),
		Loss: -int(math.Round(baseChange + lossSpread*ratio)),
	}
}

// ClampRank clamps the given rank to [RankMin, RankMax].
func ClampRank(rank int64) int64 {
	if rank < RankMin {
		return RankMin
	}
	if rank > RankMax {
		return RankMax
	}
	return rank
}

// ApplyRank adds the change to the given rank and clamps the result. Overflow
// saturates at the bounds.
func ApplyRank(rank int64, change int) int64 {
	c := int64(change)
	if c > 0 && rank > RankMax-c {
		return RankMax
	}
	if c < 0 && rank < RankMin-c {
		return RankMin
	}
	return ClampRank(rank + c)
}

// XP returns the experience for finishing at the given position (1 is the
// winner). Tournament games give more experience.
func XP(position int, tournament bool) int {
	xp := xpBase
	if position == 1 {
		xp += xpWinBonus
	}
	if tournament {
		xp = (xp + xpTournBase) * 2
	}
	return xp
}

// Level returns the level for the given total experience. Levels start at 1.
func Level(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	return 1 + int(xp/xpPerLevel)
}

// Tier is the named ladder bracket of a rank.
type Tier string

// Tiers in ascending order.
const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
)

// tierThresholds holds the lowest rank of each tier above bronze.
var tierThresholds = []struct {
	min  int64
	tier Tier
}{
	{min: 1000, tier: TierDiamond},
	{min: 600, tier: TierPlatinum},
	{min: 300, tier: TierGold},
	{min: 100, tier: TierSilver},
}

// TierForRank returns the Tier for the given rank.
func TierForRank(rank int64) Tier {
	for _, t := range tierThresholds {
		if rank >= t.min {
			return t.tier
		}
	}
	return TierBronze
}
