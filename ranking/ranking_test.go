package ranking

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestRankDelta(t *testing.T) {
	tests := []struct {
		name   string
		winner int
		loser  int
		want   Delta
	}{
		{name: "shutout", winner: 11, loser: 0, want: Delta{Gain: 25, Loss: -20}},
		{name: "one point margin", winner: 11, loser: 10, want: Delta{Gain: 15, Loss: -15}},
		{name: "half", winner: 10, loser: 5, want: Delta{Gain: 20, Loss: -18}},
		{name: "two point margin", winner: 11, loser: 9, want: Delta{Gain: 17, Loss: -16}},
		{name: "no points", winner: 0, loser: 0, want: Delta{Gain: 15, Loss: -15}},
		{name: "swapped", winner: 0, loser: 11, want: Delta{Gain: 25, Loss: -20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RankDelta(tt.winner, tt.loser))
		})
	}
}

func TestApplyRank(t *testing.T) {
	tests := []struct {
		name   string
		rank   int64
		change int
		want   int64
	}{
		{name: "gain", rank: 100, change: 25, want: 125},
		{name: "loss", rank: 100, change: -20, want: 80},
		{name: "clamp min", rank: -20, change: -20, want: RankMin},
		{name: "clamp max", rank: RankMax - 5, change: 25, want: RankMax},
		{name: "below min before", rank: -100, change: 5, want: RankMin},
		{name: "overflow", rank: 1<<63 - 1, change: 25, want: RankMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyRank(tt.rank, tt.change))
		})
	}
}

func TestRankMax(t *testing.T) {
	assert.Equal(t, int64(9007199254740791), RankMax)
}

func TestXP(t *testing.T) {
	assert.Equal(t, 80, XP(1, false), "ranked winner")
	assert.Equal(t, 50, XP(2, false), "ranked loser")
	assert.Equal(t, 200, XP(1, true), "tournament champion")
	assert.Equal(t, 140, XP(2, true), "tournament loser")
	assert.Equal(t, 140, XP(4, true))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, 1, Level(0))
	assert.Equal(t, 1, Level(499))
	assert.Equal(t, 2, Level(500))
	assert.Equal(t, 5, Level(2100))
	assert.Equal(t, 1, Level(-10))
}

func TestTierForRank(t *testing.T) {
	assert.Equal(t, TierBronze, TierForRank(RankMin))
	assert.Equal(t, TierBronze, TierForRank(99))
	assert.Equal(t, TierSilver, TierForRank(100))
	assert.Equal(t, TierGold, TierForRank(300))
	assert.Equal(t, TierPlatinum, TierForRank(999))
	assert.Equal(t, TierDiamond, TierForRank(RankMax))
}
