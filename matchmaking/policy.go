package matchmaking

// PairingPolicy decides whether two clients may be grouped.
type PairingPolicy interface {
	Accept(a *Client, b *Client) bool
}

// AnyRank accepts all pairings.
type AnyRank struct{}

// Accept always returns true.
func (AnyRank) Accept(*Client, *Client) bool {
	return true
}

// RankTolerance accepts pairings with a rank gap of at most the given amount of
// points.
type RankTolerance int64

// Accept checks the rank gap.
func (t RankTolerance) Accept(a *Client, b *Client) bool {
	gap := a.Rank - b.Rank
	if gap < 0 {
		gap = -gap
	}
	return gap <= int64(t)
}
