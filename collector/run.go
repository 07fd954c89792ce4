package collector

import (
	"context"

	"github.com/Monika731/SecureEVoting/protocol"
)

// RunTally drives the post-close half of the protocol: compute this
// instance's aggregates, exchange share aggregates with the peer, and decode
// the final tally. It must be called after the accept loop has stopped.
func (c *Collector) RunTally(ctx context.Context) (*protocol.TallyResult, error) {
	if err := c.Aggregate(); err != nil {
		return nil, err
	}
	if err := c.ExchangeAggregates(ctx); err != nil {
		return nil, err
	}

	tally, err := c.DecodeTally()
	if err != nil {
		return nil, err
	}

	for i, cand := range tally.Candidates {
		c.log.Info("final tally", "candidate", cand, "votes", tally.Counts[i])
	}
	return tally, nil
}
