package collector

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Monika731/SecureEVoting/protocol"
)

// freePort grabs an ephemeral loopback port. The listener is closed before
// use; the tiny reuse race is acceptable for tests.
func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// newExchangePair builds a primary/secondary pair wired to each other's
// aggregate endpoints, each loaded with known shares and already aggregated.
func newExchangePair(t *testing.T) (*Collector, *Collector) {
	t.Helper()
	primaryRecv := freePort(t)
	secondaryRecv := freePort(t)

	primary := newTestCollector(t, &Config{
		Role:                RolePrimary,
		PeerListenAddr:      primaryRecv,
		PeerDialAddr:        secondaryRecv,
		PeerExchangeTimeout: 10 * time.Second,
	})
	secondary := newTestCollector(t, &Config{
		Role:                RoleSecondary,
		PeerListenAddr:      secondaryRecv,
		PeerDialAddr:        primaryRecv,
		PeerExchangeTimeout: 10 * time.Second,
	})

	for i, c := range []*Collector{primary, secondary} {
		c.mu.Lock()
		c.generatedShares = []protocol.RandomSharePair{
			{R1: int64(10 * (i + 1)), R2: int64(100 * (i + 1))},
		}
		c.mu.Unlock()
		c.Close()
		require.NoError(t, c.Aggregate())
	}
	return primary, secondary
}

// TestExchangeDeadlockFree verifies the fixed role ordering completes the
// exchange regardless of which side starts first.
func TestExchangeDeadlockFree(t *testing.T) {
	for _, firstStarter := range []Role{RolePrimary, RoleSecondary} {
		t.Run(fmt.Sprintf("%s-first", firstStarter), func(t *testing.T) {
			primary, secondary := newExchangePair(t)
			ctx := context.Background()

			first, second := primary, secondary
			if firstStarter == RoleSecondary {
				first, second = secondary, primary
			}

			errs := make(chan error, 2)
			go func() { errs <- first.ExchangeAggregates(ctx) }()
			// Stagger the second starter to exercise the dial retry path.
			time.Sleep(300 * time.Millisecond)
			go func() { errs <- second.ExchangeAggregates(ctx) }()

			for i := 0; i < 2; i++ {
				select {
				case err := <-errs:
					require.NoError(t, err)
				case <-time.After(15 * time.Second):
					t.Fatal("peer exchange deadlocked")
				}
			}

			// Each side holds the other's share aggregate exactly.
			require.Equal(t, big.NewInt(20), primary.peerShareAggregate.V1)
			require.Equal(t, big.NewInt(200), primary.peerShareAggregate.V2)
			require.Equal(t, big.NewInt(10), secondary.peerShareAggregate.V1)
			require.Equal(t, big.NewInt(100), secondary.peerShareAggregate.V2)
		})
	}
}

// TestExchangeDeadlineSurfacesError checks a missing peer produces a bounded,
// explicit failure rather than a hang.
func TestExchangeDeadlineSurfacesError(t *testing.T) {
	c := newTestCollector(t, &Config{
		Role:                RoleSecondary,
		PeerListenAddr:      freePort(t),
		PeerDialAddr:        freePort(t), // nobody listening
		PeerExchangeTimeout: 1 * time.Second,
	})
	c.Close()
	require.NoError(t, c.Aggregate())

	start := time.Now()
	err := c.ExchangeAggregates(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestExchangeRequiresAggregates(t *testing.T) {
	c := newTestCollector(t, &Config{Role: RolePrimary})
	err := c.ExchangeAggregates(context.Background())
	require.ErrorIs(t, err, ErrNotAggregated)
}

// TestFullTallyAcrossPair runs both halves of the post-close protocol end to
// end: two collectors, two voters' worth of shares and ballots, exchange,
// and matching decoded tallies on both sides.
func TestFullTallyAcrossPair(t *testing.T) {
	primary, secondary := newExchangePairWithBallots(t)
	ctx := context.Background()

	type result struct {
		tally *protocol.TallyResult
		err   error
	}
	results := make(chan result, 2)
	go func() {
		tally, err := primary.RunTally(ctx)
		results <- result{tally, err}
	}()
	go func() {
		tally, err := secondary.RunTally(ctx)
		results <- result{tally, err}
	}()

	var tallies []*protocol.TallyResult
	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			require.NoError(t, res.err)
			tallies = append(tallies, res.tally)
		case <-time.After(15 * time.Second):
			t.Fatal("tally did not complete")
		}
	}

	for _, tally := range tallies {
		require.Equal(t, 1, tally.Count("R"))
		require.Equal(t, 1, tally.Count("D"))
	}
}

// newExchangePairWithBallots wires a pair and feeds both the same two
// blinded ballots, built from shares served by each collector.
func newExchangePairWithBallots(t *testing.T) (*Collector, *Collector) {
	t.Helper()
	primaryRecv := freePort(t)
	secondaryRecv := freePort(t)
	election := testElection()

	primary := newTestCollector(t, &Config{
		Role:                RolePrimary,
		Election:            election,
		PeerListenAddr:      primaryRecv,
		PeerDialAddr:        secondaryRecv,
		PeerExchangeTimeout: 10 * time.Second,
		RequireExactBallots: true,
	})
	secondary := newTestCollector(t, &Config{
		Role:                RoleSecondary,
		Election:            election,
		PeerListenAddr:      secondaryRecv,
		PeerDialAddr:        primaryRecv,
		PeerExchangeTimeout: 10 * time.Second,
		RequireExactBallots: true,
	})

	for voter, vote := range []struct{ location, choice int }{{1, 0}, {2, 1}} {
		_, pairA, err := primary.HandleShareRequest(voter + 1)
		require.NoError(t, err)
		_, pairB, err := secondary.HandleShareRequest(voter + 1)
		require.NoError(t, err)

		enc, err := election.EncodeVote(vote.location, vote.choice)
		require.NoError(t, err)
		ballot := enc.Blind(pairA, pairB)

		_, err = primary.HandleBallot(ballot)
		require.NoError(t, err)
		_, err = secondary.HandleBallot(ballot)
		require.NoError(t, err)
	}

	primary.Close()
	secondary.Close()
	return primary, secondary
}
