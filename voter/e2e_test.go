package voter

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Monika731/SecureEVoting/allocator"
	"github.com/Monika731/SecureEVoting/collector"
	"github.com/Monika731/SecureEVoting/protocol"
)

// testCollector bundles a running collector instance with its server.
type testCollector struct {
	collector *collector.Collector
	server    *collector.Server
	addr      string
	served    chan error
}

func startCollector(t *testing.T, cfg *collector.Config) *testCollector {
	t.Helper()
	c, err := collector.New(cfg)
	require.NoError(t, err)
	srv := collector.NewServer(c)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), ln) }()

	return &testCollector{
		collector: c,
		server:    srv,
		addr:      ln.Addr().String(),
		served:    served,
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// TestE2E_FullElection deploys the whole system on loopback: two collectors,
// the allocator service, and one concurrent voter agent per eligible voter.
// After voting closes, both collectors aggregate, exchange share aggregates,
// and must decode identical, correct tallies.
func TestE2E_FullElection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	election := &protocol.ElectionConfig{
		Candidates:  []string{"R", "D", "X", "Y"},
		TotalVoters: 6,
	}
	// choice per 1-based voter id
	choices := []int{0, 1, 0, 2, 0, 1}
	wantCounts := map[string]int{"R": 3, "D": 2, "X": 1, "Y": 0}

	primaryRecv := freeAddr(t)
	secondaryRecv := freeAddr(t)

	primary := startCollector(t, &collector.Config{
		Role:                collector.RolePrimary,
		Election:            election,
		ListenAddr:          "127.0.0.1:0",
		PeerListenAddr:      primaryRecv,
		PeerDialAddr:        secondaryRecv,
		PeerExchangeTimeout: 15 * time.Second,
		RequireExactBallots: true,
	})
	secondary := startCollector(t, &collector.Config{
		Role:                collector.RoleSecondary,
		Election:            election,
		ListenAddr:          "127.0.0.1:0",
		PeerListenAddr:      secondaryRecv,
		PeerDialAddr:        primaryRecv,
		PeerExchangeTimeout: 15 * time.Second,
		RequireExactBallots: true,
	})

	alloc, err := allocator.New(allocator.NewMemoryStore(), election.TotalVoters, slog.Default())
	require.NoError(t, err)

	// All voters vote concurrently, coordinated only through the allocator.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		locations []int
		completed int
	)
	errs := make(chan error, election.TotalVoters)
	for id := 1; id <= election.TotalVoters; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			agent, err := New(&Config{
				VoterID:       id,
				Choice:        choices[id-1],
				Election:      election,
				PrimaryAddr:   primary.addr,
				SecondaryAddr: secondary.addr,
				Allocator:     alloc,
			})
			if err != nil {
				errs <- err
				return
			}
			receipt, err := agent.Run(context.Background())
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			locations = append(locations, receipt.LocationShare)
			if receipt.RegistryComplete {
				completed++
			}
			mu.Unlock()
			errs <- nil
		}(id)
	}
	wg.Wait()
	for i := 0; i < election.TotalVoters; i++ {
		require.NoError(t, <-errs)
	}

	// Location shares form a permutation of {1..TotalVoters}.
	sort.Ints(locations)
	for i, loc := range locations {
		require.Equal(t, i+1, loc)
	}
	require.Equal(t, 1, completed)

	// The cleared registry signals assignment completion.
	values, err := alloc.Registry(context.Background())
	require.NoError(t, err)
	require.Empty(t, values)

	// Operator closes voting on both collectors.
	primary.server.RequestClose()
	secondary.server.RequestClose()
	for _, tc := range []*testCollector{primary, secondary} {
		select {
		case err := <-tc.served:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("collector did not drain after close")
		}
	}

	// Both collectors tally independently and must agree.
	type result struct {
		tally *protocol.TallyResult
		err   error
	}
	results := make(chan result, 2)
	go func() {
		tally, err := primary.collector.RunTally(context.Background())
		results <- result{tally, err}
	}()
	go func() {
		tally, err := secondary.collector.RunTally(context.Background())
		results <- result{tally, err}
	}()

	var tallies []*protocol.TallyResult
	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			require.NoError(t, res.err)
			tallies = append(tallies, res.tally)
		case <-time.After(20 * time.Second):
			t.Fatal("tally did not complete")
		}
	}

	for _, tally := range tallies {
		for cand, want := range wantCounts {
			require.Equal(t, want, tally.Count(cand), "candidate %s", cand)
		}
	}
	require.Equal(t, tallies[0], tallies[1])
}
