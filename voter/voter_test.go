package voter

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Monika731/SecureEVoting/protocol"
)

func testElection() *protocol.ElectionConfig {
	return &protocol.ElectionConfig{Candidates: []string{"R", "D"}, TotalVoters: 2}
}

// recordingAllocator captures the proposed value and returns a fixed
// assignment.
type recordingAllocator struct {
	mu       sync.Mutex
	proposed []int
	assign   int
	done     bool
}

func (r *recordingAllocator) Commit(ctx context.Context, proposed int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposed = append(r.proposed, proposed)
	return r.assign, r.done, nil
}

// fakeCollector is a minimal scripted voting endpoint: fixed partial and
// random shares, fixed ack token.
type fakeCollector struct {
	t       *testing.T
	ln      net.Listener
	partial int64
	pair    protocol.RandomSharePair

	mu      sync.Mutex
	ballots []*protocol.SecretBallot
}

func startFakeCollector(t *testing.T, partial int64, pair protocol.RandomSharePair) *fakeCollector {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeCollector{t: t, ln: ln, partial: partial, pair: pair}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeCollector) addr() string { return f.ln.Addr().String() }

func (f *fakeCollector) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			line, err := protocol.ReadFrame(bufio.NewReader(conn))
			if err != nil {
				return
			}
			switch protocol.ClassifyFrame(line) {
			case protocol.FrameShareRequest:
				protocol.WriteFrame(conn, protocol.FormatShareResponse(f.partial, f.pair))
			case protocol.FrameBallot:
				ballot, err := protocol.ParseBallot(line)
				if err != nil {
					return
				}
				f.mu.Lock()
				f.ballots = append(f.ballots, ballot)
				n := len(f.ballots)
				f.mu.Unlock()
				protocol.WriteFrame(conn, protocol.FormatAck("tok-"+strconv.Itoa(n)))
			}
		}()
	}
}

func TestNewValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			VoterID:       1,
			Choice:        0,
			Election:      testElection(),
			PrimaryAddr:   "127.0.0.1:1",
			SecondaryAddr: "127.0.0.1:2",
			Allocator:     &recordingAllocator{assign: 1},
		}
	}

	_, err := New(valid())
	require.NoError(t, err)

	_, err = New(nil)
	require.Error(t, err)

	cfg := valid()
	cfg.VoterID = 0
	_, err = New(cfg)
	require.Error(t, err)

	cfg = valid()
	cfg.VoterID = 3
	_, err = New(cfg)
	require.Error(t, err)

	cfg = valid()
	cfg.Choice = 2
	_, err = New(cfg)
	require.Error(t, err)

	cfg = valid()
	cfg.PrimaryAddr = ""
	_, err = New(cfg)
	require.Error(t, err)

	cfg = valid()
	cfg.Allocator = nil
	_, err = New(cfg)
	require.Error(t, err)
}

// TestRunProposalDerivation checks the location proposal is the sum of both
// partial values reduced mod total voters, with non-positive results wrapped
// into [1, total].
func TestRunProposalDerivation(t *testing.T) {
	cases := []struct {
		partialA, partialB int64
		wantProposed       int
	}{
		{3, 4, 1},   // 7 mod 2 = 1
		{2, 2, 2},   // 4 mod 2 = 0 -> 2
		{-5, 2, 1},  // -3 mod 2 -> -1 -> 1
		{-4, 0, 2},  // -4 mod 2 = 0 -> 2
	}

	for _, tc := range cases {
		primary := startFakeCollector(t, tc.partialA, protocol.RandomSharePair{R1: 1, R2: 2})
		secondary := startFakeCollector(t, tc.partialB, protocol.RandomSharePair{R1: 3, R2: 4})
		alloc := &recordingAllocator{assign: 1}

		agent, err := New(&Config{
			VoterID:       1,
			Choice:        0,
			Election:      testElection(),
			PrimaryAddr:   primary.addr(),
			SecondaryAddr: secondary.addr(),
			Allocator:     alloc,
		})
		require.NoError(t, err)

		_, err = agent.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, []int{tc.wantProposed}, alloc.proposed,
			"partials %d + %d", tc.partialA, tc.partialB)
	}
}

// TestRunSubmitsIdenticalBlindedBallot verifies both collectors receive the
// same secret ballot, correctly blinded with both share pairs.
func TestRunSubmitsIdenticalBlindedBallot(t *testing.T) {
	election := testElection()
	pairA := protocol.RandomSharePair{R1: 3, R2: 5}
	pairB := protocol.RandomSharePair{R1: 7, R2: 1}
	primary := startFakeCollector(t, 1, pairA)
	secondary := startFakeCollector(t, 2, pairB)

	agent, err := New(&Config{
		VoterID:       1,
		Choice:        1, // "D"
		Election:      election,
		PrimaryAddr:   primary.addr(),
		SecondaryAddr: secondary.addr(),
		Allocator:     &recordingAllocator{assign: 2, done: true},
	})
	require.NoError(t, err)

	receipt, err := agent.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, receipt.LocationShare)
	require.True(t, receipt.RegistryComplete)
	require.Len(t, receipt.AckTokens, 2)

	// Expected ballot: vote "D" at location 2 -> pos 3.
	enc, err := election.EncodeVote(2, 1)
	require.NoError(t, err)
	want := enc.Blind(pairA, pairB)

	for _, f := range []*fakeCollector{primary, secondary} {
		f.mu.Lock()
		require.Len(t, f.ballots, 1)
		require.Equal(t, want.S1, f.ballots[0].S1)
		require.Equal(t, want.S2, f.ballots[0].S2)
		f.mu.Unlock()
	}
}

// TestRunFailsFastWhenCollectorUnreachable: a dead collector is fatal to
// this voter's vote and surfaces as an error.
func TestRunFailsFastWhenCollectorUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	agent, err := New(&Config{
		VoterID:       1,
		Choice:        0,
		Election:      testElection(),
		PrimaryAddr:   deadAddr,
		SecondaryAddr: deadAddr,
		Allocator:     &recordingAllocator{assign: 1},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = agent.Run(ctx)
	require.Error(t, err)
}
