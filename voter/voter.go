// Package voter implements the per-voter protocol client: a strictly
// sequential state machine that acquires blinding shares from both
// collectors, resolves a unique location share, encodes and blinds the vote,
// and submits the secret ballot to both collectors.
package voter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/Monika731/SecureEVoting/protocol"
)

// ShareAllocator resolves a proposed location share into a globally unique
// assignment. allocator.Client and allocator.Allocator both satisfy it.
type ShareAllocator interface {
	Commit(ctx context.Context, proposed int) (assigned int, done bool, err error)
}

// Config parametrizes one voter agent.
type Config struct {
	// VoterID is the voter's 1-based identifier, known to both collectors.
	VoterID int

	// Choice is the 0-based index into the election's candidate list.
	Choice int

	Election *protocol.ElectionConfig

	// PrimaryAddr and SecondaryAddr are the two collectors' voting
	// endpoints, contacted in this order.
	PrimaryAddr   string
	SecondaryAddr string

	Allocator ShareAllocator

	Log *slog.Logger
}

// Receipt records the outcome of a completed vote.
type Receipt struct {
	// LocationShare is the voter's assigned slot.
	LocationShare int

	// RegistryComplete reports whether this voter's commit completed the
	// electorate's assignment.
	RegistryComplete bool

	// AckTokens holds the collectors' acknowledgment tokens, primary first.
	AckTokens []string
}

// Agent drives a single voter through the protocol. Each agent is
// single-threaded; concurrency across voters happens at the process level,
// coordinated only through the shared allocator.
type Agent struct {
	cfg *Config
	log *slog.Logger

	// per-collector material gathered during AcquireShares
	primaryShares   protocol.RandomSharePair
	secondaryShares protocol.RandomSharePair
}

// New validates the configuration and creates an agent.
func New(cfg *Config) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Election == nil {
		return nil, errors.New("election config cannot be nil")
	}
	if err := cfg.Election.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoterID < 1 || cfg.VoterID > cfg.Election.TotalVoters {
		return nil, fmt.Errorf("voter identifier %d out of range [1, %d]", cfg.VoterID, cfg.Election.TotalVoters)
	}
	if cfg.Choice < 0 || cfg.Choice >= len(cfg.Election.Candidates) {
		return nil, fmt.Errorf("candidate choice %d out of range [0, %d)", cfg.Choice, len(cfg.Election.Candidates))
	}
	if cfg.PrimaryAddr == "" || cfg.SecondaryAddr == "" {
		return nil, errors.New("both collector addresses are required")
	}
	if cfg.Allocator == nil {
		return nil, errors.New("allocator cannot be nil")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Agent{cfg: cfg, log: log.With("voter", cfg.VoterID)}, nil
}

// Run executes the full voting sequence: AcquireShares, ResolveLocation,
// EncodeVote, Blind, Submit. Round trips block with no retry; any failure is
// fatal to this voter's vote, but not to the run.
func (a *Agent) Run(ctx context.Context) (*Receipt, error) {
	partialA, partialB, err := a.acquireShares(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring shares: %w", err)
	}

	location, complete, err := a.resolveLocation(ctx, partialA, partialB)
	if err != nil {
		return nil, fmt.Errorf("resolving location share: %w", err)
	}
	a.log.Info("unique location share assigned", "location", location)

	encoded, err := a.cfg.Election.EncodeVote(location, a.cfg.Choice)
	if err != nil {
		return nil, fmt.Errorf("encoding vote: %w", err)
	}
	ballot := encoded.Blind(a.primaryShares, a.secondaryShares)

	tokens, err := a.submit(ctx, ballot)
	if err != nil {
		return nil, fmt.Errorf("submitting ballot: %w", err)
	}

	a.log.Info("ballot submitted to both collectors", "location", location)
	return &Receipt{
		LocationShare:    location,
		RegistryComplete: complete,
		AckTokens:        tokens,
	}, nil
}

// acquireShares contacts the primary collector, then the secondary, each
// over one blocking round trip, and stores the random share pairs separately.
func (a *Agent) acquireShares(ctx context.Context) (int64, int64, error) {
	partialA, pairA, err := a.requestShares(ctx, a.cfg.PrimaryAddr)
	if err != nil {
		return 0, 0, fmt.Errorf("primary collector: %w", err)
	}
	a.primaryShares = pairA

	partialB, pairB, err := a.requestShares(ctx, a.cfg.SecondaryAddr)
	if err != nil {
		return 0, 0, fmt.Errorf("secondary collector: %w", err)
	}
	a.secondaryShares = pairB

	return partialA, partialB, nil
}

func (a *Agent) requestShares(ctx context.Context, addr string) (int64, protocol.RandomSharePair, error) {
	line, err := a.roundTrip(ctx, addr, protocol.FormatShareRequest(a.cfg.VoterID))
	if err != nil {
		return 0, protocol.RandomSharePair{}, err
	}
	partial, pair, err := protocol.ParseShareResponse(line)
	if err != nil {
		return 0, protocol.RandomSharePair{}, err
	}
	a.log.Info("received shares", "collector", addr, "partial", partial, "r1", pair.R1, "r2", pair.R2)
	return partial, pair, nil
}

// resolveLocation combines both collectors' partial values into a proposal
// and commits it with the allocator for a unique assignment. The sum is
// reduced modulo the voter count with 0 mapping to the count (1-based).
func (a *Agent) resolveLocation(ctx context.Context, partialA, partialB int64) (int, bool, error) {
	total := int64(a.cfg.Election.TotalVoters)
	proposed := (partialA + partialB) % total
	if proposed <= 0 {
		proposed += total
	}
	return a.cfg.Allocator.Commit(ctx, int(proposed))
}

// submit sends the identical secret ballot to both collectors and collects
// their acknowledgment tokens.
func (a *Agent) submit(ctx context.Context, ballot *protocol.SecretBallot) ([]string, error) {
	frame := protocol.FormatBallot(ballot)
	tokens := make([]string, 0, 2)
	for _, addr := range []string{a.cfg.PrimaryAddr, a.cfg.SecondaryAddr} {
		line, err := a.roundTrip(ctx, addr, frame)
		if err != nil {
			return nil, fmt.Errorf("collector %s: %w", addr, err)
		}
		token, err := protocol.ParseAck(line)
		if err != nil {
			return nil, fmt.Errorf("collector %s: %w", addr, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// roundTrip performs one synchronous, single-shot exchange: dial, send one
// frame, read one frame. There is no timeout and no retry; a hang is an
// operator-visible fatal condition, cancellable only through ctx.
func (a *Agent) roundTrip(ctx context.Context, addr, frame string) (string, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", err
		}
	}

	if err := protocol.WriteFrame(conn, frame); err != nil {
		return "", err
	}
	return protocol.ReadFrame(bufio.NewReader(conn))
}
