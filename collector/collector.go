// Package collector implements one of the two role-tagged aggregation
// services. A collector serves blinding shares to voters, ingests blinded
// ballots, aggregates both once voting closes, exchanges its share aggregate
// with its peer, and decodes the final tally.
//
// The two instances run identical logic and differ only in role and port
// bindings. The role fixes the ordering of the peer exchange so the two
// single-shot connections cannot deadlock.
package collector

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/Monika731/SecureEVoting/protocol"
)

// Role distinguishes the two collector instances.
type Role string

const (
	// RolePrimary receives the peer aggregate first, then sends its own.
	RolePrimary Role = "primary"
	// RoleSecondary sends its aggregate first, then receives.
	RoleSecondary Role = "secondary"
)

// Valid returns true if the role is recognized.
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleSecondary
}

// Phase is the collector's lifecycle state.
type Phase int32

const (
	// PhaseAccepting: the accept loop is open for share requests and ballots.
	PhaseAccepting Phase = iota
	// PhaseAggregating: voting is closed; aggregation and peer exchange run.
	PhaseAggregating
	// PhaseDone: the tally has been decoded.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseAccepting:
		return "accepting"
	case PhaseAggregating:
		return "aggregating"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Config parametrizes one collector instance.
type Config struct {
	Role     Role
	Election *protocol.ElectionConfig

	// ListenAddr is the voting endpoint (shares, ballots, CLOSE).
	ListenAddr string

	// PeerDialAddr is the peer's aggregate-receive endpoint; PeerListenAddr
	// is where this instance receives the peer's aggregate.
	PeerDialAddr   string
	PeerListenAddr string

	// PeerExchangeTimeout bounds the whole peer exchange, dial retries
	// included. Zero means DefaultPeerExchangeTimeout.
	PeerExchangeTimeout time.Duration

	// RequireExactBallots gates aggregation on having received exactly
	// TotalVoters ballots, surfacing silently lost or duplicated ballots
	// before they distort the tally.
	RequireExactBallots bool

	Log *slog.Logger
}

// DefaultPeerExchangeTimeout bounds the peer exchange when the config does
// not say otherwise.
const DefaultPeerExchangeTimeout = 30 * time.Second

// partialShareSpread widens the per-voter partial location values to
// [-spread*V, spread*V] so the two collectors' independently drawn values
// rarely collide before the uniqueness loop kicks in.
const partialShareSpread = 10

var (
	// ErrVotingClosed rejects share requests and ballots after the close.
	ErrVotingClosed = errors.New("voting is closed")

	// ErrBallotCountMismatch reports the exact-count gate failing.
	ErrBallotCountMismatch = errors.New("ballot count does not match electorate size")

	// ErrNotAggregated guards operations that need computed aggregates.
	ErrNotAggregated = errors.New("aggregates not yet computed")
)

// Collector holds one instance's protocol state. All mutable state is
// guarded by a single mutex; every read and write is fully serialized.
type Collector struct {
	cfg      *Config
	election *protocol.ElectionConfig
	log      *slog.Logger

	// partials holds one fixed unique partial location value per voter
	// index, generated once at startup.
	partials []int64

	phase atomic.Int32

	mu                 sync.Mutex
	receivedBallots    []*protocol.SecretBallot
	generatedShares    []protocol.RandomSharePair
	ballotAggregate    *protocol.Aggregate
	ownShareAggregate  *protocol.Aggregate
	peerShareAggregate *protocol.Aggregate
}

// New creates a collector and pre-generates its unique partial location
// values.
func New(cfg *Config) (*Collector, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", cfg.Role)
	}
	if cfg.Election == nil {
		return nil, errors.New("election config cannot be nil")
	}
	if err := cfg.Election.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("role", cfg.Role)

	c := &Collector{
		cfg:      cfg,
		election: cfg.Election,
		log:      log,
		partials: generateUniquePartials(cfg.Election.TotalVoters),
	}
	c.phase.Store(int32(PhaseAccepting))
	return c, nil
}

// generateUniquePartials draws one distinct value per voter index from a
// wide range, so the sum of the two collectors' values spreads proposals
// across the location slots.
func generateUniquePartials(totalVoters int) []int64 {
	spread := int64(partialShareSpread * totalVoters)
	seen := make(map[int64]bool, totalVoters)
	partials := make([]int64, 0, totalVoters)
	for len(partials) < totalVoters {
		v := randInt64(-spread, spread)
		if seen[v] {
			continue
		}
		seen[v] = true
		partials = append(partials, v)
	}
	return partials
}

func randInt64(lo, hi int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		panic(fmt.Sprintf("random source failure: %v", err))
	}
	return lo + n.Int64()
}

// Phase returns the current lifecycle phase.
func (c *Collector) Phase() Phase {
	return Phase(c.phase.Load())
}

// Role returns the instance's role.
func (c *Collector) Role() Role {
	return c.cfg.Role
}

// Close transitions the collector from accepting to aggregating. It returns
// true on the first call; later calls are no-ops. The transition is
// deterministic and observable, replacing the interactive operator barrier.
func (c *Collector) Close() bool {
	if !c.phase.CompareAndSwap(int32(PhaseAccepting), int32(PhaseAggregating)) {
		return false
	}
	c.log.Info("voting closed, accept phase over")
	return true
}

// HandleShareRequest serves a voter's share request: the voter's fixed
// partial location value plus a fresh random share pair, which is recorded
// into this collector's share ledger.
func (c *Collector) HandleShareRequest(voterID int) (int64, protocol.RandomSharePair, error) {
	if c.Phase() != PhaseAccepting {
		return 0, protocol.RandomSharePair{}, ErrVotingClosed
	}
	if voterID < 1 || voterID > len(c.partials) {
		return 0, protocol.RandomSharePair{}, fmt.Errorf("voter identifier %d out of range [1, %d]", voterID, len(c.partials))
	}

	pair := protocol.NewRandomSharePair()

	c.mu.Lock()
	c.generatedShares = append(c.generatedShares, pair)
	c.mu.Unlock()

	partial := c.partials[voterID-1]
	c.log.Info("served shares", "voter", voterID, "partial", partial, "r1", pair.R1, "r2", pair.R2)
	return partial, pair, nil
}

// HandleBallot records a secret ballot and returns an acknowledgment token.
// There is deliberately no legitimacy or duplicate check: any well-formed
// submission is accepted as-is.
func (c *Collector) HandleBallot(ballot *protocol.SecretBallot) (string, error) {
	if c.Phase() != PhaseAccepting {
		return "", ErrVotingClosed
	}

	c.mu.Lock()
	c.receivedBallots = append(c.receivedBallots, ballot)
	count := len(c.receivedBallots)
	c.mu.Unlock()

	token := uuid.NewString()
	c.log.Info("received secret ballot", "count", count, "token", token)
	return token, nil
}

// Aggregate computes the ballot and own-share aggregates, exactly once,
// after the accept phase has closed. With RequireExactBallots set it fails
// unless exactly TotalVoters ballots are present.
func (c *Collector) Aggregate() error {
	if c.Phase() == PhaseAccepting {
		return errors.New("cannot aggregate while accepting votes")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ballotAggregate != nil {
		return errors.New("aggregates already computed")
	}

	if c.cfg.RequireExactBallots && len(c.receivedBallots) != c.election.TotalVoters {
		return fmt.Errorf("%w: got %d, want %d",
			ErrBallotCountMismatch, len(c.receivedBallots), c.election.TotalVoters)
	}

	if len(c.receivedBallots) == 0 {
		c.log.Warn("no secret ballots received")
	}
	if len(c.generatedShares) == 0 {
		c.log.Warn("no random shares generated")
	}

	c.ballotAggregate = protocol.SumBallots(c.receivedBallots)
	c.ownShareAggregate = protocol.SumShares(c.generatedShares)

	c.log.Info("aggregates computed",
		"ballots", len(c.receivedBallots),
		"shares", len(c.generatedShares),
		"ballotAggregate", c.ballotAggregate.V1.String()+","+c.ballotAggregate.V2.String(),
		"shareAggregate", c.ownShareAggregate.V1.String()+","+c.ownShareAggregate.V2.String())
	return nil
}

// OwnShareAggregate returns the computed share aggregate for disclosure to
// the peer.
func (c *Collector) OwnShareAggregate() (*protocol.Aggregate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ownShareAggregate == nil {
		return nil, ErrNotAggregated
	}
	return c.ownShareAggregate.Clone(), nil
}

// setPeerAggregate stores the aggregate received from the peer. Write-once.
func (c *Collector) setPeerAggregate(agg *protocol.Aggregate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peerShareAggregate != nil {
		return errors.New("peer aggregate already received")
	}
	c.peerShareAggregate = agg.Clone()
	c.log.Info("received peer share aggregate", "v1", agg.V1.String(), "v2", agg.V2.String())
	return nil
}

// FinalResult unblinds the ballot aggregate once both share aggregates are
// known.
func (c *Collector) FinalResult() (*protocol.Aggregate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ballotAggregate == nil || c.ownShareAggregate == nil || c.peerShareAggregate == nil {
		return nil, ErrNotAggregated
	}
	return protocol.Unblind(c.ballotAggregate, c.ownShareAggregate, c.peerShareAggregate), nil
}

// DecodeTally decodes the per-candidate counts from the final result. The
// decode is pure; calling it repeatedly yields identical results.
func (c *Collector) DecodeTally() (*protocol.TallyResult, error) {
	final, err := c.FinalResult()
	if err != nil {
		return nil, err
	}
	tally, err := c.election.DecodeTally(final)
	if err != nil {
		return nil, fmt.Errorf("decoding tally: %w", err)
	}
	c.phase.Store(int32(PhaseDone))
	return tally, nil
}

// Status is a point-in-time snapshot for the admin surface.
type Status struct {
	Role            Role   `json:"role"`
	Phase           string `json:"phase"`
	TotalVoters     int    `json:"total_voters"`
	ReceivedBallots int    `json:"received_ballots"`
	GeneratedShares int    `json:"generated_shares"`
}

// Status reports the collector's current state.
func (c *Collector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Role:            c.cfg.Role,
		Phase:           c.Phase().String(),
		TotalVoters:     c.election.TotalVoters,
		ReceivedBallots: len(c.receivedBallots),
		GeneratedShares: len(c.generatedShares),
	}
}

func (c *Collector) peerExchangeTimeout() time.Duration {
	if c.cfg.PeerExchangeTimeout > 0 {
		return c.cfg.PeerExchangeTimeout
	}
	return DefaultPeerExchangeTimeout
}
