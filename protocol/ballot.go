package protocol

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomSharePair is a pair of ephemeral blinding values generated by one
// collector for one voter. Each pair is consumed into that collector's share
// aggregate and never individually retrievable afterwards.
type RandomSharePair struct {
	R1 int64 `json:"r1"`
	R2 int64 `json:"r2"`
}

// randomShareRange bounds each blinding value to [1, randomShareRange].
const randomShareRange = 10

// NewRandomSharePair draws a fresh pair of blinding values.
func NewRandomSharePair() RandomSharePair {
	return RandomSharePair{
		R1: randInt64(1, randomShareRange),
		R2: randInt64(1, randomShareRange),
	}
}

// randInt64 returns a uniform value in [lo, hi].
func randInt64(lo, hi int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		// crypto/rand on a broken platform is unrecoverable.
		panic(fmt.Sprintf("random source failure: %v", err))
	}
	return lo + n.Int64()
}

// EncodedBallot carries the voter's one-hot vote bit as two structurally
// different but information-equivalent power-of-two integers: Number1 counts
// the bit position from the right end of the vector, Number2 from the left.
type EncodedBallot struct {
	Number1 *big.Int
	Number2 *big.Int
}

// SecretBallot is the blinded form of an EncodedBallot, submitted identically
// to both collectors. It is recoverable only in aggregate, after both
// collectors disclose their share aggregates to each other.
type SecretBallot struct {
	S1 *big.Int
	S2 *big.Int
}

// VoteBitPosition returns the index of the voter's set bit in the positional
// vector: slot (location-1) holds len(candidates) consecutive bits, one per
// candidate in list order. location is 1-based, choice is 0-based.
func (c *ElectionConfig) VoteBitPosition(location, choice int) (int, error) {
	if location < 1 || location > c.TotalVoters {
		return 0, fmt.Errorf("location share %d out of range [1, %d]", location, c.TotalVoters)
	}
	if choice < 0 || choice >= len(c.Candidates) {
		return 0, fmt.Errorf("candidate choice %d out of range [0, %d)", choice, len(c.Candidates))
	}
	return (location-1)*len(c.Candidates) + choice, nil
}

// EncodeVote builds the two power-of-two encodings of a one-hot vote at the
// given location for the given candidate index.
func (c *ElectionConfig) EncodeVote(location, choice int) (*EncodedBallot, error) {
	pos, err := c.VoteBitPosition(location, choice)
	if err != nil {
		return nil, err
	}
	n := c.VectorBits()
	return &EncodedBallot{
		Number1: new(big.Int).Lsh(big.NewInt(1), uint(pos)),
		Number2: new(big.Int).Lsh(big.NewInt(1), uint(n-1-pos)),
	}, nil
}

// Blind applies both collectors' random share pairs to the encoded ballot.
// The sum of all shares cancels exactly during decode, so the blinded values
// are identical on both collectors' wires.
func (b *EncodedBallot) Blind(a, p RandomSharePair) *SecretBallot {
	s1 := new(big.Int).Set(b.Number1)
	s1.Add(s1, big.NewInt(a.R1))
	s1.Add(s1, big.NewInt(p.R1))

	s2 := new(big.Int).Set(b.Number2)
	s2.Add(s2, big.NewInt(a.R2))
	s2.Add(s2, big.NewInt(p.R2))

	return &SecretBallot{S1: s1, S2: s2}
}
