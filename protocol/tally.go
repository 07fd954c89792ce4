package protocol

import (
	"errors"
	"fmt"
	"math/big"
)

// Aggregate is an elementwise pair sum: of secret ballots, of one collector's
// random shares, or of the final unblinded result.
type Aggregate struct {
	V1 *big.Int
	V2 *big.Int
}

// ZeroAggregate returns an aggregate with both components zero.
func ZeroAggregate() *Aggregate {
	return &Aggregate{V1: new(big.Int), V2: new(big.Int)}
}

// Clone returns an independent copy of the aggregate.
func (a *Aggregate) Clone() *Aggregate {
	return &Aggregate{V1: new(big.Int).Set(a.V1), V2: new(big.Int).Set(a.V2)}
}

// SumBallots returns the elementwise sum of all received secret ballots.
func SumBallots(ballots []*SecretBallot) *Aggregate {
	agg := ZeroAggregate()
	for _, b := range ballots {
		agg.V1.Add(agg.V1, b.S1)
		agg.V2.Add(agg.V2, b.S2)
	}
	return agg
}

// SumShares returns the elementwise sum of all generated random share pairs.
func SumShares(shares []RandomSharePair) *Aggregate {
	agg := ZeroAggregate()
	for _, s := range shares {
		agg.V1.Add(agg.V1, big.NewInt(s.R1))
		agg.V2.Add(agg.V2, big.NewInt(s.R2))
	}
	return agg
}

// Unblind recovers the final result from a collector's view. Both collectors
// compute the same value: ballots - own shares - peer shares.
func Unblind(ballots, own, peer *Aggregate) *Aggregate {
	out := ballots.Clone()
	out.V1.Sub(out.V1, own.V1)
	out.V1.Sub(out.V1, peer.V1)
	out.V2.Sub(out.V2, own.V2)
	out.V2.Sub(out.V2, peer.V2)
	return out
}

// TallyResult holds per-candidate counts decoded from a final aggregate.
// Counts preserves the election's candidate order.
type TallyResult struct {
	Candidates []string
	Counts     []int
}

// Count returns the decoded count for a candidate identifier.
func (t *TallyResult) Count(candidate string) int {
	for i, c := range t.Candidates {
		if c == candidate {
			return t.Counts[i]
		}
	}
	return 0
}

// ErrTallyDivergence is returned when the two information-equivalent ballot
// encodings decode to different per-candidate counts. Divergence signals a
// protocol or decode fault and must be surfaced, never silently resolved.
var ErrTallyDivergence = errors.New("tally decode divergence between encodings")

// DecodeTally decodes the per-candidate counts from an unblinded final
// aggregate. Both components are decoded independently; the first component
// used the mirrored power-of-two encoding so its bit string is reversed
// before chunking. The decodes must agree.
//
// Decoding is pure: calling it twice on the same aggregate yields identical
// results and mutates nothing.
func (c *ElectionConfig) DecodeTally(final *Aggregate) (*TallyResult, error) {
	first, err := c.decodeComponent(final.V1, true)
	if err != nil {
		return nil, fmt.Errorf("decoding first component: %w", err)
	}
	second, err := c.decodeComponent(final.V2, false)
	if err != nil {
		return nil, fmt.Errorf("decoding second component: %w", err)
	}

	for i := range first {
		if first[i] != second[i] {
			return nil, fmt.Errorf("%w: candidate %q counted %d and %d",
				ErrTallyDivergence, c.Candidates[i], first[i], second[i])
		}
	}

	return &TallyResult{
		Candidates: append([]string(nil), c.Candidates...),
		Counts:     first,
	}, nil
}

// decodeComponent renders one final-result component as a zero-padded binary
// string of length VectorBits, optionally reverses it, splits it into
// len(Candidates)-bit chunks (one per location slot) and counts, per
// intra-chunk offset, how many slots have that bit set.
func (c *ElectionConfig) decodeComponent(v *big.Int, reversed bool) ([]int, error) {
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative final result component %s", v)
	}
	n := c.VectorBits()
	if v.BitLen() > n {
		return nil, fmt.Errorf("final result component needs %d bits, vector has %d", v.BitLen(), n)
	}

	bits := fmt.Sprintf("%0*b", n, v)
	if reversed {
		bits = reverseString(bits)
	}

	candidateCount := len(c.Candidates)
	counts := make([]int, candidateCount)
	for chunk := 0; chunk < n; chunk += candidateCount {
		for offset := 0; offset < candidateCount; offset++ {
			if bits[chunk+offset] == '1' {
				counts[offset]++
			}
		}
	}
	return counts, nil
}

func reverseString(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
