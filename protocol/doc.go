// Package protocol implements the core types and math of the two-collector
// secure-aggregation voting scheme.
//
// A voter's choice is encoded as a single set bit in a positional vector of
// length totalVoters * len(candidates). The bit position is determined by the
// voter's unique location share and the chosen candidate index. The one-hot
// vector is carried as two power-of-two integers (one counted from each end of
// the vector), blinded additively with random shares from both collectors, and
// submitted identically to both. After all ballots are in, each collector
// subtracts its own and its peer's share aggregates from the ballot aggregate
// and decodes the per-candidate counts from the recovered bit vector.
//
// The scheme is intentionally not cryptographically hardened: blinding is
// plain integer addition with no field arithmetic and no validity proofs.
// Anonymity rests on the two collectors not colluding.
package protocol
