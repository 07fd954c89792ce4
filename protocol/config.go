package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ElectionConfig is the read-only election descriptor shared by all
// participants. It is produced by an out-of-scope setup step and immutable
// for the duration of a run.
type ElectionConfig struct {
	// Candidates is the ordered list of candidate identifiers. Order matters:
	// the intra-chunk bit offset of a vote maps to a candidate by list index.
	Candidates []string `json:"candidates"`

	// TotalVoters is the number of eligible voters, which is also the number
	// of location slots in the shared positional vector.
	TotalVoters int `json:"total_voters"`
}

// LoadElectionConfig reads and validates an election descriptor from a JSON
// file. A missing or structurally invalid file is a precondition failure:
// the caller must not proceed.
func LoadElectionConfig(path string) (*ElectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading election config %q: %w", path, err)
	}

	var cfg ElectionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing election config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid election config %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the structural invariants of the descriptor.
func (c *ElectionConfig) Validate() error {
	if len(c.Candidates) == 0 {
		return errors.New("no candidates")
	}
	if c.TotalVoters <= 0 {
		return fmt.Errorf("total_voters must be positive, got %d", c.TotalVoters)
	}
	seen := make(map[string]bool, len(c.Candidates))
	for _, cand := range c.Candidates {
		if cand == "" {
			return errors.New("empty candidate identifier")
		}
		if seen[cand] {
			return fmt.Errorf("duplicate candidate %q", cand)
		}
		seen[cand] = true
	}
	return nil
}

// VectorBits returns N, the length in bits of the shared positional vector:
// one slot of len(Candidates) bits per voter.
func (c *ElectionConfig) VectorBits() int {
	return c.TotalVoters * len(c.Candidates)
}
