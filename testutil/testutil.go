// Package testutil provides shared fixtures for tests across the module.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Monika731/SecureEVoting/protocol"
)

// NewTestElection builds an election descriptor for tests. Without arguments
// it mirrors the canonical four-candidate, three-voter setup.
func NewTestElection(totalVoters int, candidates ...string) *protocol.ElectionConfig {
	if len(candidates) == 0 {
		candidates = []string{"R", "D", "X", "Y"}
	}
	if totalVoters <= 0 {
		totalVoters = 3
	}
	return &protocol.ElectionConfig{
		Candidates:  candidates,
		TotalVoters: totalVoters,
	}
}

// WriteElectionConfig writes an election descriptor to a temporary JSON file
// and returns its path. The file is removed with the test's temp dir.
func WriteElectionConfig(t *testing.T, cfg *protocol.ElectionConfig) string {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshaling election config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "election_config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing election config: %v", err)
	}
	return path
}
