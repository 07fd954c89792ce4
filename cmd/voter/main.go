// Command voter casts a single anonymous ballot.
//
// The voter requests blinding shares from both collectors, commits a unique
// location share through the allocator service, encodes and blinds the
// ballot, and submits the same blinded ballot to both collectors.
//
// # Usage
//
//	go run ./cmd/voter --id=1 --candidate=R \
//	    --primary=127.0.0.1:65432 --secondary=127.0.0.1:65433 \
//	    --allocator=http://127.0.0.1:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Monika731/SecureEVoting/allocator"
	"github.com/Monika731/SecureEVoting/cmd/common"
	"github.com/Monika731/SecureEVoting/protocol"
	"github.com/Monika731/SecureEVoting/voter"
)

func main() {
	var (
		electionPath  = flag.String("election", "election_config.json", "Election descriptor JSON file")
		voterID       = flag.Int("id", 0, "Voter identifier (1-based)")
		candidate     = flag.String("candidate", "", "Candidate name to vote for")
		choice        = flag.Int("choice", -1, "Candidate index (0-based, alternative to --candidate)")
		primaryAddr   = flag.String("primary", "127.0.0.1:65432", "Primary collector voting endpoint")
		secondaryAddr = flag.String("secondary", "127.0.0.1:65433", "Secondary collector voting endpoint")
		allocatorURL  = flag.String("allocator", "http://127.0.0.1:8080", "Allocator service base URL")
		timeout       = flag.Duration("timeout", 30*time.Second, "Overall deadline for the vote")
		debug         = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	log := common.NewLogger(*debug)

	election, err := protocol.LoadElectionConfig(*electionPath)
	if err != nil {
		log.Error("could not load election config", "err", err)
		os.Exit(1)
	}

	idx := *choice
	if *candidate != "" {
		idx, err = candidateIndex(election, *candidate)
		if err != nil {
			log.Error("invalid candidate", "err", err)
			os.Exit(1)
		}
	}

	agent, err := voter.New(&voter.Config{
		VoterID:       *voterID,
		Choice:        idx,
		Election:      election,
		PrimaryAddr:   *primaryAddr,
		SecondaryAddr: *secondaryAddr,
		Allocator:     allocator.NewClient(*allocatorURL),
		Log:           log,
	})
	if err != nil {
		log.Error("could not create voter", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	receipt, err := agent.Run(ctx)
	if err != nil {
		log.Error("vote failed", "err", err)
		os.Exit(1)
	}

	log.Info("vote cast",
		"voterID", *voterID,
		"locationShare", receipt.LocationShare,
		"registryComplete", receipt.RegistryComplete,
		"acks", receipt.AckTokens,
	)
}

func candidateIndex(election *protocol.ElectionConfig, name string) (int, error) {
	for i, c := range election.Candidates {
		if c == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("candidate %q is not in %v", name, election.Candidates)
}
