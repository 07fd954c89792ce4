// Command collector runs one of the two aggregation services.
//
// A collector serves blinding shares and ingests secret ballots on its TCP
// voting endpoint until voting is closed, then aggregates, exchanges share
// aggregates with its peer, and decodes the final tally. Exactly one
// instance must run as primary and one as secondary; the roles fix the
// ordering of the peer exchange.
//
// Voting is closed by any of: a CLOSE frame on the voting endpoint, POST
// /close on the admin endpoint, or SIGINT/SIGTERM.
//
// # Usage
//
//	go run ./cmd/collector --role=primary --listen=:65432 \
//	    --peer-listen=:65435 --peer-dial=127.0.0.1:65436
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Monika731/SecureEVoting/api/httpserver"
	"github.com/Monika731/SecureEVoting/cmd/common"
	"github.com/Monika731/SecureEVoting/collector"
	"github.com/Monika731/SecureEVoting/protocol"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Optional YAML config file (flags win)")
		electionPath = flag.String("election", "election_config.json", "Election descriptor JSON file")
		listenAddr   = flag.String("listen", "", "TCP voting endpoint (e.g. :65432)")
		adminAddr    = flag.String("admin", "", "HTTP admin endpoint (empty disables)")
		role         = flag.String("role", "", "Collector role: primary or secondary")
		peerDial     = flag.String("peer-dial", "", "Peer's aggregate-receive address")
		peerListen   = flag.String("peer-listen", "", "Own aggregate-receive address")
		peerTimeout  = flag.Duration("peer-timeout", 0, "Peer exchange deadline (0 = default)")
		exact        = flag.Bool("exact", true, "Require exactly total_voters ballots before aggregating")
		debug        = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	log := common.NewLogger(*debug)

	file, err := common.LoadYAML[common.CollectorFile](*configPath)
	if err != nil {
		log.Error("could not load config file", "err", err)
		os.Exit(1)
	}

	election, err := protocol.LoadElectionConfig(common.FirstNonEmpty(*electionPath, file.ElectionConfig))
	if err != nil {
		log.Error("could not load election config", "err", err)
		os.Exit(1)
	}
	log.Info("election loaded", "candidates", election.Candidates, "totalVoters", election.TotalVoters)

	timeout := *peerTimeout
	if timeout == 0 {
		timeout = time.Duration(file.PeerExchangeTimeout)
	}

	cfg := &collector.Config{
		Role:                collector.Role(common.FirstNonEmpty(*role, file.Role)),
		Election:            election,
		ListenAddr:          common.FirstNonEmpty(*listenAddr, file.ListenAddr, ":65432"),
		PeerDialAddr:        common.FirstNonEmpty(*peerDial, file.PeerDialAddr),
		PeerListenAddr:      common.FirstNonEmpty(*peerListen, file.PeerListenAddr),
		PeerExchangeTimeout: timeout,
		RequireExactBallots: *exact || file.RequireExactBallots,
		Log:                 log,
	}

	c, err := collector.New(cfg)
	if err != nil {
		log.Error("could not create collector", "err", err)
		os.Exit(1)
	}
	srv := collector.NewServer(c)

	// Optional admin surface: status snapshot and administrative close.
	admin := common.FirstNonEmpty(*adminAddr, file.AdminAddr)
	if admin != "" {
		adminSrv, err := httpserver.New(&httpserver.HTTPServerConfig{
			ListenAddr:               admin,
			Log:                      log,
			DrainDuration:            time.Second,
			GracefulShutdownDuration: 10 * time.Second,
			ReadTimeout:              15 * time.Second,
			WriteTimeout:             15 * time.Second,
		}, collector.NewHandler(c, srv))
		if err != nil {
			log.Error("could not create admin server", "err", err)
			os.Exit(1)
		}
		adminSrv.RunInBackground()
		defer adminSrv.Shutdown()
	}

	// The operator signal is one of the close paths; the CLOSE frame and
	// the admin route are the others.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("close signal received")
		srv.RequestClose()
	}()

	ctx := context.Background()
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("voting endpoint failed", "err", err)
		os.Exit(1)
	}

	tally, err := c.RunTally(ctx)
	if err != nil {
		log.Error("tally failed", "err", err)
		os.Exit(1)
	}

	for i, cand := range tally.Candidates {
		log.Info("result", "candidate", cand, "votes", tally.Counts[i])
	}
}
