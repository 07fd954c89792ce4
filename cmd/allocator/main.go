// Command allocator runs the location share allocation service.
//
// The allocator is the single authority that hands out unique, permuted
// voting vector slots. Voters commit a proposed location derived from their
// two partial shares; the service probes forward from the proposal until it
// finds a free slot.
//
// State lives in memory by default. Configure Postgres to survive restarts
// or to run replicas behind a shared database.
//
// # Usage
//
//	go run ./cmd/allocator --listen=:8080
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Monika731/SecureEVoting/allocator"
	"github.com/Monika731/SecureEVoting/api/httpserver"
	"github.com/Monika731/SecureEVoting/cmd/common"
	"github.com/Monika731/SecureEVoting/protocol"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Optional YAML config file (flags win)")
		electionPath = flag.String("election", "election_config.json", "Election descriptor JSON file")
		listenAddr   = flag.String("listen", "", "HTTP listen address (e.g. :8080)")
		pgHost       = flag.String("postgres-host", "", "Postgres host (empty = in-memory store)")
		pgPort       = flag.Int("postgres-port", 5432, "Postgres port")
		pgUser       = flag.String("postgres-user", "postgres", "Postgres user")
		pgPassword   = flag.String("postgres-password", "", "Postgres password")
		pgDatabase   = flag.String("postgres-db", "evoting", "Postgres database name")
		pgSSLMode    = flag.String("postgres-sslmode", "disable", "Postgres sslmode")
		enablePprof  = flag.Bool("pprof", false, "Enable pprof debugging API")
		debug        = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	log := common.NewLogger(*debug)

	file, err := common.LoadYAML[common.AllocatorFile](*configPath)
	if err != nil {
		log.Error("could not load config file", "err", err)
		os.Exit(1)
	}

	election, err := protocol.LoadElectionConfig(common.FirstNonEmpty(*electionPath, file.ElectionConfig))
	if err != nil {
		log.Error("could not load election config", "err", err)
		os.Exit(1)
	}

	var store allocator.Store
	pgConfig := &allocator.PostgresConfig{
		Host:     common.FirstNonEmpty(*pgHost, file.Postgres.Host),
		Port:     *pgPort,
		User:     common.FirstNonEmpty(*pgUser, file.Postgres.User),
		Password: common.FirstNonEmpty(*pgPassword, file.Postgres.Password),
		Database: common.FirstNonEmpty(*pgDatabase, file.Postgres.Database),
		SSLMode:  common.FirstNonEmpty(*pgSSLMode, file.Postgres.SSLMode),
	}
	if file.Postgres.Port != 0 {
		pgConfig.Port = file.Postgres.Port
	}
	if pgConfig.Host != "" {
		pgStore, err := allocator.NewPostgresStore(pgConfig)
		if err != nil {
			log.Error("could not connect to postgres", "err", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		log.Info("using postgres store", "host", pgConfig.Host, "database", pgConfig.Database)
	} else {
		store = allocator.NewMemoryStore()
		log.Info("using in-memory store")
	}

	alloc, err := allocator.New(store, election.TotalVoters, log)
	if err != nil {
		log.Error("could not create allocator", "err", err)
		os.Exit(1)
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               common.FirstNonEmpty(*listenAddr, file.ListenAddr, ":8080"),
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, allocator.NewHandler(alloc))
	if err != nil {
		log.Error("could not create server", "err", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	srv.RunInBackground()
	<-sigChan
	log.Info("shutting down")
	srv.Shutdown()
}
