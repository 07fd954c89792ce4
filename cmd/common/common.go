// Package common provides shared utilities for the service entrypoints:
// logger construction and optional YAML configuration files mirroring the
// command-line flags.
package common

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NewLogger builds the process logger. Debug enables source locations and
// the debug level.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}))
}

// LoadYAML reads a YAML configuration file into T. An empty path yields a
// zero-valued config, so files stay optional and flags remain the default
// surface.
func LoadYAML[T any](path string) (*T, error) {
	var cfg T
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return &cfg, nil
}

// Duration wraps time.Duration so config files can use "30s" notation.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// CollectorFile is the optional YAML mirror of the collector flags.
type CollectorFile struct {
	ElectionConfig      string   `yaml:"election_config"`
	ListenAddr          string   `yaml:"listen_addr"`
	AdminAddr           string   `yaml:"admin_addr"`
	Role                string   `yaml:"role"`
	PeerDialAddr        string   `yaml:"peer_dial_addr"`
	PeerListenAddr      string   `yaml:"peer_listen_addr"`
	PeerExchangeTimeout Duration `yaml:"peer_exchange_timeout"`
	RequireExactBallots bool     `yaml:"require_exact_ballots"`
}

// AllocatorFile is the optional YAML mirror of the allocator flags.
type AllocatorFile struct {
	ElectionConfig string `yaml:"election_config"`
	ListenAddr     string `yaml:"listen_addr"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`
}

// FirstNonEmpty returns the first non-empty string, letting flags override
// file values.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
