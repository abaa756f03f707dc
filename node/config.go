// Package node wires the consensus, mempool, and store packages into a
// running chain: a single Engine owns chain state behind one writer lock, a
// Miner assembles and searches for blocks, and a Checkpoint verifier gates
// fast bootstrap.
package node

import (
	"fmt"
	"strings"

	"ledgerforge.dev/node/crypto"
	"ledgerforge.dev/node/mempool"
)

// Config is the full set of operator-tunable parameters for a running node.
type Config struct {
	Network      string
	DataDir      string
	BindAddr     string
	LogLevel     string
	MaxPeers     int
	Peers        []string
	MinerAddress string

	MempoolLimits mempool.Limits
}

// DefaultConfig returns the baseline configuration a fresh node starts from.
func DefaultConfig() Config {
	return Config{
		Network:       "testnet",
		DataDir:       "./data",
		BindAddr:      "0.0.0.0:9833",
		LogLevel:      "info",
		MaxPeers:      32,
		MempoolLimits: mempool.DefaultLimits(),
	}
}

// NetworkParam resolves cfg.Network to the crypto address prefix it implies.
func (c Config) NetworkParam() (crypto.Network, error) {
	switch strings.ToLower(c.Network) {
	case "mainnet":
		return crypto.Mainnet, nil
	case "testnet", "devnet":
		return crypto.Testnet, nil
	default:
		return 0, fmt.Errorf("node: unknown network %q", c.Network)
	}
}

// ValidateConfig rejects an unusable configuration before any I/O happens.
func ValidateConfig(cfg Config) error {
	if _, err := cfg.NetworkParam(); err != nil {
		return err
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("node: datadir required")
	}
	if cfg.MaxPeers <= 0 {
		return fmt.Errorf("node: max_peers must be positive")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("node: unknown log level %q", cfg.LogLevel)
	}
	return nil
}

// NormalizePeers dedupes and trims a peer-address list gathered from
// multiple CLI flags (comma-separated and repeated -peer).
func NormalizePeers(raw ...string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(raw))
	for _, group := range raw {
		for _, p := range strings.Split(group, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
