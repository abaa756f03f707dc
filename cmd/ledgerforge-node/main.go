// Command ledgerforge-node is the CLI entrypoint for the consensus node:
// generate an operator key, initialize a fresh chain with a genesis
// allocation, mine blocks locally against the running mempool, or bring up
// a node process that restores from its on-disk store and idles for
// in-process callers (RPC/gossip transports are an integrator's concern per
// spec.md's scope; this binary wires the core only).
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ledgerforge.dev/node/consensus"
	"ledgerforge.dev/node/crypto"
	"ledgerforge.dev/node/node"
	"ledgerforge.dev/node/node/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "init":
		return runInit(rest, stdout, stderr)
	case "mine":
		return runMine(rest, stdout, stderr)
	case "run":
		return runNode(rest, stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n", sub)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: ledgerforge-node <keygen|init|mine|run> [flags]")
}

func setupLogger(levelStr string) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrus.NewEntry(log), nil
}

// --- keygen ---

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	network := fs.String("network", "testnet", "network name (mainnet|testnet|devnet)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	net, err := networkParam(*network)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "generate key: %v\n", err)
		return 1
	}
	addr := crypto.AddressOfPublicKey(net, priv.PublicKey())

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return encodeOrFail(enc, stderr, map[string]string{
		"network":     net.String(),
		"address":     addr,
		"private_key": hex.EncodeToString(priv.Bytes()),
		"public_key":  hex.EncodeToString(priv.PublicKey().SerializeCompressed()),
	})
}

func encodeOrFail(enc *json.Encoder, stderr io.Writer, v any) int {
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}

func networkParam(name string) (crypto.Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet":
		return crypto.Mainnet, nil
	case "testnet", "devnet":
		return crypto.Testnet, nil
	default:
		return 0, fmt.Errorf("unknown network %q", name)
	}
}

// --- shared flags ---

type commonFlags struct {
	network  string
	dataDir  string
	logLevel string
}

func bindCommonFlags(fs *flag.FlagSet, defaults node.Config) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.network, "network", defaults.Network, "network name (mainnet|testnet|devnet)")
	fs.StringVar(&c.dataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&c.logLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	return c
}

// --- init ---

func runInit(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := bindCommonFlags(fs, defaults)
	minerAddr := fs.String("allocate-to", "", "address receiving the genesis allocation (required)")
	allocation := fs.Uint64("allocate-amount", uint64(consensus.InitialReward), "genesis allocation in base units (1e-8 coin)")
	difficulty := fs.Uint("genesis-difficulty", 1, "genesis block difficulty_bits")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *minerAddr == "" {
		fmt.Fprintln(stderr, "init: -allocate-to is required")
		return 2
	}

	cfg := defaults
	cfg.Network, cfg.DataDir, cfg.LogLevel = common.network, common.dataDir, common.logLevel
	if err := node.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	net, err := cfg.NetworkParam()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	if err := crypto.ValidateAddress(net, *minerAddr); err != nil {
		fmt.Fprintf(stderr, "invalid -allocate-to: %v\n", err)
		return 2
	}

	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 1
	}
	db, err := store.Open(cfg.DataDir, cfg.Network)
	if err != nil {
		fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	if db.Manifest() != nil {
		fmt.Fprintln(stderr, "init: chain already initialized at this datadir")
		return 1
	}

	engine := node.NewEngine(net, db, nil, nil, unixNow, log)
	genesis, err := buildGenesisBlock(consensus.Address(*minerAddr), consensus.Amount(*allocation), uint32(*difficulty))
	if err != nil {
		fmt.Fprintf(stderr, "build genesis: %v\n", err)
		return 1
	}
	if err := engine.InitGenesis(genesis); err != nil {
		fmt.Fprintf(stderr, "init genesis: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "initialized %s chain at %s: genesis=%x allocation=%d to %s\n",
		cfg.Network, db.ChainDir(), genesis.Hash, *allocation, *minerAddr)
	return 0
}

// buildGenesisBlock mints a single pre-mine coinbase-shaped allocation to
// recipient as block 0. Real deployments may extend this with multiple
// protected reserve allocations; this CLI wires the single-recipient case.
func buildGenesisBlock(recipient consensus.Address, amount consensus.Amount, difficulty uint32) (*consensus.Block, error) {
	coinbase := consensus.Transaction{
		Sender:    consensus.CoinbaseSender,
		Recipient: recipient,
		TxType:    consensus.TxCoinbase,
		Timestamp: unixNow(),
		Outputs:   []consensus.TxOutput{{Address: recipient, Amount: amount}},
	}
	txid, err := consensus.Txid(&coinbase)
	if err != nil {
		return nil, fmt.Errorf("encode genesis coinbase: %w", err)
	}
	coinbase.Txid = txid

	merkleRoot, err := consensus.MerkleRoot([][32]byte{txid})
	if err != nil {
		return nil, fmt.Errorf("genesis merkle root: %w", err)
	}
	header := consensus.BlockHeader{
		Index:      0,
		Timestamp:  unixNow(),
		Difficulty: difficulty,
		MerkleRoot: merkleRoot,
	}
	return &consensus.Block{
		Header:       header,
		Hash:         consensus.BlockHash(header),
		Miner:        recipient,
		Transactions: []consensus.Transaction{coinbase},
	}, nil
}

// --- mine ---

func runMine(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	fs := flag.NewFlagSet("mine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := bindCommonFlags(fs, defaults)
	minerAddr := fs.String("miner", "", "address to receive coinbase rewards (required)")
	count := fs.Int("count", 1, "number of blocks to mine")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *minerAddr == "" {
		fmt.Fprintln(stderr, "mine: -miner is required")
		return 2
	}

	engine, _, cleanup, code := openExistingChain(common, stdout, stderr)
	if code != 0 {
		return code
	}
	defer cleanup()

	miner, err := node.NewMiner(engine, consensus.Address(*minerAddr), node.DefaultMinerConfig())
	if err != nil {
		fmt.Fprintf(stderr, "miner init: %v\n", err)
		return 1
	}
	blocks, err := miner.MineN(context.Background(), *count)
	for _, b := range blocks {
		fmt.Fprintf(stdout, "mined: height=%d hash=%x nonce=%d tx_count=%d\n", b.Header.Index, b.Hash, b.Header.Nonce, len(b.Transactions))
	}
	if err != nil {
		fmt.Fprintf(stderr, "mining stopped: %v\n", err)
		return 1
	}
	return 0
}

// --- run ---

func runNode(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := bindCommonFlags(fs, defaults)
	var peers multiStringFlag
	peerCSV := fs.String("peers", "", "bootstrap peers, comma-separated host:port")
	fs.Var(&peers, "peer", "single bootstrap peer host:port (repeatable)")
	maxPeers := fs.Int("max-peers", defaults.MaxPeers, "max connected peers")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	engine, _, cleanup, code := openExistingChain(common, stdout, stderr)
	if code != 0 {
		return code
	}
	defer cleanup()

	normalizedPeers := node.NormalizePeers(append([]string{*peerCSV}, peers...)...)
	tipHash, tipHeight, tipWork := engine.Tip()
	fmt.Fprintf(stdout, "chain: network=%s tip_height=%d tip_hash=%x cumulative_work=%s\n", common.network, tipHeight, tipHash, tipWork.String())
	fmt.Fprintf(stdout, "p2p: bootstrap_peers=%d max_peers=%d\n", len(normalizedPeers), *maxPeers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(stdout, "ledgerforge-node running")
	<-ctx.Done()
	fmt.Fprintln(stdout, "ledgerforge-node stopped")
	return 0
}

// openExistingChain opens the store at common.dataDir/common.network,
// builds an engine, and either loads prior chain state or fails if the
// chain was never initialized with `init`.
func openExistingChain(common *commonFlags, stdout, stderr io.Writer) (*node.Engine, *store.DB, func(), int) {
	cfg := node.DefaultConfig()
	cfg.Network, cfg.DataDir, cfg.LogLevel = common.network, common.dataDir, common.logLevel
	if err := node.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return nil, nil, func() {}, 2
	}
	net, err := cfg.NetworkParam()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return nil, nil, func() {}, 2
	}
	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return nil, nil, func() {}, 2
	}

	db, err := store.Open(cfg.DataDir, cfg.Network)
	if err != nil {
		fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return nil, nil, func() {}, 1
	}
	cleanup := func() { _ = db.Close() }

	if db.Manifest() == nil {
		cleanup()
		fmt.Fprintln(stderr, "chain not initialized; run `ledgerforge-node init` first")
		return nil, nil, func() {}, 1
	}

	engine := node.NewEngine(net, db, nil, nil, unixNow, log)
	if err := engine.LoadFromStore(); err != nil {
		cleanup()
		fmt.Fprintf(stderr, "load chain state: %v\n", err)
		return nil, nil, func() {}, 1
	}
	return engine, db, cleanup, 0
}

func unixNow() uint64 { return uint64(time.Now().Unix()) }

type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
