package node

import (
	"context"
	"fmt"
	"time"

	"ledgerforge.dev/node/consensus"
)

// MinerConfig tunes the dev-facing block assembler.
type MinerConfig struct {
	MaxTxPerBlock   int
	TimestampSource func() uint64
}

// DefaultMinerConfig mirrors the network-wide block size ceiling with a
// wall-clock timestamp source.
func DefaultMinerConfig() MinerConfig {
	return MinerConfig{
		MaxTxPerBlock:   consensus.MaxBlockTransactions - 1, // leave room for the coinbase
		TimestampSource: func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Miner assembles candidate blocks from the engine's mempool and searches
// for a nonce satisfying the current target. It is intended for devnet
// bring-up and test harnesses, not high-throughput production mining.
type Miner struct {
	engine       *Engine
	minerAddress consensus.Address
	cfg          MinerConfig
}

// NewMiner builds a miner paying coinbase rewards to minerAddress.
func NewMiner(engine *Engine, minerAddress consensus.Address, cfg MinerConfig) (*Miner, error) {
	if engine == nil {
		return nil, fmt.Errorf("node: nil engine")
	}
	if minerAddress == "" {
		return nil, fmt.Errorf("node: miner address required")
	}
	if cfg.TimestampSource == nil {
		cfg.TimestampSource = func() uint64 { return uint64(time.Now().Unix()) }
	}
	if cfg.MaxTxPerBlock <= 0 {
		cfg.MaxTxPerBlock = consensus.MaxBlockTransactions - 1
	}
	return &Miner{engine: engine, minerAddress: minerAddress, cfg: cfg}, nil
}

// MineOne assembles one block on top of the current tip, searches for a
// satisfying nonce, applies it to the engine, and returns it. ctx is polled
// between nonce attempts so a long search can be cancelled.
func (m *Miner) MineOne(ctx context.Context) (*consensus.Block, error) {
	tipHash, tipHeight, _ := m.engine.Tip()
	tipHeader, ok := m.engine.TipHeader()
	if !ok {
		return nil, fmt.Errorf("node: engine has no tip; call InitGenesis first")
	}
	difficulty, err := m.engine.NextDifficulty()
	if err != nil {
		return nil, err
	}

	height := tipHeight + 1
	selected := m.engine.Mempool().SelectForBlock(m.cfg.MaxTxPerBlock)

	var totalFees consensus.Amount
	txids := make([][32]byte, 0, 1+len(selected))
	txs := make([]consensus.Transaction, 0, 1+len(selected))

	for _, tx := range selected {
		totalFees += tx.Fee
	}

	reward := consensus.Amount(consensus.BlockSubsidy(height, m.engine.AlreadyMined())) + totalFees
	coinbase := consensus.Transaction{
		Sender:    consensus.CoinbaseSender,
		Recipient: m.minerAddress,
		TxType:    consensus.TxCoinbase,
		Timestamp: tipHeader.Timestamp,
		Outputs:   []consensus.TxOutput{{Address: m.minerAddress, Amount: reward}},
	}
	coinbaseTxid, err := consensus.Txid(&coinbase)
	if err != nil {
		return nil, fmt.Errorf("node: encode coinbase: %w", err)
	}
	coinbase.Txid = coinbaseTxid

	txs = append(txs, coinbase)
	txids = append(txids, coinbaseTxid)
	for _, tx := range selected {
		txid, err := consensus.Txid(tx)
		if err != nil {
			return nil, fmt.Errorf("node: encode candidate tx: %w", err)
		}
		tx.Txid = txid
		txs = append(txs, *tx)
		txids = append(txids, txid)
	}

	merkleRoot, err := consensus.MerkleRoot(txids)
	if err != nil {
		return nil, err
	}

	timestamp := m.cfg.TimestampSource()
	if timestamp <= tipHeader.Timestamp {
		timestamp = tipHeader.Timestamp + 1
	}

	header := consensus.BlockHeader{
		Index:        height,
		Timestamp:    timestamp,
		PreviousHash: tipHash,
		MerkleRoot:   merkleRoot,
		Difficulty:   difficulty,
	}

	var hash [32]byte
	for nonce := uint64(0); ; nonce++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		header.Nonce = nonce
		hash = consensus.BlockHash(header)
		if consensus.PowCheck(hash, difficulty) == nil {
			break
		}
	}

	block := &consensus.Block{
		Header:       header,
		Hash:         hash,
		Miner:        m.minerAddress,
		Transactions: txs,
	}

	if err := m.engine.ApplyBlock(block); err != nil {
		return nil, err
	}
	return block, nil
}

// MineN mines up to n blocks in sequence, stopping at the first error or at
// ctx cancellation.
func (m *Miner) MineN(ctx context.Context, n int) ([]*consensus.Block, error) {
	out := make([]*consensus.Block, 0, n)
	for i := 0; i < n; i++ {
		block, err := m.MineOne(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, block)
	}
	return out, nil
}
