package node

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"ledgerforge.dev/node/consensus"
	"ledgerforge.dev/node/crypto"
)

func fixedNow(t uint64) func() uint64 { return func() uint64 { return t } }

// testKey returns a fresh secp256k1 identity and its testnet address.
func testKey(t *testing.T) (*crypto.PrivateKey, consensus.Address) {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := consensus.Address(crypto.AddressOfPublicKey(crypto.Testnet, priv.PublicKey()))
	return priv, addr
}

// newTestEngine builds an in-memory engine (no bbolt backing) seeded with a
// genesis block that pays minerAddr the initial coinbase reward.
func newTestEngine(t *testing.T, minerAddr consensus.Address, now func() uint64) *Engine {
	t.Helper()
	e := NewEngine(crypto.Testnet, nil, nil, nil, now, logrus.NewEntry(logrus.New()))

	coinbase := consensus.Transaction{
		Sender:    consensus.CoinbaseSender,
		Recipient: minerAddr,
		TxType:    consensus.TxCoinbase,
		Timestamp: now(),
		Outputs:   []consensus.TxOutput{{Address: minerAddr, Amount: consensus.InitialReward}},
	}
	txid, err := consensus.Txid(&coinbase)
	if err != nil {
		t.Fatalf("txid: %v", err)
	}
	coinbase.Txid = txid

	merkleRoot, err := consensus.MerkleRoot([][32]byte{txid})
	if err != nil {
		t.Fatalf("merkle root: %v", err)
	}
	header := consensus.BlockHeader{
		Index:      0,
		Timestamp:  now(),
		Difficulty: 1,
		MerkleRoot: merkleRoot,
	}
	genesis := &consensus.Block{
		Header:       header,
		Hash:         consensus.BlockHash(header),
		Miner:        minerAddr,
		Transactions: []consensus.Transaction{coinbase},
	}
	if err := e.InitGenesis(genesis); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	return e
}

// mustSignTransfer builds a signed transfer spending a single input of
// inputAmount, paying amount to recipient and fee to the miner, with any
// remainder returned to sender as a change output.
func mustSignTransfer(t *testing.T, priv *crypto.PrivateKey, sender, recipient consensus.Address, input consensus.OutPoint, inputAmount, amount, fee consensus.Amount, nonce uint64, now uint64) *consensus.Transaction {
	t.Helper()
	if amount+fee > inputAmount {
		t.Fatalf("amount+fee exceeds input amount")
	}
	outputs := []consensus.TxOutput{{Address: recipient, Amount: amount}}
	if change := inputAmount - amount - fee; change > 0 {
		outputs = append(outputs, consensus.TxOutput{Address: sender, Amount: change})
	}
	tx := &consensus.Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
		Timestamp: now,
		PublicKey: priv.PublicKey().SerializeCompressed(),
		TxType:    consensus.TxTransfer,
		Inputs:    []consensus.TxInput{input},
		Outputs:   outputs,
	}
	payload, err := consensus.EncodeTxSigningPayload(tx)
	if err != nil {
		t.Fatalf("encode signing payload: %v", err)
	}
	digest := crypto.SHA256(payload)
	tx.Signature = priv.Sign(digest)
	txid, err := consensus.Txid(tx)
	if err != nil {
		t.Fatalf("txid: %v", err)
	}
	tx.Txid = txid
	return tx
}

var backgroundCtx = context.Background()
