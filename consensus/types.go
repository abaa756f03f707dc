package consensus

// Address is an opaque, base58check-encoded string (see crypto.DeriveAddress)
// or one of the two reserved pseudo-sender sentinels.
type Address string

const (
	CoinbaseSender = Address("COINBASE")
	BurnAddress    = Address("BURN")
)

// TxType is the closed set of transaction kinds the engine recognizes.
// Unrecognized values are a hard MalformedTx rejection, never silently
// ignored.
type TxType string

const (
	TxTransfer        TxType = "transfer"
	TxCoinbase        TxType = "coinbase"
	TxRefund          TxType = "refund"
	TxAirdrop         TxType = "airdrop"
	TxTimelockRelease TxType = "timelock_release"
	// TxContractInvoke is reserved per spec.md §9's open question: a
	// consensus-observable kind whose execution is delegated to a pluggable,
	// deterministic ContractHook. The UTXO engine never interprets its
	// payload itself.
	TxContractInvoke TxType = "contract_invoke"
)

// recognizedTxTypes is the closed set validated structurally.
var recognizedTxTypes = map[TxType]struct{}{
	TxTransfer:        {},
	TxCoinbase:        {},
	TxRefund:          {},
	TxAirdrop:         {},
	TxTimelockRelease: {},
	TxContractInvoke:  {},
}

// Amount is a non-negative fixed-point value with consensus.AmountDecimals
// decimal places, stored as an integer count of base units to keep all
// consensus arithmetic exact.
type Amount uint64

// OutPoint references a previously created transaction output.
type OutPoint struct {
	Txid  [32]byte
	Index uint32
}

// TxInput spends a prior output owned by the transaction's sender.
type TxInput struct {
	PrevTxid [32]byte
	PrevOut  uint32
}

// TxOutput assigns value to an address.
type TxOutput struct {
	Address Address
	Amount  Amount
}

// Transaction is the full ledger-model transaction record of spec.md §3.
type Transaction struct {
	Txid      [32]byte
	Sender    Address
	Recipient Address
	Amount    Amount
	Fee       Amount
	Nonce     uint64
	Timestamp uint64
	PublicKey []byte // compressed secp256k1 pubkey, empty for coinbase/system
	Signature []byte // DER ECDSA signature, empty for coinbase/system
	TxType    TxType
	Inputs    []TxInput
	Outputs   []TxOutput
	Metadata  map[string]string
}

// BlockHeader is the part of a block whose hash must satisfy the PoW target.
type BlockHeader struct {
	Index        uint64
	Timestamp    uint64
	PreviousHash [32]byte
	MerkleRoot   [32]byte
	Difficulty   uint32 // difficulty_bits: target = 2^(256-Difficulty)
	Nonce        uint64
}

// Block is a full block: header plus ordered transactions, first of which
// must be the coinbase.
type Block struct {
	Header       BlockHeader
	Hash         [32]byte
	Miner        Address
	Transactions []Transaction
}

// UTXOEntry is the authoritative spendable-value record for one OutPoint.
type UTXOEntry struct {
	Address    Address
	Amount     Amount
	Height     uint64
	IsCoinbase bool
}
