package consensus

// ContractHook is the pluggable execution boundary for contract_invoke
// transactions. The UTXO engine never interprets a contract payload itself;
// it only enforces the structural/stateful rules every transaction shares
// (signature, nonce, balance) and then, for contract_invoke, delegates to
// the configured hook for any domain-specific effect. A nil hook makes
// contract_invoke admissible but inert: it moves value like a transfer and
// carries opaque metadata, nothing more.
type ContractHook interface {
	// Execute runs deterministically given only the transaction and the
	// height it is being applied at; it must not read wall-clock time,
	// randomness, or any state outside utxo. Returning an error rejects the
	// whole transaction with ErrCodeMalformedTx.
	Execute(tx *Transaction, height uint64, utxo *UTXOSet) error
}

// NoopContractHook accepts every contract_invoke transaction without side
// effects beyond the standard UTXO transfer already applied by the engine.
type NoopContractHook struct{}

func (NoopContractHook) Execute(*Transaction, uint64, *UTXOSet) error {
	return nil
}
