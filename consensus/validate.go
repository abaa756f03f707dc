package consensus

import (
	"strconv"

	"ledgerforge.dev/node/crypto"
)

// MetadataUnlockTimeKey is the metadata field a timelock_release transaction
// must carry: a decimal Unix-seconds timestamp before which it is not
// admissible, per spec.md §9's resolution that time-locked releases are
// validator-enforced via a metadata field rather than a first-class engine
// schedule.
const MetadataUnlockTimeKey = "unlock_time"

// Validator runs a transaction through the admission pipeline of §4.4:
// structural checks, timestamp bounds, identity, signature, nonce,
// coverage, and protected-address policy — in that order, so the first
// violated rule determines the returned error. Replay/conflict checking
// (step 8) is the mempool's responsibility, since it depends on mempool and
// reorg-horizon state the validator does not hold.
type Validator struct {
	Network   crypto.Network
	Protected *ProtectedPolicy
	Now       func() uint64
}

// NewValidator builds a validator for net, using policy (nil means no
// protected addresses) and nowFn to obtain the current Unix time.
func NewValidator(net crypto.Network, policy *ProtectedPolicy, nowFn func() uint64) *Validator {
	if policy == nil {
		policy = NewProtectedPolicy(nil)
	}
	return &Validator{Network: net, Protected: policy, Now: nowFn}
}

// ValidateStructural runs step 1: fields present and well-typed, string
// lengths and numeric ranges in bounds, addresses well-formed, tx_type
// recognized.
func (v *Validator) ValidateStructural(tx *Transaction) error {
	if tx == nil {
		return coreErr(ErrCodeMalformedTx, "nil transaction")
	}
	if _, ok := recognizedTxTypes[tx.TxType]; !ok {
		return coreErr(ErrCodeMalformedTx, "unrecognized tx_type %q", tx.TxType)
	}
	if len(tx.Sender) > MaxStringFieldLen || len(tx.Recipient) > MaxStringFieldLen {
		return coreErr(ErrCodeMalformedTx, "address field exceeds max length")
	}
	if tx.TxType != TxCoinbase {
		if err := crypto.ValidateAddress(v.Network, string(tx.Sender)); err != nil {
			return coreErr(ErrCodeMalformedTx, "invalid sender address: %v", err)
		}
	}
	if tx.TxType != TxCoinbase {
		if err := crypto.ValidateAddress(v.Network, string(tx.Recipient)); err != nil {
			return coreErr(ErrCodeMalformedTx, "invalid recipient address: %v", err)
		}
	}
	if tx.TxType == TxTransfer && tx.Amount == 0 {
		return coreErr(ErrCodeMalformedTx, "transfer amount must be > 0")
	}
	if uint64(tx.Amount) > MaxSupply || uint64(tx.Fee) > MaxSupply {
		return coreErr(ErrCodeMalformedTx, "amount or fee exceeds max supply")
	}
	if len(tx.Metadata) > MaxMetadataEntries {
		return coreErr(ErrCodeMalformedTx, "too many metadata entries")
	}
	for k, val := range tx.Metadata {
		if len(k) > MaxStringFieldLen || len(val) > MaxStringFieldLen {
			return coreErr(ErrCodeMalformedTx, "metadata field exceeds max length")
		}
	}
	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		op := OutPoint{Txid: in.PrevTxid, Index: in.PrevOut}
		if _, dup := seen[op]; dup {
			return coreErr(ErrCodeMalformedTx, "duplicate input %x:%d", op.Txid, op.Index)
		}
		seen[op] = struct{}{}
	}
	if tx.TxType != TxCoinbase && len(tx.Inputs) == 0 {
		return coreErr(ErrCodeMalformedTx, "non-coinbase transaction must declare inputs")
	}
	return nil
}

// ValidateTimestamp runs step 2: bounded to [expiry floor, now+MaxFutureDrift].
func (v *Validator) ValidateTimestamp(tx *Transaction) error {
	now := v.Now()
	if tx.Timestamp > now+MaxFutureDrift {
		return coreErr(ErrCodeTimestampOutOfBounds, "timestamp %d too far in the future", tx.Timestamp)
	}
	if now > MempoolExpirySeconds && tx.Timestamp < now-MempoolExpirySeconds {
		return coreErr(ErrCodeTimestampOutOfBounds, "timestamp %d older than expiry window", tx.Timestamp)
	}
	return nil
}

// ValidateIdentityAndSignature runs steps 3-4: for non-coinbase transactions,
// sender must equal address_of(public_key), and the signature must verify
// over the canonical encoding with low-S enforced (crypto.Verify rejects
// high-S itself).
func (v *Validator) ValidateIdentityAndSignature(tx *Transaction) error {
	if tx.TxType == TxCoinbase {
		return nil
	}
	pub, err := crypto.ParsePublicKey(tx.PublicKey)
	if err != nil {
		return coreErr(ErrCodeInvalidSignature, "invalid public key: %v", err)
	}
	if crypto.AddressOfPublicKey(v.Network, pub) != string(tx.Sender) {
		return coreErr(ErrCodeInvalidSignature, "sender does not match public key")
	}
	payload, err := EncodeTxSigningPayload(tx)
	if err != nil {
		return coreErr(ErrCodeInvalidSignature, "cannot encode signing payload: %v", err)
	}
	digest := crypto.SHA256(payload)
	if !crypto.Verify(pub, digest, tx.Signature) {
		return coreErr(ErrCodeInvalidSignature, "signature verification failed")
	}
	return nil
}

// ValidateNonce runs step 5: nonce must equal the tracker's expected next
// value for sender.
func (v *Validator) ValidateNonce(tx *Transaction, nonces *NonceTracker) error {
	if tx.TxType == TxCoinbase {
		return nil
	}
	expected := nonces.Expected(tx.Sender)
	if tx.Nonce != expected {
		return coreErr(ErrCodeBadNonce, "nonce %d != expected %d", tx.Nonce, expected)
	}
	return nil
}

// ValidateCoverage runs step 6: every declared input exists and is owned by
// sender, and outputs are well-formed. It does not mutate utxo; callers
// apply via UTXOSet.ApplyTransferLike once every step has passed.
func (v *Validator) ValidateCoverage(tx *Transaction, utxo *UTXOSet) error {
	if tx.TxType == TxCoinbase {
		return nil
	}
	var sumIn, sumOut Amount
	for _, in := range tx.Inputs {
		entry, ok := utxo.Lookup(OutPoint{Txid: in.PrevTxid, Index: in.PrevOut})
		if !ok {
			return coreErr(ErrCodeDoubleSpend, "input %x:%d not found or already spent", in.PrevTxid, in.PrevOut)
		}
		if entry.Address != tx.Sender {
			return coreErr(ErrCodeInvalidSignature, "input %x:%d not owned by sender", in.PrevTxid, in.PrevOut)
		}
		sumIn += entry.Amount
	}
	foundRecipientOutput := false
	for _, o := range tx.Outputs {
		if o.Amount == 0 {
			return coreErr(ErrCodeMalformedTx, "zero-value output")
		}
		sumOut += o.Amount
		if tx.TxType == TxTransfer {
			switch {
			case !foundRecipientOutput && o.Address == tx.Recipient && o.Amount == tx.Amount:
				foundRecipientOutput = true
			case o.Address != tx.Sender:
				return coreErr(ErrCodeMalformedTx, "output to %s is neither the declared recipient amount nor sender change", o.Address)
			}
		}
	}
	if tx.TxType == TxTransfer && !foundRecipientOutput {
		return coreErr(ErrCodeMalformedTx, "no output pays recipient %s the declared amount %d", tx.Recipient, tx.Amount)
	}
	if sumOut > sumIn {
		return coreErr(ErrCodeInsufficientFunds, "outputs %d exceed inputs %d", sumOut, sumIn)
	}
	if sumIn-sumOut != tx.Fee {
		return coreErr(ErrCodeInsufficientFunds, "input/output delta %d does not match declared fee %d", sumIn-sumOut, tx.Fee)
	}
	return nil
}

// ValidateProtectedPolicy runs step 7: if sender is a protected address, tx_type
// must be one it is authorized to originate.
func (v *Validator) ValidateProtectedPolicy(tx *Transaction) error {
	if !v.Protected.IsProtected(tx.Sender) {
		return nil
	}
	if !v.Protected.Authorized(tx.Sender, tx.TxType) {
		return coreErr(ErrCodeProtectedSender, "sender %s not authorized for tx_type %s", tx.Sender, tx.TxType)
	}
	return nil
}

// ValidateTimelockRelease enforces the unlock-time hook spec.md §9 assigns to
// the validator for the timelock_release tx_type: metadata.unlock_time must
// be present, parse as a decimal Unix-seconds value, and not be in the
// future relative to the validator's clock. Every other tx_type is exempt.
func (v *Validator) ValidateTimelockRelease(tx *Transaction) error {
	if tx.TxType != TxTimelockRelease {
		return nil
	}
	raw, ok := tx.Metadata[MetadataUnlockTimeKey]
	if !ok {
		return coreErr(ErrCodeMalformedTx, "timelock_release requires metadata.%s", MetadataUnlockTimeKey)
	}
	unlockAt, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return coreErr(ErrCodeMalformedTx, "timelock_release: metadata.%s is not a valid timestamp: %v", MetadataUnlockTimeKey, err)
	}
	if v.Now() < unlockAt {
		return coreErr(ErrCodeTimestampOutOfBounds, "timelock_release not yet unlocked: now=%d unlock_time=%d", v.Now(), unlockAt)
	}
	return nil
}

// ValidateAll runs steps 1-7 (plus the timelock_release hook) in order
// against the given state, stopping at the first failure. Step 8 (mempool
// replay/conflict) is the mempool's responsibility and is not part of this
// pipeline.
func (v *Validator) ValidateAll(tx *Transaction, utxo *UTXOSet, nonces *NonceTracker) error {
	if err := v.ValidateStructural(tx); err != nil {
		return err
	}
	if err := v.ValidateTimestamp(tx); err != nil {
		return err
	}
	if err := v.ValidateIdentityAndSignature(tx); err != nil {
		return err
	}
	if err := v.ValidateNonce(tx, nonces); err != nil {
		return err
	}
	if err := v.ValidateCoverage(tx, utxo); err != nil {
		return err
	}
	if err := v.ValidateProtectedPolicy(tx); err != nil {
		return err
	}
	if err := v.ValidateTimelockRelease(tx); err != nil {
		return err
	}
	return nil
}
