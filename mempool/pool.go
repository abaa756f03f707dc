// Package mempool holds transactions that have passed admission but are not
// yet mined: a bounded map keyed by txid with secondary indices by sender,
// fee rate, and insertion time.
package mempool

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"ledgerforge.dev/node/consensus"
)

// Limits is the closed, operator-tunable parameter set bounding pool growth.
type Limits struct {
	MaxTransactions int
	MaxPerSender    int
	MinFeeRate      consensus.Amount // fee per declared byte-equivalent unit; see feeRate
	ExpirySeconds   uint64
}

// DefaultLimits mirrors the network-wide defaults named in consensus.params,
// with a permissive min fee rate left to operator policy.
func DefaultLimits() Limits {
	return Limits{
		MaxTransactions: 50_000,
		MaxPerSender:    500,
		MinFeeRate:      0,
		ExpirySeconds:   consensus.MempoolExpirySeconds,
	}
}

type entry struct {
	tx         *consensus.Transaction
	insertedAt uint64
	heapIndex  int
}

func (e *entry) feeRate() float64 {
	size := float64(encodedSizeEstimate(e.tx))
	if size <= 0 {
		return 0
	}
	return float64(e.tx.Fee) / size
}

// encodedSizeEstimate approximates the on-wire size of tx for fee-rate
// purposes. The consensus core does not impose a byte-size cap itself (the
// per-block cap is a transaction count, per spec), so this is only used to
// rank transactions against each other, not to reject them.
func encodedSizeEstimate(tx *consensus.Transaction) int {
	base := 64 + len(tx.PublicKey) + len(tx.Signature)
	base += len(tx.Sender) + len(tx.Recipient)
	base += 40 * len(tx.Inputs)
	base += 40 * len(tx.Outputs)
	for k, v := range tx.Metadata {
		base += len(k) + len(v)
	}
	return base
}

// Pool is the mempool. It is safe for concurrent access: reads take the
// shared lock, add/evict/select take the exclusive lock.
type Pool struct {
	mu     sync.RWMutex
	limits Limits
	log    *logrus.Entry

	byTxid    map[[32]byte]*entry
	bySender  map[consensus.Address]map[[32]byte]*entry
	spentBy   map[consensus.OutPoint][32]byte
	feeHeap   feeHeap
	validator *consensus.Validator
}

// New builds an empty pool bound to validator for admission checks.
func New(validator *consensus.Validator, limits Limits, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{
		limits:    limits,
		log:       log.WithField("component", "mempool"),
		byTxid:    make(map[[32]byte]*entry),
		bySender:  make(map[consensus.Address]map[[32]byte]*entry),
		spentBy:   make(map[consensus.OutPoint][32]byte),
		validator: validator,
	}
}

// Len reports the number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byTxid)
}

// Has reports whether txid is already pooled (step 8's replay check).
func (p *Pool) Has(txid [32]byte) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byTxid[txid]
	return ok
}

// Add runs the validator against utxo/nonces, then inserts tx and indexes it.
// First-seen wins: a conflicting input or a duplicate txid is rejected
// outright, since this core supports no replacement policy.
func (p *Pool) Add(tx *consensus.Transaction, utxo *consensus.UTXOSet, nonces *consensus.NonceTracker, now uint64) error {
	if err := p.validator.ValidateAll(tx, utxo, nonces); err != nil {
		return err
	}

	txid, err := consensus.Txid(tx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.byTxid[txid]; dup {
		return &consensus.CoreError{Code: consensus.ErrCodeDoubleSpend, Detail: "txid already in mempool"}
	}
	for _, in := range tx.Inputs {
		op := consensus.OutPoint{Txid: in.PrevTxid, Index: in.PrevOut}
		if conflict, ok := p.spentBy[op]; ok {
			return &consensus.CoreError{Code: consensus.ErrCodeDoubleSpend, Detail: "input already spent by pooled tx " + hexID(conflict)}
		}
	}
	if p.limits.MaxPerSender > 0 && len(p.bySender[tx.Sender]) >= p.limits.MaxPerSender {
		return &consensus.CoreError{Code: consensus.ErrCodeMalformedTx, Detail: "sender exceeds per-sender pool cap"}
	}

	e := &entry{tx: tx, insertedAt: now}
	if p.limits.MinFeeRate > 0 && e.feeRate() < float64(p.limits.MinFeeRate) {
		return &consensus.CoreError{Code: consensus.ErrCodeInsufficientFunds, Detail: "fee rate below operator minimum"}
	}
	p.byTxid[txid] = e
	if p.bySender[tx.Sender] == nil {
		p.bySender[tx.Sender] = make(map[[32]byte]*entry)
	}
	p.bySender[tx.Sender][txid] = e
	for _, in := range tx.Inputs {
		p.spentBy[consensus.OutPoint{Txid: in.PrevTxid, Index: in.PrevOut}] = txid
	}
	heap.Push(&p.feeHeap, e)

	if p.limits.MaxTransactions > 0 && len(p.byTxid) > p.limits.MaxTransactions {
		p.evictLowestFeeLocked()
	}

	p.log.WithFields(logrus.Fields{"txid": hexID(txid), "sender": tx.Sender}).Debug("transaction admitted to mempool")
	return nil
}

// SelectForBlock returns transactions greedily by fee rate up to maxCount,
// respecting strict ascending per-sender nonce order: a sender's
// transactions are emitted only in nonce order, and a later-nonce
// transaction is skipped until its predecessor has also been selected.
func (p *Pool) SelectForBlock(maxCount int) []*consensus.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	candidates := make([]*entry, 0, len(p.byTxid))
	for _, e := range p.byTxid {
		candidates = append(candidates, e)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].feeRate() > candidates[j].feeRate()
	})

	// nextNonce tracks, per sender, the nonce that sender's next selected
	// transaction must carry. A sender with no entry yet may start at its
	// lowest pooled nonce (not necessarily 1: an admitted tx's nonce was
	// only checked against chain state at admission time).
	nextNonce := make(map[consensus.Address]uint64)
	for _, e := range candidates {
		if cur, ok := nextNonce[e.tx.Sender]; !ok || e.tx.Nonce < cur {
			nextNonce[e.tx.Sender] = e.tx.Nonce
		}
	}

	selected := make([]*consensus.Transaction, 0, maxCount)
	emitted := make(map[[32]byte]struct{}, maxCount)
	for len(selected) < maxCount {
		progressed := false
		for _, e := range candidates {
			if len(selected) >= maxCount {
				break
			}
			txid, err := consensus.Txid(e.tx)
			if err != nil {
				continue
			}
			if _, done := emitted[txid]; done {
				continue
			}
			if e.tx.Nonce != nextNonce[e.tx.Sender] {
				continue
			}
			selected = append(selected, e.tx)
			emitted[txid] = struct{}{}
			nextNonce[e.tx.Sender] = e.tx.Nonce + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return selected
}

// OnBlockApplied removes every included txid from the pool, drops stale
// input-conflict entries, and lets callers re-validate dependents.
func (p *Pool) OnBlockApplied(txids [][32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, txid := range txids {
		p.removeLocked(txid)
	}
}

// EvictExpired drops every pooled transaction older than the expiry window
// as of now.
func (p *Pool) EvictExpired(now uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var evicted int
	for txid, e := range p.byTxid {
		if now > p.limits.ExpirySeconds && e.insertedAt < now-p.limits.ExpirySeconds {
			p.removeLocked(txid)
			evicted++
		}
	}
	return evicted
}

// EvictLowestFee drops the single lowest fee-rate transaction, used for
// capacity management when the pool is over its transaction-count cap.
func (p *Pool) EvictLowestFee() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evictLowestFeeLocked()
}

func (p *Pool) evictLowestFeeLocked() bool {
	if p.feeHeap.Len() == 0 {
		return false
	}
	e := heap.Pop(&p.feeHeap).(*entry)
	txid, err := consensus.Txid(e.tx)
	if err != nil {
		return false
	}
	p.removeIndicesLocked(txid, e)
	return true
}

func (p *Pool) removeLocked(txid [32]byte) {
	e, ok := p.byTxid[txid]
	if !ok {
		return
	}
	heap.Remove(&p.feeHeap, e.heapIndex)
	p.removeIndicesLocked(txid, e)
}

func (p *Pool) removeIndicesLocked(txid [32]byte, e *entry) {
	delete(p.byTxid, txid)
	if senders := p.bySender[e.tx.Sender]; senders != nil {
		delete(senders, txid)
		if len(senders) == 0 {
			delete(p.bySender, e.tx.Sender)
		}
	}
	for _, in := range e.tx.Inputs {
		op := consensus.OutPoint{Txid: in.PrevTxid, Index: in.PrevOut}
		if p.spentBy[op] == txid {
			delete(p.spentBy, op)
		}
	}
}

func hexID(b [32]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
