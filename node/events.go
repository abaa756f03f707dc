package node

import "ledgerforge.dev/node/consensus"

// Observer receives engine lifecycle notifications. Implementations must not
// block: the engine calls observers synchronously while still holding its
// writer lock in some paths, so a slow observer stalls block application.
type Observer interface {
	OnBlockApplied(block *consensus.Block)
	OnTxAccepted(tx *consensus.Transaction)
	OnReorg(fromHeight uint64, disconnected, connected int)
}

// NoopObserver implements Observer with no effect; embed it to satisfy the
// interface while overriding only the methods a caller cares about.
type NoopObserver struct{}

func (NoopObserver) OnBlockApplied(*consensus.Block)   {}
func (NoopObserver) OnTxAccepted(*consensus.Transaction) {}
func (NoopObserver) OnReorg(uint64, int, int)           {}
