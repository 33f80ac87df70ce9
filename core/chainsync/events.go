package chainsync

import "github.com/amjuarez/bytecoin-sub006/core/types"

// SubscriptionObserver receives the events a single subscription's
// container produces as the consumer scans blocks and pool updates.
// Implementations must not call back into the consumer, subscriber or
// synchronizer: notifications are delivered synchronously on the worker
// goroutine and reentrancy would deadlock it.
type SubscriptionObserver interface {
	OnTransactionUpdated(hash types.Hash)
	OnTransactionDeleted(hash types.Hash)
	OnError(height uint32, err error)
	OnTransfersLocked(outs []types.TransactionOutputInformation)
	OnTransfersUnlocked(outs []types.TransactionOutputInformation)
}

// NopSubscriptionObserver implements SubscriptionObserver with no-ops; it
// can be embedded to implement only the callbacks a caller cares about.
type NopSubscriptionObserver struct{}

func (NopSubscriptionObserver) OnTransactionUpdated(types.Hash)                               {}
func (NopSubscriptionObserver) OnTransactionDeleted(types.Hash)                               {}
func (NopSubscriptionObserver) OnError(uint32, error)                                         {}
func (NopSubscriptionObserver) OnTransfersLocked(outs []types.TransactionOutputInformation)   {}
func (NopSubscriptionObserver) OnTransfersUnlocked(outs []types.TransactionOutputInformation) {}

// SynchronizerObserver receives per-view-key fan-out events from the
// Synchronizer multiplexing many consumers.
type SynchronizerObserver interface {
	OnBlocksAdded(viewPub types.PublicKey, hashes []types.Hash)
	OnBlockchainDetach(viewPub types.PublicKey, height uint32)
	OnTransactionDeleteBegin(viewPub types.PublicKey, hash types.Hash)
	OnTransactionDeleteEnd(viewPub types.PublicKey, hash types.Hash)
	OnTransactionUpdated(viewPub types.PublicKey, hash types.Hash)
}

// NopSynchronizerObserver implements SynchronizerObserver with no-ops.
type NopSynchronizerObserver struct{}

func (NopSynchronizerObserver) OnBlocksAdded(types.PublicKey, []types.Hash)          {}
func (NopSynchronizerObserver) OnBlockchainDetach(types.PublicKey, uint32)           {}
func (NopSynchronizerObserver) OnTransactionDeleteBegin(types.PublicKey, types.Hash) {}
func (NopSynchronizerObserver) OnTransactionDeleteEnd(types.PublicKey, types.Hash)   {}
func (NopSynchronizerObserver) OnTransactionUpdated(types.PublicKey, types.Hash)     {}

// SyncCompletion is the state delivered by BlockchainSynchronizer's
// completed(...) event.
type SyncCompletion int

const (
	SyncOK SyncCompletion = iota
	SyncInterrupted
	SyncInvalidArgument
	SyncError
)

// FSMObserver receives the blockchain synchronizer's own lifecycle
// events, independent of any particular consumer.
type FSMObserver interface {
	OnProgress(processed, total uint32)
	OnCompleted(result SyncCompletion)
}

// NopFSMObserver implements FSMObserver with no-ops.
type NopFSMObserver struct{}

func (NopFSMObserver) OnProgress(uint32, uint32)  {}
func (NopFSMObserver) OnCompleted(SyncCompletion) {}
