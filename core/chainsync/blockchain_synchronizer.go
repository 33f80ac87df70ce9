package chainsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amjuarez/bytecoin-sub006/core/types"

	"github.com/NebulousLabs/threadgroup"
)

// errNoConsumers is returned by Start when no consumer has been
// registered yet.
var errNoConsumers = errors.New("chainsync: start requires at least one consumer")

// fsmState is the blockchain synchronizer's four-state priority ladder.
// Numerically higher always means higher priority; the worker's "future
// state" variable can only be raised by external events, never lowered,
// except by the worker itself demoting after it has acted on a state.
type fsmState int32

const (
	fsmIdle fsmState = iota
	fsmPoolSync
	fsmBlockchainSync
	fsmStopped
)

const idlePollInterval = 200 * time.Millisecond

// BlockchainSynchronizer is the single background worker that pulls
// blocks and pool deltas from a node client and drives every registered
// consumer through detach/attach/pool-update, maintaining the priority
// invariant: a full blockchain pass always precedes a pool pass, which
// always precedes idling.
type BlockchainSynchronizer struct {
	sync *Synchronizer
	node NodeClient

	future int32 // atomic fsmState

	mu      sync.Mutex
	started bool
	tg      threadgroup.ThreadGroup

	observer FSMObserver

	firstPoolSync      bool
	lastBlockHash      types.Hash
	lastBlockTimestamp uint64
}

// NewBlockchainSynchronizer returns a synchronizer driving sync's
// registered consumers via node.
func NewBlockchainSynchronizer(sync *Synchronizer, node NodeClient, observer FSMObserver) *BlockchainSynchronizer {
	if observer == nil {
		observer = NopFSMObserver{}
	}
	return &BlockchainSynchronizer{
		sync:          sync,
		node:          node,
		observer:      observer,
		firstPoolSync: true,
	}
}

// IsRunning reports whether the worker goroutine is active; used by
// Synchronizer to reject consumer-set mutations while running.
func (b *BlockchainSynchronizer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *BlockchainSynchronizer) raise(s fsmState) {
	for {
		cur := fsmState(atomic.LoadInt32(&b.future))
		if cur >= s {
			return
		}
		if atomic.CompareAndSwapInt32(&b.future, int32(cur), int32(s)) {
			return
		}
	}
}

// demote sets the future state to next, but only if nothing raised it
// past next's priority while the worker was busy acting on the prior
// state (most commonly, a concurrent stop()).
func (b *BlockchainSynchronizer) demote(next fsmState) {
	for {
		cur := fsmState(atomic.LoadInt32(&b.future))
		if cur > next {
			return
		}
		if atomic.CompareAndSwapInt32(&b.future, int32(cur), int32(next)) {
			return
		}
	}
}

// LastKnownBlockUpdated raises the future state to blockchain_sync.
func (b *BlockchainSynchronizer) LastKnownBlockUpdated() { b.raise(fsmBlockchainSync) }

// PoolChanged raises the future state to pool_sync.
func (b *BlockchainSynchronizer) PoolChanged() { b.raise(fsmPoolSync) }

// Start begins the background worker. Requires at least one registered
// consumer and that the worker is not already running.
func (b *BlockchainSynchronizer) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New("chainsync: synchronizer is already running")
	}
	if len(b.sync.Consumers()) == 0 {
		b.mu.Unlock()
		return errNoConsumers
	}
	b.started = true
	b.mu.Unlock()

	// Start always performs an initial full sync pass rather than waiting
	// idle for an external LastKnownBlockUpdated/PoolChanged call.
	atomic.StoreInt32(&b.future, int32(fsmBlockchainSync))

	go func() {
		if err := b.tg.Add(); err != nil {
			return
		}
		defer b.tg.Done()
		b.run(context.Background())
	}()
	return nil
}

// Stop requests the worker to halt and blocks until it has joined.
func (b *BlockchainSynchronizer) Stop() error {
	b.raise(fsmStopped)
	err := b.tg.Stop()
	b.mu.Lock()
	b.started = false
	b.mu.Unlock()
	return err
}

func (b *BlockchainSynchronizer) run(ctx context.Context) {
	for {
		select {
		case <-b.tg.StopChan():
			b.observer.OnCompleted(SyncInterrupted)
			return
		default:
		}

		state := fsmState(atomic.LoadInt32(&b.future))
		switch state {
		case fsmStopped:
			b.observer.OnCompleted(SyncInterrupted)
			return
		case fsmBlockchainSync:
			result := b.doBlockchainSync(ctx)
			if result == SyncOK {
				b.observer.OnCompleted(SyncOK)
			} else if result != SyncInterrupted {
				b.observer.OnCompleted(result)
			}
			b.demote(fsmPoolSync)
		case fsmPoolSync:
			b.doPoolSync(ctx)
			b.demote(fsmIdle)
		case fsmIdle:
			select {
			case <-time.After(idlePollInterval):
			case <-b.tg.StopChan():
			}
		}
	}
}

func (b *BlockchainSynchronizer) shouldStop() bool {
	return fsmState(atomic.LoadInt32(&b.future)) == fsmStopped
}

// doBlockchainSync builds a common locator across all consumers, pulls a
// batch of blocks from the node, and applies detach/attach to every
// consumer in a stable order.
func (b *BlockchainSynchronizer) doBlockchainSync(ctx context.Context) SyncCompletion {
	var processed, total uint32
	for {
		if b.shouldStop() {
			return SyncInterrupted
		}

		consumers := b.sync.Consumers()
		if len(consumers) == 0 {
			return SyncOK
		}

		locator, minTimestamp := b.commonHistory(consumers)

		result, err := b.node.QueryBlocks(ctx, locator, minTimestamp)
		if err != nil {
			return SyncError
		}
		if b.shouldStop() {
			return SyncInterrupted
		}

		hashes := make([]types.Hash, len(result.Blocks))
		for i, be := range result.Blocks {
			hashes[i] = be.Hash
		}

		appliedAny := false
		for _, c := range consumers {
			res, err := c.SyncState.CheckInterval(result.StartHeight, hashes)
			if err != nil {
				return SyncInvalidArgument
			}

			if res.DetachRequired {
				c.SyncState.Detach(res.DetachHeight)
				c.OnBlockchainDetach(res.DetachHeight)
				b.sync.notifyDetach(c.ViewPublic(), res.DetachHeight)
			}

			if res.HasNewBlocks {
				offset := res.NewBlockHeight - result.StartHeight
				newBlocks := result.Blocks[offset:]
				ok := c.OnNewBlocks(ctx, newBlocks, res.NewBlockHeight, uint32(len(newBlocks)))
				if !ok {
					return SyncError
				}
				newHashes := make([]types.Hash, len(newBlocks))
				for i, be := range newBlocks {
					newHashes[i] = be.Hash
				}
				if err := c.SyncState.AddBlocks(newHashes, res.NewBlockHeight); err != nil {
					return SyncInvalidArgument
				}
				b.sync.notifyBlocksAdded(c.ViewPublic(), newHashes)
				appliedAny = true
			}
		}

		if n := uint32(len(result.Blocks)); n > 0 {
			last := result.Blocks[n-1]
			b.lastBlockHash = last.Hash
			b.lastBlockTimestamp = last.BlockInfo.Timestamp

			processed += n
			if end := result.StartHeight + n; end > total {
				total = end
			}
			if processed > total {
				total = processed
			}
			b.observer.OnProgress(processed, total)
		}

		if !appliedAny {
			return SyncOK
		}
		// Something was applied, so the node may have more; query again.
		// The loop ends with the first batch that brings nothing new.
		if len(result.Blocks) == 0 {
			return SyncOK
		}
	}
}

// commonHistory picks the shortest consumer's locator (a superset
// locator never narrows the node's search) and the earliest sync-start
// timestamp across consumers.
func (b *BlockchainSynchronizer) commonHistory(consumers []*Consumer) ([]types.Hash, uint64) {
	var shortest []types.Hash
	var minTimestamp uint64 = ^uint64(0)

	for i, c := range consumers {
		h := c.SyncState.ShortHistory()
		if i == 0 || len(h) < len(shortest) {
			shortest = h
		}
		start := c.SyncStartPoint()
		if start.Timestamp < minTimestamp {
			minTimestamp = start.Timestamp
		}
	}
	if minTimestamp == ^uint64(0) {
		minTimestamp = 0
	}
	return shortest, minTimestamp
}

// doPoolSync asks the node for the pool symmetric difference against the
// union (and, on the first pass, also the intersection) of consumers'
// known pool transaction hashes, then delivers the delta to each
// consumer in map order.
func (b *BlockchainSynchronizer) doPoolSync(ctx context.Context) {
	consumers := b.sync.Consumers()
	if len(consumers) == 0 {
		return
	}

	union, intersection := knownTxSets(consumers)

	diff, err := b.node.GetPoolSymmetricDifference(ctx, union, b.lastBlockHash)
	if err != nil {
		return
	}
	if !diff.IsBlockchainActual {
		b.raise(fsmBlockchainSync)
		return
	}

	deleted := diff.DeletedTxHashes
	if b.firstPoolSync {
		extra, err := b.node.GetPoolSymmetricDifference(ctx, intersection, b.lastBlockHash)
		if err == nil {
			deleted = mergeHashes(deleted, extra.DeletedTxHashes)
		}
		b.firstPoolSync = false
	}

	for _, c := range consumers {
		if b.shouldStop() {
			return
		}
		if err := c.OnPoolUpdated(ctx, diff.NewTransactions, deleted); err != nil {
			return
		}
	}
}

func knownTxSets(consumers []*Consumer) (union, intersection []types.Hash) {
	counts := make(map[types.Hash]int)
	for _, c := range consumers {
		for _, h := range c.GetKnownPoolTxIDs() {
			counts[h]++
		}
	}
	for h, n := range counts {
		union = append(union, h)
		if n == len(consumers) {
			intersection = append(intersection, h)
		}
	}
	return union, intersection
}

func mergeHashes(a, b []types.Hash) []types.Hash {
	seen := make(map[types.Hash]bool, len(a))
	out := make([]types.Hash, 0, len(a)+len(b))
	for _, h := range a {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, h := range b {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}
