package chainsync

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/amjuarez/bytecoin-sub006/core/cryptoprim"
	"github.com/amjuarez/bytecoin-sub006/core/transfers"
	"github.com/amjuarez/bytecoin-sub006/core/types"
)

// ErrWrongViewKey is returned by AddSubscription when the supplied keys
// carry a different view secret than the consumer was built for.
var ErrWrongViewKey = errors.New("chainsync: subscription view secret does not match consumer")

// SyncStart is the earliest point a consumer (or one of its
// subscriptions) cares about; the synchronizer merges these across
// consumers by component-wise minimum.
type SyncStart struct {
	Timestamp uint64
	Height    uint32
}

// Consumer scans blocks and pool updates for outputs owned by the
// spend-public keys registered under one view secret, and drives each
// matching subscription's container.
type Consumer struct {
	mu sync.RWMutex

	viewSec types.SecretKey
	viewPub types.PublicKey

	subscriptions map[types.PublicKey]*Subscription
	syncStart     SyncStart

	knownPoolTxHashes map[types.Hash]bool

	SyncState *SyncState

	deriver      cryptoprim.Deriver
	node         NodeClient
	spendableAge uint32
	workerCount  int
}

// NewConsumer returns a Consumer for one view secret, seeded with a fresh
// sync state rooted at genesis.
func NewConsumer(keys types.AccountKeys, genesis types.Hash, deriver cryptoprim.Deriver, node NodeClient, spendableAge uint32) *Consumer {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return &Consumer{
		viewSec:           keys.ViewSec,
		viewPub:           keys.Address.ViewPublic,
		subscriptions:     make(map[types.PublicKey]*Subscription),
		knownPoolTxHashes: make(map[types.Hash]bool),
		SyncState:         NewSyncState(genesis),
		deriver:           deriver,
		node:              node,
		spendableAge:      spendableAge,
		workerCount:       workers,
	}
}

// ViewPublic returns the consumer's view public key.
func (c *Consumer) ViewPublic() types.PublicKey { return c.viewPub }

// AddSubscription registers a new subscription with its own container,
// and recomputes the consumer's overall sync start as the component-wise
// minimum of all subscriptions' starts.
func (c *Consumer) AddSubscription(keys types.AccountKeys, start SyncStart) (*Subscription, error) {
	if keys.ViewSec != c.viewSec {
		return nil, ErrWrongViewKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub := newSubscription(keys, c.spendableAge)
	c.subscriptions[keys.Address.SpendPublic] = sub

	if len(c.subscriptions) == 1 {
		c.syncStart = start
	} else {
		if start.Timestamp < c.syncStart.Timestamp {
			c.syncStart.Timestamp = start.Timestamp
		}
		if start.Height < c.syncStart.Height {
			c.syncStart.Height = start.Height
		}
	}
	return sub, nil
}

// RemoveSubscription drops a subscription; the consumer is destroyed by
// its owner (the Synchronizer) once this was its last one.
func (c *Consumer) RemoveSubscription(spendPub types.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, spendPub)
}

// SubscriptionCount reports how many subscriptions this consumer serves.
func (c *Consumer) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

// SyncStartPoint returns the consumer's current merged sync start.
func (c *Consumer) SyncStartPoint() SyncStart {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncStart
}

// Subscriptions returns a stable, spend-key-sorted snapshot of this
// consumer's subscriptions, used for save/load ordering.
func (c *Consumer) Subscriptions() []*Subscription {
	subs := c.subscriptionSnapshot()
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i].Keys.Address.SpendPublic, subs[j].Keys.Address.SpendPublic
		return string(a[:]) < string(b[:])
	})
	return subs
}

func (c *Consumer) subscriptionSnapshot() []*Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		out = append(out, s)
	}
	return out
}

// OnBlockchainDetach forwards a detach to every subscription's container.
func (c *Consumer) OnBlockchainDetach(h uint32) {
	for _, sub := range c.subscriptionSnapshot() {
		result := sub.Container.Detach(h)
		sub.notifyLocked(result.RelockedOutputs)
		for _, hash := range result.DeletedTxHashes {
			sub.notifyDeleted(hash)
		}
	}
}

// scanJob is one (block, transaction) unit of parallel scan work.
type scanJob struct {
	blockInfo types.BlockInfo
	txIndex   int
	tx        types.Transaction
}

// scanOutcome is a job's result: the owned outputs found per spend
// public key, enriched with the global index when the block is confirmed.
// No key image is computed here; each output keeps the key image the
// scanned transaction already carried.
type scanOutcome struct {
	job     scanJob
	matches map[types.PublicKey][]types.TransactionOutputInformation
	err     error
}

// OnNewBlocks scans blocks[startHeight-relative offsets] for outputs
// owned by this consumer's subscriptions, and applies the results to
// each subscription's container in (block_height, tx_index) order.
// Returns false (and delivers OnError to every subscription) if any
// worker failed.
func (c *Consumer) OnNewBlocks(ctx context.Context, blocks []BlockEntry, startHeight uint32, count uint32) bool {
	subs := c.subscriptionSnapshot()
	spendPubs := make([]types.PublicKey, 0, len(subs))
	for pub := range c.subscriptionsByPub() {
		spendPubs = append(spendPubs, pub)
	}

	var jobs []scanJob
	for i, b := range blocks {
		height := startHeight + uint32(i)
		if !b.HasBody {
			continue
		}
		bi := b.BlockInfo
		bi.Height = height
		for ti, tx := range b.Transactions {
			jobs = append(jobs, scanJob{blockInfo: bi, txIndex: ti, tx: tx})
		}
	}

	outcomes, err := c.runScan(ctx, jobs, spendPubs)
	if err != nil {
		for _, sub := range subs {
			sub.notifyError(startHeight, err)
		}
		return false
	}

	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].job.blockInfo.Height != outcomes[j].job.blockInfo.Height {
			return outcomes[i].job.blockInfo.Height < outcomes[j].job.blockInfo.Height
		}
		return outcomes[i].job.txIndex < outcomes[j].job.txIndex
	})

	subsByPub := c.subscriptionsByPub()
	for _, o := range outcomes {
		for spendPub, outs := range o.matches {
			sub, ok := subsByPub[spendPub]
			if !ok {
				continue
			}
			c.applyToSubscription(sub, o.job, outs)
		}
	}

	// Pool scans are driven with startHeight == UnconfirmedHeight, which is
	// not a real chain height; advancing a container's currentHeight to it
	// would permanently stick every subsequent AdvanceHeight(realHeight) with
	// ErrHeightMovedBackward. Only block scans advance height.
	if startHeight != types.UnconfirmedHeight {
		var top uint32
		if len(blocks) > 0 {
			top = startHeight + uint32(len(blocks)) - 1
		} else {
			top = startHeight
		}
		for _, sub := range subs {
			if unlocked, err := sub.Container.AdvanceHeight(top); err == nil {
				sub.notifyUnlocked(unlocked)
			}
		}
	}

	return true
}

func (c *Consumer) subscriptionsByPub() map[types.PublicKey]*Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[types.PublicKey]*Subscription, len(c.subscriptions))
	for k, v := range c.subscriptions {
		out[k] = v
	}
	return out
}

func (c *Consumer) applyToSubscription(sub *Subscription, job scanJob, outs []types.TransactionOutputInformation) {
	existing := sub.Container.GetTransactionOutputs(job.tx.Hash, transfers.IncludeAllStates|transfers.IncludeAllTypes)
	if len(existing) > 0 && job.blockInfo.Height != types.UnconfirmedHeight {
		indices := make([]uint32, len(outs))
		for i, o := range outs {
			indices[i] = o.GlobalOutputIndex
		}
		if err := sub.Container.MarkTransactionConfirmed(job.blockInfo, job.tx.Hash, indices); err == nil {
			sub.notifyUpdated(job.tx.Hash)
			return
		}
	}
	added, err := sub.Container.AddTransaction(job.blockInfo, job.tx, outs)
	if err == nil && added {
		sub.notifyUpdated(job.tx.Hash)
	}
}

// runScan dispatches jobs to a bounded worker pool. Each worker checks
// every output in its job's transaction against every spend public key,
// and for a block (non-pool) transaction with any match, fetches global
// output indices from the node to complete the match.
func (c *Consumer) runScan(ctx context.Context, jobs []scanJob, spendPubs []types.PublicKey) ([]scanOutcome, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	jobCh := make(chan scanJob)
	resultCh := make(chan scanOutcome, len(jobs))

	var wg sync.WaitGroup
	workers := c.workerCount
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resultCh <- c.scanOne(ctx, job, spendPubs)
			}
		}()
	}

	go func() {
		for _, j := range jobs {
			jobCh <- j
		}
		close(jobCh)
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	outcomes := make([]scanOutcome, 0, len(jobs))
	for o := range resultCh {
		if o.err != nil {
			return nil, o.err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (c *Consumer) scanOne(ctx context.Context, job scanJob, spendPubs []types.PublicKey) scanOutcome {
	matches := make(map[types.PublicKey][]types.TransactionOutputInformation)

	for i, out := range job.tx.Outputs {
		if out.Type != types.OutputTypeKey {
			continue
		}
		for _, spendPub := range spendPubs {
			owns, err := c.deriver.OwnsOutput(job.tx.PublicKey, c.viewSec, uint32(i), spendPub, out.OutputKey)
			if err != nil {
				return scanOutcome{job: job, err: err}
			}
			if owns {
				matches[spendPub] = append(matches[spendPub], out)
			}
		}
	}

	if len(matches) == 0 {
		return scanOutcome{job: job, matches: matches}
	}

	if job.blockInfo.Height != types.UnconfirmedHeight && c.node != nil {
		indices, err := c.node.GetTransactionGlobalIndices(ctx, job.tx.Hash)
		if err != nil {
			return scanOutcome{job: job, err: err}
		}
		for spendPub, outs := range matches {
			for i := range outs {
				if int(outs[i].OutputInTransaction) < len(indices) {
					outs[i].GlobalOutputIndex = indices[outs[i].OutputInTransaction]
				}
			}
			matches[spendPub] = outs
		}
	}

	return scanOutcome{job: job, matches: matches}
}

// OnPoolUpdated scans pool transactions exactly like block transactions
// (with an unconfirmed block height) and propagates pool-tx deletions.
func (c *Consumer) OnPoolUpdated(ctx context.Context, newTxs []types.Transaction, deletedTxHashes []types.Hash) error {
	var blocks []BlockEntry
	if len(newTxs) > 0 {
		blocks = []BlockEntry{{HasBody: true, BlockInfo: unconfirmedBlockInfo(), Transactions: newTxs}}
	}
	if len(blocks) > 0 {
		if ok := c.OnNewBlocks(ctx, blocks, types.UnconfirmedHeight, uint32(len(blocks))); !ok {
			return errors.New("chainsync: pool scan failed")
		}
	}

	for _, sub := range c.subscriptionSnapshot() {
		for _, hash := range deletedTxHashes {
			if sub.Container.DeleteUnconfirmedTransaction(hash) {
				sub.notifyDeleted(hash)
			}
		}
	}
	return nil
}

func unconfirmedBlockInfo() types.BlockInfo {
	return types.BlockInfo{Height: types.UnconfirmedHeight}
}

// AddUnconfirmedTransaction scans a locally submitted, not-yet-relayed
// outgoing transaction exactly like a pool transaction, then locks the
// outputs it consumes in every affected subscription's unconfirmed cache
// so they are hidden from available balance until the transaction is
// mined (MarkTransactionConfirmed) or removed (RemoveUnconfirmedTransaction).
func (c *Consumer) AddUnconfirmedTransaction(ctx context.Context, tx types.Transaction) error {
	blocks := []BlockEntry{{HasBody: true, BlockInfo: unconfirmedBlockInfo(), Transactions: []types.Transaction{tx}}}
	if ok := c.OnNewBlocks(ctx, blocks, types.UnconfirmedHeight, 1); !ok {
		return errors.New("chainsync: add_unconfirmed_transaction scan failed")
	}

	now := uint64(time.Now().Unix())
	for _, sub := range c.subscriptionSnapshot() {
		// A locally submitted send often has no output belonging to its own
		// sender (no change, or change routed elsewhere), so OnNewBlocks
		// above may not have touched this container at all. Applying the
		// spend explicitly catches that case; it is a no-op wherever the
		// container does not hold the spent descriptors.
		applied := sub.Container.ApplyLocalSpend(tx.Hash, types.UnconfirmedHeight, tx.InputImages, tx.MultisigSpends)
		used := sub.Container.GetTransactionInputs(tx.Hash, transfers.IncludeAllTypes)
		if !applied && len(used) == 0 {
			continue
		}

		var amount uint64
		for _, spent := range sub.Container.GetSpentOutputs() {
			if spent.SpendingTxHash == tx.Hash {
				amount += spent.Output.Amount
			}
		}
		var outsAmount uint64
		for _, out := range sub.Container.GetTransactionOutputs(tx.Hash, transfers.IncludeAllStates|transfers.IncludeAllTypes) {
			outsAmount += out.Amount
		}

		sub.UnconfirmedCache.Add(tx, amount, outsAmount, now, used)
	}
	return nil
}

// RemoveUnconfirmedTransaction drops a locally submitted transaction that
// will never be relayed or was replaced, freeing its consumed outputs back
// to available balance and deleting it from every subscription's container.
func (c *Consumer) RemoveUnconfirmedTransaction(hash types.Hash) {
	for _, sub := range c.subscriptionSnapshot() {
		sub.UnconfirmedCache.Erase(hash)
		if sub.Container.DeleteUnconfirmedTransaction(hash) {
			sub.notifyDeleted(hash)
		}
	}
}

// GetKnownPoolTxIDs returns the union, across subscriptions, of hashes
// currently tracked in the Unconfirmed state — the basis for pool
// symmetric-difference queries.
func (c *Consumer) GetKnownPoolTxIDs() []types.Hash {
	seen := make(map[types.Hash]bool)
	for _, sub := range c.subscriptionSnapshot() {
		for _, h := range sub.Container.GetUnconfirmedTransactions() {
			seen[h] = true
		}
	}
	out := make([]types.Hash, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out
}
