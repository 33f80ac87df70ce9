// Package chainsynctest provides a deterministic, in-memory NodeClient
// double for exercising the blockchain synchronizer without a real
// network peer.
package chainsynctest

import (
	"context"
	"sync"

	"github.com/amjuarez/bytecoin-sub006/core/chainsync"
	"github.com/amjuarez/bytecoin-sub006/core/types"
)

const defaultBatchSize = 500

// FakeNode is a single-chain, single-pool node double. Tests drive it by
// calling AppendBlock/ReplaceFrom/AddToPool/DropFromPool directly; the
// BlockchainSynchronizer under test only ever sees it through the
// chainsync.NodeClient interface.
type FakeNode struct {
	mu sync.Mutex

	blocks []chainsync.BlockEntry // index 0 is genesis

	pool      map[types.Hash]types.Transaction
	poolOrder []types.Hash

	globalIndices      map[types.Hash][]uint32
	globalIndexCounter uint32

	// IsBlockchainActual, while false, makes every pool-sync response
	// report the chain as stale so the synchronizer falls back to a
	// blockchain sync.
	IsBlockchainActual bool

	BatchSize int
}

// NewFakeNode returns a node seeded with a genesis block.
func NewFakeNode(genesis types.Hash) *FakeNode {
	return &FakeNode{
		blocks:             []chainsync.BlockEntry{{Hash: genesis, HasBody: true, BlockInfo: types.BlockInfo{Height: 0, Hash: genesis}}},
		pool:               make(map[types.Hash]types.Transaction),
		globalIndices:      make(map[types.Hash][]uint32),
		IsBlockchainActual: true,
		BatchSize:          defaultBatchSize,
	}
}

// AppendBlock adds a new block on top of the current tip containing txs,
// assigning every output of every tx a fresh global index, and returns
// its height.
func (n *FakeNode) AppendBlock(hash types.Hash, timestamp uint64, txs []types.Transaction) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	height := uint32(len(n.blocks))
	for _, tx := range txs {
		indices := make([]uint32, len(tx.Outputs))
		for i := range tx.Outputs {
			indices[i] = n.nextGlobalIndexLocked()
		}
		n.globalIndices[tx.Hash] = indices
		delete(n.pool, tx.Hash)
		n.removeFromPoolOrderLocked(tx.Hash)
	}

	n.blocks = append(n.blocks, chainsync.BlockEntry{
		Hash:         hash,
		HasBody:      true,
		BlockInfo:    types.BlockInfo{Height: height, Hash: hash, Timestamp: timestamp},
		Transactions: txs,
	})
	return height
}

func (n *FakeNode) nextGlobalIndexLocked() uint32 {
	n.globalIndexCounter++
	return n.globalIndexCounter
}

// ReplaceFrom truncates the chain at height and appends newBlocks in its
// place, simulating a reorg.
func (n *FakeNode) ReplaceFrom(height uint32, newBlocks ...chainsync.BlockEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if height < uint32(len(n.blocks)) {
		n.blocks = n.blocks[:height]
	}
	n.blocks = append(n.blocks, newBlocks...)
}

// AddToPool injects tx into the mempool.
func (n *FakeNode) AddToPool(tx types.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.pool[tx.Hash]; !ok {
		n.poolOrder = append(n.poolOrder, tx.Hash)
	}
	n.pool[tx.Hash] = tx
}

// DropFromPool removes a transaction from the mempool without mining it.
func (n *FakeNode) DropFromPool(hash types.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pool, hash)
	n.removeFromPoolOrderLocked(hash)
}

func (n *FakeNode) removeFromPoolOrderLocked(hash types.Hash) {
	for i, h := range n.poolOrder {
		if h == hash {
			n.poolOrder = append(n.poolOrder[:i], n.poolOrder[i+1:]...)
			return
		}
	}
}

// TipHash returns the hash of the current chain tip.
func (n *FakeNode) TipHash() types.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blocks[len(n.blocks)-1].Hash
}

// QueryBlocks implements chainsync.NodeClient.
func (n *FakeNode) QueryBlocks(_ context.Context, locatorHashes []types.Hash, _ uint64) (chainsync.QueryBlocksResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	startHeight := uint32(0)
	for _, h := range locatorHashes {
		if idx := n.indexOfLocked(h); idx >= 0 {
			startHeight = uint32(idx) + 1
			break
		}
	}

	if int(startHeight) > len(n.blocks) {
		startHeight = uint32(len(n.blocks))
	}

	end := int(startHeight) + n.batchSize()
	if end > len(n.blocks) {
		end = len(n.blocks)
	}

	entries := make([]chainsync.BlockEntry, end-int(startHeight))
	copy(entries, n.blocks[startHeight:end])

	return chainsync.QueryBlocksResult{StartHeight: startHeight, Blocks: entries}, nil
}

func (n *FakeNode) batchSize() int {
	if n.BatchSize <= 0 {
		return defaultBatchSize
	}
	return n.BatchSize
}

func (n *FakeNode) indexOfLocked(h types.Hash) int {
	for i, b := range n.blocks {
		if b.Hash == h {
			return i
		}
	}
	return -1
}

// GetPoolSymmetricDifference implements chainsync.NodeClient.
func (n *FakeNode) GetPoolSymmetricDifference(_ context.Context, knownTxHashes []types.Hash, _ types.Hash) (chainsync.PoolDiffResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	known := make(map[types.Hash]bool, len(knownTxHashes))
	for _, h := range knownTxHashes {
		known[h] = true
	}

	var newTxs []types.Transaction
	for _, h := range n.poolOrder {
		if !known[h] {
			newTxs = append(newTxs, n.pool[h])
		}
	}

	var deleted []types.Hash
	for h := range known {
		if _, ok := n.pool[h]; !ok {
			deleted = append(deleted, h)
		}
	}

	return chainsync.PoolDiffResult{
		IsBlockchainActual: n.IsBlockchainActual,
		NewTransactions:    newTxs,
		DeletedTxHashes:    deleted,
	}, nil
}

// GetTransactionGlobalIndices implements chainsync.NodeClient.
func (n *FakeNode) GetTransactionGlobalIndices(_ context.Context, txHash types.Hash) ([]uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.globalIndices[txHash], nil
}

// GetRandomOutputs implements chainsync.NodeClient. Ring-signature input
// selection is out of this core's scope; the fake always returns none.
func (n *FakeNode) GetRandomOutputs(context.Context, []uint64, uint32) ([][]types.TransactionOutputInformation, error) {
	return nil, nil
}

// RelayTransaction implements chainsync.NodeClient by adding tx straight
// to the pool, as if it had propagated back to us immediately.
func (n *FakeNode) RelayTransaction(_ context.Context, tx types.Transaction) error {
	n.AddToPool(tx)
	return nil
}
