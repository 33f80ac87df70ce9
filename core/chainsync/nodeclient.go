package chainsync

import (
	"context"

	"github.com/amjuarez/bytecoin-sub006/core/types"
)

// BlockEntry is one block as reported by the node: a hash, and optionally
// its full body. A missing body means the block is opaque chain padding —
// the consumer advances its sync state but scans nothing.
type BlockEntry struct {
	Hash         types.Hash
	HasBody      bool
	BlockInfo    types.BlockInfo
	Transactions []types.Transaction
}

// QueryBlocksResult is what the node client returns for a blockchain sync
// step: the height of the first entry in Blocks, and the entries
// themselves (at most a node-side batch size).
type QueryBlocksResult struct {
	StartHeight uint32
	Blocks      []BlockEntry
}

// PoolDiffResult is what the node client returns for a pool sync step.
type PoolDiffResult struct {
	IsBlockchainActual bool
	NewTransactions    []types.Transaction
	DeletedTxHashes    []types.Hash
}

// NodeClient is the remote node collaborator this core treats as an
// external dependency: it supplies block ranges, pool deltas, output
// indices and relay, all as blocking calls that honor ctx cancellation.
// BlockchainSynchronizer passes a context that Stop does not cancel: an
// in-flight call runs to completion, and the worker observes the stop
// request once it returns.
type NodeClient interface {
	QueryBlocks(ctx context.Context, locatorHashes []types.Hash, timestamp uint64) (QueryBlocksResult, error)
	GetPoolSymmetricDifference(ctx context.Context, knownTxHashes []types.Hash, lastBlockHash types.Hash) (PoolDiffResult, error)
	GetTransactionGlobalIndices(ctx context.Context, txHash types.Hash) ([]uint32, error)
	GetRandomOutputs(ctx context.Context, amounts []uint64, countPerAmount uint32) ([][]types.TransactionOutputInformation, error)
	RelayTransaction(ctx context.Context, tx types.Transaction) error
}
