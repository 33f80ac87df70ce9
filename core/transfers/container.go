// Package transfers implements the per-address store of owned outputs:
// their lifecycle state machine, key-image deduplication, balance and
// output queries, and the unconfirmed-transaction cache that hides
// locally-submitted spends from balance until they are mined or expire.
package transfers

import (
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/amjuarez/bytecoin-sub006/core/types"
)

var (
	// ErrAlreadyUnconfirmedUnderOtherTx is returned by AddTransaction when
	// an output's descriptor is already tracked as Unconfirmed under a
	// different transaction hash — an integrity violation the caller
	// (the consumer) should never be able to trigger in practice.
	ErrAlreadyUnconfirmedUnderOtherTx = errors.New("transfers: descriptor already unconfirmed under a different transaction")
	// ErrNotUnconfirmed is returned by MarkTransactionConfirmed when the
	// named transaction is not currently tracked as Unconfirmed.
	ErrNotUnconfirmed = errors.New("transfers: transaction is not in the unconfirmed state")
	// ErrHeightMovedBackward is returned by AdvanceHeight when h is below
	// the container's current height.
	ErrHeightMovedBackward = errors.New("transfers: advance_height called with a height below current")
	// ErrUnsupportedContainerVersion is returned by Load when the stream's
	// format version is newer than containerFormatVersion.
	ErrUnsupportedContainerVersion = errors.New("transfers: unsupported container serialization version")
)

// containerFormatVersion is the Save/Load wire format version; bump it
// only alongside a reader that still accepts the previous layout.
const containerFormatVersion = 0

// record is an owned output in its unspent lifecycle representation:
// Unconfirmed (BlockHeight == types.UnconfirmedHeight) or confirmed
// (Locked/SoftLocked/Unlocked, determined at query time from BlockHeight,
// UnlockTime and the container's current height/clock).
type record struct {
	Descriptor  types.SpentOutputDescriptor
	Output      types.TransactionOutputInformation
	BlockHeight uint32
	Visible     bool
}

// spentClaim is one transaction's claim to have spent a given descriptor.
// Normally a descriptor has exactly one claim; more than one means a
// conflicting double-spend was observed across pool and chain (see S4) —
// the authoritative claim is the confirmed one (or, absent a confirmed
// claim, the first one recorded), and all others are invisible.
type spentClaim struct {
	Output              types.TransactionOutputInformation
	BlockHeight         uint32 // creation height of the underlying output
	SpendingTxHash      types.Hash
	SpendingBlockHeight uint32 // types.UnconfirmedHeight if the spender is unconfirmed
	Visible             bool
}

// SpentTransactionOutput is the externally visible shape of an
// authoritative, visible spent claim.
type SpentTransactionOutput struct {
	Output              types.TransactionOutputInformation
	SpendingTxHash      types.Hash
	SpendingBlockHeight uint32
}

// TransactionDetail pairs a transaction's ledger metadata with the
// amounts this container contributed to its inputs and outputs.
type TransactionDetail struct {
	Info      types.TransactionInformation
	AmountIn  uint64
	AmountOut uint64
}

// DetachResult is returned by Container.Detach.
type DetachResult struct {
	DeletedTxHashes []types.Hash
	RelockedOutputs []types.TransactionOutputInformation
}

// Container is the per-address store of outputs. All public methods are
// atomic with respect to its lock; it never blocks on I/O.
type Container struct {
	mu sync.Mutex

	spendableAge  uint32
	currentHeight uint32

	// Clock supplies the wall-clock seconds used to evaluate unlock_time
	// when it is a Unix timestamp rather than a height. Defaults to
	// wall-clock time; tests override it for determinism.
	Clock func() uint64

	unspent map[types.SpentOutputDescriptor]*record
	spent   map[types.SpentOutputDescriptor][]*spentClaim

	byTxHash         map[types.Hash][]types.SpentOutputDescriptor
	bySpendingTxHash map[types.Hash][]types.SpentOutputDescriptor

	txInfo map[types.Hash]types.TransactionInformation

	unconfirmedCache *UnconfirmedCache
}

// SetUnconfirmedCache attaches the cache whose locally-submitted pending
// spends should be excluded from available balance and output queries;
// pass nil to detach.
func (c *Container) SetUnconfirmedCache(cache *UnconfirmedCache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unconfirmedCache = cache
}

// NewContainer returns an empty container with the given maturity window
// (number of confirmations an output needs before it may unlock).
func NewContainer(spendableAge uint32) *Container {
	return &Container{
		spendableAge:     spendableAge,
		unspent:          make(map[types.SpentOutputDescriptor]*record),
		spent:            make(map[types.SpentOutputDescriptor][]*spentClaim),
		byTxHash:         make(map[types.Hash][]types.SpentOutputDescriptor),
		bySpendingTxHash: make(map[types.Hash][]types.SpentOutputDescriptor),
		txInfo:           make(map[types.Hash]types.TransactionInformation),
		Clock:            func() uint64 { return uint64(time.Now().Unix()) },
	}
}

func unconfirmedBlockInfo() types.BlockInfo {
	return types.BlockInfo{Height: types.UnconfirmedHeight}
}

// AddTransaction inserts tx's ledger info (if not already present) and the
// listed outputs owned by this address, then scans tx's inputs for spends
// of this container's own outputs. Returns true if anything was added.
func (c *Container) AddTransaction(blockInfo types.BlockInfo, tx types.Transaction, outputs []types.TransactionOutputInformation) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := false

	if existing, ok := c.txInfo[tx.Hash]; !ok {
		c.txInfo[tx.Hash] = types.TransactionInformation{
			TransactionHash: tx.Hash,
			BlockHeight:     blockInfo.Height,
			Timestamp:       blockInfo.Timestamp,
			UnlockTime:      tx.UnlockTime,
			PublicKey:       tx.PublicKey,
			PaymentID:       tx.PaymentID,
			Extra:           tx.Extra,
		}
		added = true
	} else if existing.BlockHeight != blockInfo.Height {
		// A previously-unconfirmed transaction is being confirmed via a
		// fresh AddTransaction call rather than MarkTransactionConfirmed;
		// keep the ledger info in sync with its new height.
		existing.BlockHeight = blockInfo.Height
		existing.Timestamp = blockInfo.Timestamp
		c.txInfo[tx.Hash] = existing
	}

	for _, out := range outputs {
		d := types.DescriptorOf(out)

		if existingSpent, ok := c.spent[d]; ok && len(existingSpent) > 0 {
			// The descriptor is already recorded as spent; this output
			// add is a stale re-discovery (e.g. overlapping scan
			// batches). Nothing to do — dedup is a silent no-op.
			_ = existingSpent
			continue
		}

		if r, ok := c.unspent[d]; ok {
			if r.Descriptor == d && r.Output.TransactionHash != tx.Hash {
				if r.BlockHeight == types.UnconfirmedHeight && blockInfo.Height == types.UnconfirmedHeight {
					return added, ErrAlreadyUnconfirmedUnderOtherTx
				}
				// A key-image collision between two distinct transactions:
				// keep both as invisible ambiguity sentinels rather than
				// silently pick a winner.
				r.Visible = false
				out.TransactionHash = tx.Hash
				c.unspent[d] = &record{Descriptor: d, Output: out, BlockHeight: blockInfo.Height, Visible: false}
				c.byTxHash[tx.Hash] = append(c.byTxHash[tx.Hash], d)
				added = true
				continue
			}
			// Exact dedup: same descriptor, same containing tx.
			continue
		}

		c.unspent[d] = &record{Descriptor: d, Output: out, BlockHeight: blockInfo.Height, Visible: true}
		c.byTxHash[tx.Hash] = append(c.byTxHash[tx.Hash], d)
		added = true
	}

	for _, ki := range tx.InputImages {
		d := types.SpentOutputDescriptor{Type: types.OutputTypeKey, KeyImage: ki}
		if c.applySpend(d, tx.Hash, blockInfo.Height) {
			added = true
		}
	}
	for _, d := range tx.MultisigSpends {
		if c.applySpend(d, tx.Hash, blockInfo.Height) {
			added = true
		}
	}

	return added, nil
}

// applySpend records that tx spends the output identified by d, moving it
// from unspent to a spent claim, or adding a conflicting claim if the
// descriptor is already recorded spent under a different tx.
func (c *Container) applySpend(d types.SpentOutputDescriptor, spendingTx types.Hash, spendingHeight uint32) bool {
	if r, ok := c.unspent[d]; ok {
		delete(c.unspent, d)
		claim := &spentClaim{
			Output:              r.Output,
			BlockHeight:         r.BlockHeight,
			SpendingTxHash:      spendingTx,
			SpendingBlockHeight: spendingHeight,
			Visible:             true,
		}
		c.spent[d] = append(c.spent[d], claim)
		c.bySpendingTxHash[spendingTx] = append(c.bySpendingTxHash[spendingTx], d)
		return true
	}

	claims, ok := c.spent[d]
	if !ok {
		return false
	}
	for _, claim := range claims {
		if claim.SpendingTxHash == spendingTx {
			return false // already recorded
		}
	}
	claims = append(claims, &spentClaim{
		Output:              claims[0].Output,
		BlockHeight:         claims[0].BlockHeight,
		SpendingTxHash:      spendingTx,
		SpendingBlockHeight: spendingHeight,
	})
	c.spent[d] = claims
	c.bySpendingTxHash[spendingTx] = append(c.bySpendingTxHash[spendingTx], d)
	c.reconcileSpentVisibility(d)
	return true
}

// ApplyLocalSpend records that txHash spends whichever of the listed key
// images / multisig descriptors this container currently holds unspent,
// without adding ledger information for a transaction this container has
// no other connection to. It is how a locally submitted, not-yet-relayed
// transaction's spends are reflected in containers it has no owned
// outputs in (e.g. it produces no change back to this address).
func (c *Container) ApplyLocalSpend(txHash types.Hash, blockHeight uint32, inputImages []types.KeyImage, multisigSpends []types.SpentOutputDescriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	applied := false
	for _, ki := range inputImages {
		d := types.SpentOutputDescriptor{Type: types.OutputTypeKey, KeyImage: ki}
		if c.applySpend(d, txHash, blockHeight) {
			applied = true
		}
	}
	for _, d := range multisigSpends {
		if c.applySpend(d, txHash, blockHeight) {
			applied = true
		}
	}
	return applied
}

// reconcileSpentVisibility picks the authoritative claim for a descriptor
// with multiple conflicting spends: a confirmed claim wins over any
// unconfirmed ones; among equals, the earliest recorded wins. All other
// claims become invisible so balance(Spent) never double-counts.
func (c *Container) reconcileSpentVisibility(d types.SpentOutputDescriptor) {
	claims := c.spent[d]
	if len(claims) == 0 {
		return
	}
	authoritative := claims[0]
	for _, claim := range claims {
		if claim.SpendingBlockHeight != types.UnconfirmedHeight {
			authoritative = claim
			break
		}
	}
	for _, claim := range claims {
		claim.Visible = claim == authoritative
	}
}

// MarkTransactionConfirmed promotes an Unconfirmed record to confirmed,
// filling in the global output index per output and the block height.
func (c *Container) MarkTransactionConfirmed(blockInfo types.BlockInfo, txHash types.Hash, globalIndices []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.txInfo[txHash]
	if !ok || info.BlockHeight != types.UnconfirmedHeight {
		return ErrNotUnconfirmed
	}
	info.BlockHeight = blockInfo.Height
	info.Timestamp = blockInfo.Timestamp
	c.txInfo[txHash] = info

	descriptors := c.byTxHash[txHash]
	for i, d := range descriptors {
		if r, ok := c.unspent[d]; ok && r.Output.TransactionHash == txHash {
			r.BlockHeight = blockInfo.Height
			if i < len(globalIndices) {
				r.Output.GlobalOutputIndex = globalIndices[i]
			}
		}
	}
	for _, claims := range c.spent {
		for _, claim := range claims {
			if claim.SpendingTxHash == txHash {
				claim.SpendingBlockHeight = blockInfo.Height
			}
		}
	}
	return nil
}

// DeleteUnconfirmedTransaction removes all unconfirmed entries for txHash
// and any spent claims whose spending tx is txHash. An output left with no
// spent claim at all is restored to unspent. Idempotent.
func (c *Container) DeleteUnconfirmedTransaction(txHash types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false

	for _, d := range c.byTxHash[txHash] {
		if r, ok := c.unspent[d]; ok && r.Output.TransactionHash == txHash && r.BlockHeight == types.UnconfirmedHeight {
			delete(c.unspent, d)
			removed = true
		}
	}
	delete(c.byTxHash, txHash)

	for _, d := range c.bySpendingTxHash[txHash] {
		claims := c.spent[d]
		kept := claims[:0]
		var removedClaim *spentClaim
		for _, claim := range claims {
			if claim.SpendingTxHash == txHash {
				removed = true
				removedClaim = claim
				continue
			}
			kept = append(kept, claim)
		}
		if len(kept) == 0 {
			delete(c.spent, d)
			if removedClaim != nil {
				c.unspent[d] = &record{Descriptor: d, Output: removedClaim.Output, BlockHeight: removedClaim.BlockHeight, Visible: true}
			}
		} else {
			c.spent[d] = kept
			c.reconcileSpentVisibility(d)
		}
	}
	delete(c.bySpendingTxHash, txHash)

	if info, ok := c.txInfo[txHash]; ok && info.BlockHeight == types.UnconfirmedHeight {
		delete(c.txInfo, txHash)
	}

	return removed
}

// Detach removes every transfer whose creating transaction has block
// height >= h (the block it came from was orphaned), and restores to
// unspent any output whose *spending* transaction has block height >= h.
func (c *Container) Detach(h uint32) DetachResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result DetachResult
	deleted := make(map[types.Hash]bool)

	var orphanedTxs []types.Hash
	for hash, info := range c.txInfo {
		if info.BlockHeight != types.UnconfirmedHeight && info.BlockHeight >= h {
			orphanedTxs = append(orphanedTxs, hash)
		}
	}

	for _, hash := range orphanedTxs {
		// Creation side: the output never existed on the winning chain.
		for _, d := range c.byTxHash[hash] {
			if _, ok := c.unspent[d]; ok {
				delete(c.unspent, d)
			}
			delete(c.spent, d)
		}
		delete(c.byTxHash, hash)

		// Spending side: the spend itself was orphaned; restore the coin.
		for _, d := range c.bySpendingTxHash[hash] {
			claims, ok := c.spent[d]
			if !ok {
				continue
			}
			var kept []*spentClaim
			var removedClaim *spentClaim
			for _, claim := range claims {
				if claim.SpendingTxHash == hash {
					removedClaim = claim
					continue
				}
				kept = append(kept, claim)
			}
			if removedClaim == nil {
				continue
			}
			if len(kept) == 0 {
				delete(c.spent, d)
				out := removedClaim.Output
				c.unspent[d] = &record{Descriptor: d, Output: out, BlockHeight: removedClaim.BlockHeight, Visible: true}
				result.RelockedOutputs = append(result.RelockedOutputs, out)
			} else {
				c.spent[d] = kept
				c.reconcileSpentVisibility(d)
			}
		}
		delete(c.bySpendingTxHash, hash)

		delete(c.txInfo, hash)
		deleted[hash] = true
	}

	for hash := range deleted {
		result.DeletedTxHashes = append(result.DeletedTxHashes, hash)
	}
	sort.Slice(result.DeletedTxHashes, func(i, j int) bool {
		return result.DeletedTxHashes[i].String() < result.DeletedTxHashes[j].String()
	})

	return result
}

// AdvanceHeight raises the container's current height and returns the
// outputs whose unlock predicate just flipped from false to true.
func (c *Container) AdvanceHeight(h uint32) ([]types.TransactionOutputInformation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h < c.currentHeight {
		return nil, ErrHeightMovedBackward
	}

	now := c.Clock()
	wasUnlocked := make(map[types.SpentOutputDescriptor]bool, len(c.unspent))
	for d, r := range c.unspent {
		wasUnlocked[d] = c.isUnlockedAt(r, c.currentHeight, now)
	}

	c.currentHeight = h

	var newlyUnlocked []types.TransactionOutputInformation
	for d, r := range c.unspent {
		if !wasUnlocked[d] && c.isUnlockedAt(r, c.currentHeight, now) {
			newlyUnlocked = append(newlyUnlocked, r.Output)
		}
	}
	return newlyUnlocked, nil
}

func unlockTimeSatisfied(unlockTime uint64, height uint32, now uint64) bool {
	if unlockTime == 0 {
		return true
	}
	const timestampThreshold = 500000000
	if unlockTime < timestampThreshold {
		return uint64(height) >= unlockTime
	}
	return now >= unlockTime
}

func (c *Container) isUnlockedAt(r *record, currentHeight uint32, now uint64) bool {
	if !r.Visible || r.BlockHeight == types.UnconfirmedHeight {
		return false
	}
	if r.BlockHeight+c.spendableAge > currentHeight {
		return false
	}
	return unlockTimeSatisfied(r.Output.UnlockTime, currentHeight, now)
}

func (c *Container) stateFlagsFor(r *record) Flags {
	if !r.Visible {
		return 0
	}
	if r.BlockHeight == types.UnconfirmedHeight {
		return 0 // Unconfirmed is not part of the balance flag space
	}
	now := c.Clock()
	if r.BlockHeight+c.spendableAge > c.currentHeight {
		return IncludeLocked
	}
	if !unlockTimeSatisfied(r.Output.UnlockTime, c.currentHeight, now) {
		return IncludeSoftLocked
	}
	if c.unconfirmedCache != nil && c.unconfirmedCache.IsUsed(r.Descriptor) {
		// Locked by a locally submitted, not-yet-mined spend: excluded from
		// every state filter so it never contributes to available balance.
		return 0
	}
	return IncludeUnlocked
}

func typeFlagOf(t types.OutputType) Flags {
	if t == types.OutputTypeKey {
		return IncludeTypeKey
	}
	return IncludeTypeMultisig
}

// Balance sums the amounts of visible transfers whose state and type
// match flags. The default filter is spendable key outputs.
func (c *Container) Balance(flags Flags) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total uint64
	for _, r := range c.unspent {
		if flags&c.stateFlagsFor(r) != 0 && flags&typeFlagOf(r.Output.Type) != 0 {
			total += r.Output.Amount
		}
	}
	if flags&IncludeSpent != 0 {
		for _, claims := range c.spent {
			for _, claim := range claims {
				if claim.Visible && flags&typeFlagOf(claim.Output.Type) != 0 {
					total += claim.Output.Amount
				}
			}
		}
	}
	return total
}

// GetOutputs returns every visible transfer matching flags.
func (c *Container) GetOutputs(flags Flags) []types.TransactionOutputInformation {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.TransactionOutputInformation
	for _, r := range c.unspent {
		if flags&c.stateFlagsFor(r) != 0 && flags&typeFlagOf(r.Output.Type) != 0 {
			out = append(out, r.Output)
		}
	}
	if flags&IncludeSpent != 0 {
		for _, claims := range c.spent {
			for _, claim := range claims {
				if claim.Visible && flags&typeFlagOf(claim.Output.Type) != 0 {
					out = append(out, claim.Output)
				}
			}
		}
	}
	return out
}

// GetTransactionOutputs returns every output created by txHash matching
// flags, regardless of which container collection currently holds it.
func (c *Container) GetTransactionOutputs(txHash types.Hash, flags Flags) []types.TransactionOutputInformation {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.TransactionOutputInformation
	for _, d := range c.byTxHash[txHash] {
		if r, ok := c.unspent[d]; ok {
			if flags&c.stateFlagsFor(r) != 0 && flags&typeFlagOf(r.Output.Type) != 0 {
				out = append(out, r.Output)
			}
			continue
		}
		for _, claim := range c.spent[d] {
			if claim.Visible && flags&IncludeSpent != 0 && flags&typeFlagOf(claim.Output.Type) != 0 {
				out = append(out, claim.Output)
			}
		}
	}
	return out
}

// GetTransactionInputs returns the descriptors this container observed
// txHash spending, restricted to the given type flags.
func (c *Container) GetTransactionInputs(txHash types.Hash, typeFlags Flags) []types.SpentOutputDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.SpentOutputDescriptor
	for _, d := range c.bySpendingTxHash[txHash] {
		if typeFlags&typeFlagOf(d.Type) != 0 {
			out = append(out, d)
		}
	}
	return out
}

// GetSpentOutputs returns every visible (authoritative) spent claim.
func (c *Container) GetSpentOutputs() []SpentTransactionOutput {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []SpentTransactionOutput
	for _, claims := range c.spent {
		for _, claim := range claims {
			if claim.Visible {
				out = append(out, SpentTransactionOutput{
					Output:              claim.Output,
					SpendingTxHash:      claim.SpendingTxHash,
					SpendingBlockHeight: claim.SpendingBlockHeight,
				})
			}
		}
	}
	return out
}

// GetUnconfirmedTransactions returns the hashes of transactions still in
// the Unconfirmed state.
func (c *Container) GetUnconfirmedTransactions() []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.Hash
	for hash, info := range c.txInfo {
		if info.BlockHeight == types.UnconfirmedHeight {
			out = append(out, hash)
		}
	}
	return out
}

// GetTransactionInformation returns a transaction's ledger metadata plus
// this container's contribution to its input/output amounts.
func (c *Container) GetTransactionInformation(hash types.Hash) (TransactionDetail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.txInfo[hash]
	if !ok {
		return TransactionDetail{}, false
	}

	var amountOut uint64
	for _, d := range c.byTxHash[hash] {
		if r, ok := c.unspent[d]; ok && r.Output.TransactionHash == hash {
			amountOut += r.Output.Amount
		}
		for _, claim := range c.spent[d] {
			if claim.Output.TransactionHash == hash {
				amountOut += claim.Output.Amount
			}
		}
	}

	var amountIn uint64
	for _, d := range c.bySpendingTxHash[hash] {
		for _, claim := range c.spent[d] {
			if claim.SpendingTxHash == hash {
				amountIn += claim.Output.Amount
			}
		}
	}

	return TransactionDetail{Info: info, AmountIn: amountIn, AmountOut: amountOut}, true
}

// CurrentHeight returns the container's current height.
func (c *Container) CurrentHeight() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentHeight
}

func sortDescriptors(ds []types.SpentOutputDescriptor) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.KeyImage != b.KeyImage {
			return a.KeyImage.String() < b.KeyImage.String()
		}
		if a.Amount != b.Amount {
			return a.Amount < b.Amount
		}
		return a.GlobalOutputIndex < b.GlobalOutputIndex
	})
}

// Save serializes spendable age, current height, every tracked
// transaction's ledger info, every unspent record and every spent claim.
// Entries are written in a descriptor/hash-sorted order, independent of Go
// map iteration order, so re-saving unchanged state is byte-identical. The
// unconfirmed-transaction cache is process-local pending-send bookkeeping,
// not durable container state, and is never written here.
func (c *Container) Save(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := types.WriteUint32(w, containerFormatVersion); err != nil {
		return err
	}
	if err := types.WriteUint32(w, c.spendableAge); err != nil {
		return err
	}
	if err := types.WriteUint32(w, c.currentHeight); err != nil {
		return err
	}

	hashes := make([]types.Hash, 0, len(c.txInfo))
	for h := range c.txInfo {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].String() < hashes[j].String() })
	if err := types.WriteUint32(w, uint32(len(hashes))); err != nil {
		return err
	}
	for _, h := range hashes {
		if err := types.WriteTransactionInformation(w, c.txInfo[h]); err != nil {
			return err
		}
	}

	unspentDescriptors := make([]types.SpentOutputDescriptor, 0, len(c.unspent))
	for d := range c.unspent {
		unspentDescriptors = append(unspentDescriptors, d)
	}
	sortDescriptors(unspentDescriptors)
	if err := types.WriteUint32(w, uint32(len(unspentDescriptors))); err != nil {
		return err
	}
	for _, d := range unspentDescriptors {
		r := c.unspent[d]
		if err := types.WriteSpentOutputDescriptor(w, r.Descriptor); err != nil {
			return err
		}
		if err := types.WriteTransactionOutputInformation(w, r.Output); err != nil {
			return err
		}
		if err := types.WriteUint32(w, r.BlockHeight); err != nil {
			return err
		}
		if err := types.WriteBool(w, r.Visible); err != nil {
			return err
		}
	}

	spentDescriptors := make([]types.SpentOutputDescriptor, 0, len(c.spent))
	for d := range c.spent {
		spentDescriptors = append(spentDescriptors, d)
	}
	sortDescriptors(spentDescriptors)
	if err := types.WriteUint32(w, uint32(len(spentDescriptors))); err != nil {
		return err
	}
	for _, d := range spentDescriptors {
		claims := c.spent[d]
		if err := types.WriteSpentOutputDescriptor(w, d); err != nil {
			return err
		}
		if err := types.WriteUint32(w, uint32(len(claims))); err != nil {
			return err
		}
		for _, claim := range claims {
			if err := types.WriteTransactionOutputInformation(w, claim.Output); err != nil {
				return err
			}
			if err := types.WriteUint32(w, claim.BlockHeight); err != nil {
				return err
			}
			if err := types.WriteHash(w, claim.SpendingTxHash); err != nil {
				return err
			}
			if err := types.WriteUint32(w, claim.SpendingBlockHeight); err != nil {
				return err
			}
			if err := types.WriteBool(w, claim.Visible); err != nil {
				return err
			}
		}
	}

	return nil
}

// Load replaces the container's state with the contents of a stream
// previously produced by Save. The unconfirmed-transaction cache attached
// via SetUnconfirmedCache is left untouched.
func (c *Container) Load(r io.Reader) error {
	version, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	if version != containerFormatVersion {
		return ErrUnsupportedContainerVersion
	}

	spendableAge, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	currentHeight, err := types.ReadUint32(r)
	if err != nil {
		return err
	}

	txCount, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	txInfo := make(map[types.Hash]types.TransactionInformation, txCount)
	for i := uint32(0); i < txCount; i++ {
		info, err := types.ReadTransactionInformation(r)
		if err != nil {
			return err
		}
		txInfo[info.TransactionHash] = info
	}

	unspentCount, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	unspent := make(map[types.SpentOutputDescriptor]*record, unspentCount)
	byTxHash := make(map[types.Hash][]types.SpentOutputDescriptor)
	for i := uint32(0); i < unspentCount; i++ {
		d, err := types.ReadSpentOutputDescriptor(r)
		if err != nil {
			return err
		}
		out, err := types.ReadTransactionOutputInformation(r)
		if err != nil {
			return err
		}
		blockHeight, err := types.ReadUint32(r)
		if err != nil {
			return err
		}
		visible, err := types.ReadBool(r)
		if err != nil {
			return err
		}
		unspent[d] = &record{Descriptor: d, Output: out, BlockHeight: blockHeight, Visible: visible}
		byTxHash[out.TransactionHash] = append(byTxHash[out.TransactionHash], d)
	}

	spentCount, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	spent := make(map[types.SpentOutputDescriptor][]*spentClaim, spentCount)
	bySpendingTxHash := make(map[types.Hash][]types.SpentOutputDescriptor)
	for i := uint32(0); i < spentCount; i++ {
		d, err := types.ReadSpentOutputDescriptor(r)
		if err != nil {
			return err
		}
		claimCount, err := types.ReadUint32(r)
		if err != nil {
			return err
		}
		claims := make([]*spentClaim, 0, claimCount)
		for j := uint32(0); j < claimCount; j++ {
			out, err := types.ReadTransactionOutputInformation(r)
			if err != nil {
				return err
			}
			blockHeight, err := types.ReadUint32(r)
			if err != nil {
				return err
			}
			spendingTxHash, err := types.ReadHash(r)
			if err != nil {
				return err
			}
			spendingBlockHeight, err := types.ReadUint32(r)
			if err != nil {
				return err
			}
			visible, err := types.ReadBool(r)
			if err != nil {
				return err
			}
			claims = append(claims, &spentClaim{
				Output:              out,
				BlockHeight:         blockHeight,
				SpendingTxHash:      spendingTxHash,
				SpendingBlockHeight: spendingBlockHeight,
				Visible:             visible,
			})
			byTxHash[out.TransactionHash] = append(byTxHash[out.TransactionHash], d)
			bySpendingTxHash[spendingTxHash] = append(bySpendingTxHash[spendingTxHash], d)
		}
		spent[d] = claims
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.spendableAge = spendableAge
	c.currentHeight = currentHeight
	c.txInfo = txInfo
	c.unspent = unspent
	c.spent = spent
	c.byTxHash = byTxHash
	c.bySpendingTxHash = bySpendingTxHash
	return nil
}
