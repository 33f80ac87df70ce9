package transfers

import (
	"sync"

	"github.com/amjuarez/bytecoin-sub006/core/types"
)

// PendingTransaction is the locally-submitted, not-yet-mined transaction
// record tracked by UnconfirmedCache.
type PendingTransaction struct {
	Tx          types.Transaction
	Amount      uint64
	OutsAmount  uint64
	SentTime    uint64
	UsedOutputs []types.SpentOutputDescriptor
}

// UnconfirmedCache tracks locally submitted outgoing transactions so that
// their consumed outputs can be hidden from available balance until the
// transaction is mined or times out.
type UnconfirmedCache struct {
	mu sync.Mutex

	byHash   map[types.Hash]*PendingTransaction
	byOutput map[types.SpentOutputDescriptor]types.Hash
}

// NewUnconfirmedCache returns an empty cache.
func NewUnconfirmedCache() *UnconfirmedCache {
	return &UnconfirmedCache{
		byHash:   make(map[types.Hash]*PendingTransaction),
		byOutput: make(map[types.SpentOutputDescriptor]types.Hash),
	}
}

// Add records tx as a pending send, along with the outputs it consumes.
func (c *UnconfirmedCache) Add(tx types.Transaction, amount, outsAmount, sentTime uint64, usedOutputs []types.SpentOutputDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byHash[tx.Hash] = &PendingTransaction{
		Tx:          tx,
		Amount:      amount,
		OutsAmount:  outsAmount,
		SentTime:    sentTime,
		UsedOutputs: usedOutputs,
	}
	for _, d := range usedOutputs {
		c.byOutput[d] = tx.Hash
	}
}

// Erase removes hash from both indices.
func (c *UnconfirmedCache) Erase(hash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eraseLocked(hash)
}

func (c *UnconfirmedCache) eraseLocked(hash types.Hash) {
	pending, ok := c.byHash[hash]
	if !ok {
		return
	}
	for _, d := range pending.UsedOutputs {
		if c.byOutput[d] == hash {
			delete(c.byOutput, d)
		}
	}
	delete(c.byHash, hash)
}

// IsUsed reports whether output is locked by some pending local send.
func (c *UnconfirmedCache) IsUsed(output types.SpentOutputDescriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, used := c.byOutput[output]
	return used
}

// CountOutsAmount sums OutsAmount across all pending transactions.
func (c *UnconfirmedCache) CountOutsAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, p := range c.byHash {
		total += p.OutsAmount
	}
	return total
}

// CountTxAmount sums Amount across all pending transactions.
func (c *UnconfirmedCache) CountTxAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, p := range c.byHash {
		total += p.Amount
	}
	return total
}

// DeleteOutdated removes entries whose SentTime is at or before now-ttl,
// returning their hashes so the facade can transition the corresponding
// user-facing transaction records to a Deleted state.
func (c *UnconfirmedCache) DeleteOutdated(now, ttl uint64) []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []types.Hash
	cutoff := uint64(0)
	if now > ttl {
		cutoff = now - ttl
	}
	for hash, p := range c.byHash {
		if p.SentTime <= cutoff {
			removed = append(removed, hash)
		}
	}
	for _, hash := range removed {
		c.eraseLocked(hash)
	}
	return removed
}
