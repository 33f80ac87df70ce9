// Package chainsync drives the blockchain synchronization engine: the
// per-consumer sync state (this file), the consumer that scans blocks for
// owned outputs, the synchronizer that multiplexes consumers, and the
// background state machine that pulls from a node client and feeds both.
package chainsync

import (
	"errors"
	"io"

	"github.com/amjuarez/bytecoin-sub006/core/types"
)

// ErrMalformedInterval is returned by CheckInterval when the caller's
// start height does not fall within the known chain.
var ErrMalformedInterval = errors.New("chainsync: interval start beyond known chain")

// ErrUnsupportedSyncStateVersion is returned by SyncState.Load when the
// stream's format version is newer than syncStateFormatVersion.
var ErrUnsupportedSyncStateVersion = errors.New("chainsync: unsupported sync state serialization version")

// syncStateFormatVersion is the Save/Load wire format version.
const syncStateFormatVersion = 0

// CheckResult is the outcome of comparing an incoming block-hash interval
// against a SyncState's known chain.
type CheckResult struct {
	DetachRequired bool
	DetachHeight   uint32
	HasNewBlocks   bool
	NewBlockHeight uint32
}

// SyncState maintains an append-only vector of block hashes indexed by
// height, starting at a fixed genesis hash at height 0. It is the per
// consumer record of which chain segment the consumer believes is active.
//
// SyncState is not safe for concurrent use and takes no lock of its own;
// while the blockchain synchronizer runs, its single worker goroutine is
// the only caller, and Synchronizer's Save/Load/GetConsumerState refuse to
// touch it until that worker has stopped.
type SyncState struct {
	blocks []types.Hash
}

// NewSyncState returns a SyncState seeded with genesis at height 0.
func NewSyncState(genesis types.Hash) *SyncState {
	return &SyncState{blocks: []types.Hash{genesis}}
}

// Size is the number of known blocks, i.e. one past the highest known
// height.
func (s *SyncState) Size() uint32 { return uint32(len(s.blocks)) }

// Genesis returns the fixed genesis hash at height 0.
func (s *SyncState) Genesis() types.Hash { return s.blocks[0] }

// BlockHash returns the hash recorded at height, and whether it is known.
func (s *SyncState) BlockHash(height uint32) (types.Hash, bool) {
	if height >= s.Size() {
		return types.Hash{}, false
	}
	return s.blocks[height], true
}

// ShortHistory returns the locator sent to the node: the tail hashes at
// offsets 1,2,...,10 from the top (offset 1 is the top block itself), then
// doubling offsets (+2, +4, +8, ...)
// until the offset exceeds the known size, finally appending genesis if
// it was not already included.
func (s *SyncState) ShortHistory() []types.Hash {
	top := int(s.Size()) - 1
	if top < 0 {
		return nil
	}

	var history []types.Hash
	seen := func(h uint32) bool {
		for _, existing := range history {
			if existing == s.blocks[h] {
				return true
			}
		}
		return false
	}

	offset := 1
	step := 1
	linear := 0
	for offset <= top {
		idx := uint32(top + 1 - offset)
		if !seen(idx) {
			history = append(history, s.blocks[idx])
		}
		linear++
		if linear < 10 {
			offset++
		} else {
			step *= 2
			offset += step
		}
	}

	if len(history) == 0 || history[len(history)-1] != s.blocks[0] {
		history = append(history, s.blocks[0])
	}
	return history
}

// CheckInterval walks the caller-supplied hashes against the known chain
// starting at startHeight. It reports the first point of divergence (a
// detach is required there) and/or whether the interval extends past the
// known chain (new blocks are available).
func (s *SyncState) CheckInterval(startHeight uint32, hashes []types.Hash) (CheckResult, error) {
	if startHeight > s.Size() {
		return CheckResult{}, ErrMalformedInterval
	}

	size := s.Size()
	end := startHeight + uint32(len(hashes))
	limit := end
	if size < limit {
		limit = size
	}

	for i := startHeight; i < limit; i++ {
		if s.blocks[i] != hashes[i-startHeight] {
			return CheckResult{
				DetachRequired: true,
				DetachHeight:   i,
				HasNewBlocks:   true,
				NewBlockHeight: i,
			}, nil
		}
	}

	if end > size {
		return CheckResult{HasNewBlocks: true, NewBlockHeight: size}, nil
	}
	return CheckResult{}, nil
}

// Detach truncates the known chain to height h, discarding blocks [h, size).
func (s *SyncState) Detach(h uint32) {
	if h < s.Size() {
		s.blocks = s.blocks[:h]
	}
}

// AddBlocks appends hashes starting at atHeight, which must equal the
// current size (callers may only extend the chain, never leave a gap).
func (s *SyncState) AddBlocks(hashes []types.Hash, atHeight uint32) error {
	if atHeight != s.Size() {
		return errors.New("chainsync: add_blocks height does not match current chain size")
	}
	s.blocks = append(s.blocks, hashes...)
	return nil
}

// Save serializes the full known block-hash vector in height order,
// genesis first.
func (s *SyncState) Save(w io.Writer) error {
	if err := types.WriteUint32(w, syncStateFormatVersion); err != nil {
		return err
	}
	if err := types.WriteUint32(w, uint32(len(s.blocks))); err != nil {
		return err
	}
	for _, h := range s.blocks {
		if err := types.WriteHash(w, h); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the known block-hash vector with the contents of a stream
// previously produced by Save.
func (s *SyncState) Load(r io.Reader) error {
	version, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	if version != syncStateFormatVersion {
		return ErrUnsupportedSyncStateVersion
	}
	n, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	blocks := make([]types.Hash, n)
	for i := range blocks {
		if blocks[i], err = types.ReadHash(r); err != nil {
			return err
		}
	}
	s.blocks = blocks
	return nil
}
