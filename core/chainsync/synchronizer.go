package chainsync

import (
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/amjuarez/bytecoin-sub006/core/cryptoprim"
	"github.com/amjuarez/bytecoin-sub006/core/transfers"
	"github.com/amjuarez/bytecoin-sub006/core/types"
)

// ErrSynchronizerRunning is returned by operations that mutate the
// consumer set while the blockchain synchronizer is running.
var ErrSynchronizerRunning = errors.New("chainsync: synchronizer must be stopped to modify consumers")

// ErrUnsupportedSynchronizerVersion is returned by Load when the stream's
// format version is newer than synchronizerFormatVersion.
var ErrUnsupportedSynchronizerVersion = errors.New("chainsync: unsupported synchronizer serialization version")

// synchronizerFormatVersion is the Save/Load wire format version.
const synchronizerFormatVersion = 0

// Synchronizer multiplexes many view-key consumers, manages subscription
// lifecycle, and fans out consumer-level notifications to external
// per-view-key observers.
type Synchronizer struct {
	mu        sync.Mutex
	consumers map[types.PublicKey]*Consumer

	deriver      cryptoprim.Deriver
	node         NodeClient
	spendableAge uint32
	genesis      types.Hash

	observers []SynchronizerObserver

	running func() bool
}

// NewSynchronizer returns an empty Synchronizer. running should report
// whether the owning BlockchainSynchronizer's worker is currently active;
// AddSubscription/RemoveSubscription, Save/Load and GetConsumerState
// reject calls while it is.
func NewSynchronizer(genesis types.Hash, deriver cryptoprim.Deriver, node NodeClient, spendableAge uint32, running func() bool) *Synchronizer {
	if running == nil {
		running = func() bool { return false }
	}
	return &Synchronizer{
		consumers:    make(map[types.PublicKey]*Consumer),
		deriver:      deriver,
		node:         node,
		spendableAge: spendableAge,
		genesis:      genesis,
		running:      running,
	}
}

// AddObserver registers a per-view-key observer for fan-out events.
func (s *Synchronizer) AddObserver(o SynchronizerObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// AddSubscription creates (or reuses) the consumer for keys.ViewSec, adds
// a subscription under it, and returns both.
func (s *Synchronizer) AddSubscription(keys types.AccountKeys, start SyncStart) (*Consumer, *Subscription, error) {
	if s.running() {
		return nil, nil, ErrSynchronizerRunning
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	viewPub := keys.Address.ViewPublic
	consumer, ok := s.consumers[viewPub]
	if !ok {
		consumer = NewConsumer(keys, s.genesis, s.deriver, s.node, s.spendableAge)
		s.consumers[viewPub] = consumer
	}

	sub, err := consumer.AddSubscription(keys, start)
	if err != nil {
		return nil, nil, err
	}
	return consumer, sub, nil
}

// RemoveSubscription removes a subscription from its consumer; if that
// was the consumer's last subscription, the consumer itself is removed.
func (s *Synchronizer) RemoveSubscription(viewPub, spendPub types.PublicKey) error {
	if s.running() {
		return ErrSynchronizerRunning
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	consumer, ok := s.consumers[viewPub]
	if !ok {
		return nil
	}
	consumer.RemoveSubscription(spendPub)
	if consumer.SubscriptionCount() == 0 {
		delete(s.consumers, viewPub)
	}
	return nil
}

// Consumers returns a stable, sorted-by-view-key snapshot of registered
// consumers, used both for FSM iteration and for save/load ordering.
func (s *Synchronizer) Consumers() []*Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ViewPublic(), out[j].ViewPublic()
		return string(a[:]) < string(b[:])
	})
	return out
}

// GetConsumerState returns the sync state byte-for-byte ordering point
// for a given consumer; callers must ensure the synchronizer is stopped.
func (s *Synchronizer) GetConsumerState(viewPub types.PublicKey) (*SyncState, bool) {
	if s.running() {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[viewPub]
	if !ok {
		return nil, false
	}
	return c.SyncState, true
}

func (s *Synchronizer) notifyBlocksAdded(viewPub types.PublicKey, hashes []types.Hash) {
	for _, o := range s.observerSnapshot() {
		o.OnBlocksAdded(viewPub, hashes)
	}
}

func (s *Synchronizer) notifyDetach(viewPub types.PublicKey, height uint32) {
	for _, o := range s.observerSnapshot() {
		o.OnBlockchainDetach(viewPub, height)
	}
}

func (s *Synchronizer) notifyTxUpdated(viewPub types.PublicKey, hash types.Hash) {
	for _, o := range s.observerSnapshot() {
		o.OnTransactionUpdated(viewPub, hash)
	}
}

func (s *Synchronizer) observerSnapshot() []SynchronizerObserver {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynchronizerObserver, len(s.observers))
	copy(out, s.observers)
	return out
}

// Save serializes every registered consumer's sync state and every
// subscription's container, in view-key-then-spend-key sorted order (the
// same order Consumers and Consumer.Subscriptions already expose), so a
// re-save of unchanged state is byte-identical. The synchronizer must be
// stopped; key material is never written here, only state keyed by the
// public keys a caller uses to re-register the same subscriptions later.
func (s *Synchronizer) Save(w io.Writer) error {
	if s.running() {
		return ErrSynchronizerRunning
	}

	consumers := s.Consumers()

	if err := types.WriteUint32(w, synchronizerFormatVersion); err != nil {
		return err
	}
	if err := types.WriteUint32(w, uint32(len(consumers))); err != nil {
		return err
	}
	for _, c := range consumers {
		if err := types.WritePublicKey(w, c.ViewPublic()); err != nil {
			return err
		}
		if err := c.SyncState.Save(w); err != nil {
			return err
		}

		subs := c.Subscriptions()
		if err := types.WriteUint32(w, uint32(len(subs))); err != nil {
			return err
		}
		for _, sub := range subs {
			if err := types.WritePublicKey(w, sub.Keys.Address.SpendPublic); err != nil {
				return err
			}
			if err := sub.Container.Save(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load restores sync state and container contents into already-registered
// consumers and subscriptions, matched by view public key and spend public
// key. An entry naming a consumer or subscription that was never
// registered (e.g. it has not been re-added with AddSubscription yet) is
// decoded and discarded so the stream stays aligned, matching the
// tolerant reload behavior of the original save/load pair. The
// synchronizer must be stopped.
func (s *Synchronizer) Load(r io.Reader) error {
	if s.running() {
		return ErrSynchronizerRunning
	}

	version, err := types.ReadUint32(r)
	if err != nil {
		return err
	}
	if version != synchronizerFormatVersion {
		return ErrUnsupportedSynchronizerVersion
	}

	consumerCount, err := types.ReadUint32(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := uint32(0); i < consumerCount; i++ {
		viewPub, err := types.ReadPublicKey(r)
		if err != nil {
			return err
		}
		consumer, known := s.consumers[viewPub]

		if known {
			if err := consumer.SyncState.Load(r); err != nil {
				return err
			}
		} else if err := new(SyncState).Load(r); err != nil {
			return err
		}

		var subsByPub map[types.PublicKey]*Subscription
		if known {
			subsByPub = consumer.subscriptionsByPub()
		}

		subCount, err := types.ReadUint32(r)
		if err != nil {
			return err
		}
		for j := uint32(0); j < subCount; j++ {
			spendPub, err := types.ReadPublicKey(r)
			if err != nil {
				return err
			}
			sub, subKnown := subsByPub[spendPub]
			if subKnown {
				if err := sub.Container.Load(r); err != nil {
					return err
				}
				continue
			}
			if err := transfers.NewContainer(0).Load(r); err != nil {
				return err
			}
		}
	}
	return nil
}
