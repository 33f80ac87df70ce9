package chainsync

import (
	"sync"

	"github.com/amjuarez/bytecoin-sub006/core/transfers"
	"github.com/amjuarez/bytecoin-sub006/core/types"
)

// Subscription is one subscribed address: its keys, its container, and
// the observers interested in its events.
type Subscription struct {
	Keys             types.AccountKeys
	Container        *transfers.Container
	UnconfirmedCache *transfers.UnconfirmedCache

	mu        sync.RWMutex
	observers []SubscriptionObserver
}

func newSubscription(keys types.AccountKeys, spendableAge uint32) *Subscription {
	container := transfers.NewContainer(spendableAge)
	cache := transfers.NewUnconfirmedCache()
	container.SetUnconfirmedCache(cache)
	return &Subscription{
		Keys:             keys,
		Container:        container,
		UnconfirmedCache: cache,
	}
}

// AddObserver registers an observer for this subscription's events.
func (s *Subscription) AddObserver(o SubscriptionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// RemoveObserver unregisters a previously-added observer.
func (s *Subscription) RemoveObserver(o SubscriptionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Subscription) snapshotObservers() []SubscriptionObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SubscriptionObserver, len(s.observers))
	copy(out, s.observers)
	return out
}

func (s *Subscription) notifyUpdated(hash types.Hash) {
	for _, o := range s.snapshotObservers() {
		o.OnTransactionUpdated(hash)
	}
}

func (s *Subscription) notifyDeleted(hash types.Hash) {
	for _, o := range s.snapshotObservers() {
		o.OnTransactionDeleted(hash)
	}
}

func (s *Subscription) notifyError(height uint32, err error) {
	for _, o := range s.snapshotObservers() {
		o.OnError(height, err)
	}
}

func (s *Subscription) notifyLocked(outs []types.TransactionOutputInformation) {
	if len(outs) == 0 {
		return
	}
	for _, o := range s.snapshotObservers() {
		o.OnTransfersLocked(outs)
	}
}

func (s *Subscription) notifyUnlocked(outs []types.TransactionOutputInformation) {
	if len(outs) == 0 {
		return
	}
	for _, o := range s.snapshotObservers() {
		o.OnTransfersUnlocked(outs)
	}
}
