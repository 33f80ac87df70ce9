package chainsync

import (
	"bytes"
	"context"
	"testing"

	"github.com/amjuarez/bytecoin-sub006/core/cryptoprim"
	"github.com/amjuarez/bytecoin-sub006/core/transfers"
	"github.com/amjuarez/bytecoin-sub006/core/types"
)

func testAccountWithView(viewTag, spendTag byte) types.AccountKeys {
	var spendPub, viewPub types.PublicKey
	var viewSec types.SecretKey
	spendPub[0] = spendTag
	viewPub[0] = viewTag
	viewSec[0] = viewTag
	return types.AccountKeys{
		Address: types.Address{SpendPublic: spendPub, ViewPublic: viewPub},
		ViewSec: viewSec,
	}
}

// TestSynchronizerSaveLoadRoundTrip covers the multi-consumer,
// multi-subscription save/load shape: two view keys, one with two spend
// keys, funded with confirmed outputs, saved, then loaded into a fresh
// synchronizer whose subscriptions were re-registered under the same
// keys beforehand.
func TestSynchronizerSaveLoadRoundTrip(t *testing.T) {
	deriver := cryptoprim.FakeDeriver{}
	node := &stubNode{globalIndices: map[types.Hash][]uint32{}}
	var genesis types.Hash
	running := false

	src := NewSynchronizer(genesis, deriver, node, 5, func() bool { return running })

	keysA1 := testAccountWithView(0x01, 0x11)
	keysA2 := testAccountWithView(0x01, 0x12)
	keysB1 := testAccountWithView(0x02, 0x21)

	_, subA1, err := src.AddSubscription(keysA1, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}
	_, subA2, err := src.AddSubscription(keysA2, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}
	_, subB1, err := src.AddSubscription(keysB1, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}

	fund := func(consumerKeys types.AccountKeys, sub *Subscription, amount uint64, txTag byte) {
		var txPub types.PublicKey
		txPub[0] = txTag
		txHash := types.Hash{txTag}
		out := ownedOutputFor(deriver, txPub, consumerKeys.ViewSec, 0, consumerKeys.Address.SpendPublic, amount, txHash)
		tx := types.Transaction{Hash: txHash, PublicKey: txPub, Outputs: []types.TransactionOutputInformation{out}}
		blocks := []BlockEntry{{HasBody: true, BlockInfo: types.BlockInfo{Height: 0}, Transactions: []types.Transaction{tx}}}
		consumer, ok := src.consumers[consumerKeys.Address.ViewPublic]
		if !ok {
			t.Fatalf("consumer for view key %v not registered", consumerKeys.Address.ViewPublic)
		}
		if ok := consumer.OnNewBlocks(context.Background(), blocks, 0, 1); !ok {
			t.Fatalf("funding scan failed for tx %d", txTag)
		}
		if _, err := sub.Container.AdvanceHeight(10); err != nil {
			t.Fatal(err)
		}
	}
	fund(keysA1, subA1, 1000, 0xA1)
	fund(keysA2, subA2, 2000, 0xA2)
	fund(keysB1, subB1, 3000, 0xB1)

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatal(err)
	}
	saved := append([]byte(nil), buf.Bytes()...)

	dst := NewSynchronizer(genesis, deriver, node, 5, func() bool { return running })
	dstA1, dstSubA1, err := dst.AddSubscription(keysA1, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}
	_ = dstA1
	_, dstSubA2, err := dst.AddSubscription(keysA2, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}
	_, dstSubB1, err := dst.AddSubscription(keysB1, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}

	if err := dst.Load(bytes.NewReader(saved)); err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name string
		sub  *Subscription
		want uint64
	}{
		{"A1", dstSubA1, 1000},
		{"A2", dstSubA2, 2000},
		{"B1", dstSubB1, 3000},
	}
	for _, c := range checks {
		if got := c.sub.Container.Balance(transfers.DefaultBalanceFlags); got != c.want {
			t.Errorf("%s: expected balance %d, got %d", c.name, c.want, got)
		}
	}

	var rebuf bytes.Buffer
	if err := dst.Save(&rebuf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(saved, rebuf.Bytes()) {
		t.Error("expected an immediate re-save to be byte-identical")
	}
}

// TestSynchronizerLoadSkipsUnregisteredEntries covers loading a save that
// names a view key the destination synchronizer never registered: Load
// must decode and discard that entry without erroring, leaving registered
// consumers intact.
func TestSynchronizerLoadSkipsUnregisteredEntries(t *testing.T) {
	deriver := cryptoprim.FakeDeriver{}
	node := &stubNode{globalIndices: map[types.Hash][]uint32{}}
	var genesis types.Hash
	running := false

	src := NewSynchronizer(genesis, deriver, node, 5, func() bool { return running })
	keysA := testAccountWithView(0x01, 0x11)
	keysGone := testAccountWithView(0x09, 0x91)
	if _, _, err := src.AddSubscription(keysA, SyncStart{}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := src.AddSubscription(keysGone, SyncStart{}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatal(err)
	}

	dst := NewSynchronizer(genesis, deriver, node, 5, func() bool { return running })
	if _, _, err := dst.AddSubscription(keysA, SyncStart{}); err != nil {
		t.Fatal(err)
	}
	// keysGone intentionally not re-registered.

	if err := dst.Load(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("expected Load to tolerate an unregistered entry, got %v", err)
	}
	if len(dst.Consumers()) != 1 {
		t.Errorf("expected exactly the registered consumer to remain, got %d", len(dst.Consumers()))
	}
}
