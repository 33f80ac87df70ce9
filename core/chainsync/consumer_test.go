package chainsync

import (
	"context"
	"testing"

	"github.com/amjuarez/bytecoin-sub006/core/cryptoprim"
	"github.com/amjuarez/bytecoin-sub006/core/transfers"
	"github.com/amjuarez/bytecoin-sub006/core/types"
)

type stubNode struct {
	globalIndices map[types.Hash][]uint32
}

func (s *stubNode) QueryBlocks(context.Context, []types.Hash, uint64) (QueryBlocksResult, error) {
	return QueryBlocksResult{}, nil
}
func (s *stubNode) GetPoolSymmetricDifference(context.Context, []types.Hash, types.Hash) (PoolDiffResult, error) {
	return PoolDiffResult{}, nil
}
func (s *stubNode) GetTransactionGlobalIndices(_ context.Context, hash types.Hash) ([]uint32, error) {
	return s.globalIndices[hash], nil
}
func (s *stubNode) GetRandomOutputs(context.Context, []uint64, uint32) ([][]types.TransactionOutputInformation, error) {
	return nil, nil
}
func (s *stubNode) RelayTransaction(context.Context, types.Transaction) error { return nil }

func newTestAccount(tag byte) types.AccountKeys {
	var spendPub, viewPub types.PublicKey
	var viewSec types.SecretKey
	spendPub[0] = tag
	viewPub[0] = 0x10
	viewSec[0] = 0x20
	return types.AccountKeys{
		Address: types.Address{SpendPublic: spendPub, ViewPublic: viewPub},
		ViewSec: viewSec,
	}
}

// ownedOutputFor builds an output whose key matches what FakeDeriver
// would derive for the given tx/viewSec/index/spendPub combination.
func ownedOutputFor(deriver cryptoprim.FakeDeriver, txPub types.PublicKey, viewSec types.SecretKey, index uint32, spendPub types.PublicKey, amount uint64, txHash types.Hash) types.TransactionOutputInformation {
	outKey, _ := deriver.DeriveOutputKey(txPub, viewSec, index, spendPub)
	return types.TransactionOutputInformation{
		Type:                 types.OutputTypeKey,
		Amount:               amount,
		OutputKey:            outKey,
		OutputInTransaction:  index,
		TransactionHash:      txHash,
		TransactionPublicKey: txPub,
		GlobalOutputIndex:    types.UnconfirmedGlobalIndex,
	}
}

func TestConsumerOnNewBlocksMatchesOwnedOutput(t *testing.T) {
	keys := newTestAccount(0x01)
	deriver := cryptoprim.FakeDeriver{}
	node := &stubNode{globalIndices: map[types.Hash][]uint32{}}

	var genesis types.Hash
	c := NewConsumer(keys, genesis, deriver, node, 5)
	sub, err := c.AddSubscription(keys, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}

	var txPub types.PublicKey
	txPub[0] = 0xAA
	txHash := types.Hash{0x01}
	node.globalIndices[txHash] = []uint32{42}

	out := ownedOutputFor(deriver, txPub, keys.ViewSec, 0, keys.Address.SpendPublic, 1000, txHash)
	tx := types.Transaction{Hash: txHash, PublicKey: txPub, Outputs: []types.TransactionOutputInformation{out}}

	blocks := []BlockEntry{{HasBody: true, BlockInfo: types.BlockInfo{Timestamp: 1}, Transactions: []types.Transaction{tx}}}
	ok := c.OnNewBlocks(context.Background(), blocks, 10, 1)
	if !ok {
		t.Fatal("expected scan to succeed")
	}

	outs := sub.Container.GetOutputs(transfers.IncludeAllStates | transfers.IncludeAllTypes)
	if len(outs) != 1 || outs[0].Amount != 1000 {
		t.Fatalf("expected one matched output of amount 1000, got %+v", outs)
	}
	if outs[0].GlobalOutputIndex != 42 {
		t.Errorf("expected global index 42, got %d", outs[0].GlobalOutputIndex)
	}
}

func TestConsumerRejectsWrongViewSecret(t *testing.T) {
	keys := newTestAccount(0x01)
	wrong := keys
	wrong.ViewSec[0]++

	var genesis types.Hash
	c := NewConsumer(keys, genesis, cryptoprim.FakeDeriver{}, &stubNode{}, 5)
	if _, err := c.AddSubscription(wrong, SyncStart{}); err != ErrWrongViewKey {
		t.Fatalf("expected ErrWrongViewKey, got %v", err)
	}
}

// TestConsumerPoolScanDoesNotCorruptHeight guards against a regression
// where routing a pool scan through OnNewBlocks with startHeight ==
// UnconfirmedHeight advanced every subscription's container to that
// sentinel height, permanently reporting locked outputs as unlocked and
// wedging every later real AdvanceHeight behind ErrHeightMovedBackward.
func TestConsumerPoolScanDoesNotCorruptHeight(t *testing.T) {
	keys := newTestAccount(0x01)
	deriver := cryptoprim.FakeDeriver{}
	node := &stubNode{globalIndices: map[types.Hash][]uint32{}}

	var genesis types.Hash
	c := NewConsumer(keys, genesis, deriver, node, 5)
	sub, err := c.AddSubscription(keys, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sub.Container.AdvanceHeight(10); err != nil {
		t.Fatal(err)
	}

	var txPub types.PublicKey
	txPub[0] = 0xAA
	txHash := types.Hash{0x03}
	out := ownedOutputFor(deriver, txPub, keys.ViewSec, 0, keys.Address.SpendPublic, 500, txHash)
	tx := types.Transaction{Hash: txHash, PublicKey: txPub, Outputs: []types.TransactionOutputInformation{out}}

	if err := c.OnPoolUpdated(context.Background(), []types.Transaction{tx}, nil); err != nil {
		t.Fatal(err)
	}

	if got := sub.Container.CurrentHeight(); got != 10 {
		t.Fatalf("expected current height to remain 10 after a pool scan, got %d", got)
	}

	if _, err := sub.Container.AdvanceHeight(11); err != nil {
		t.Fatalf("expected a real height advance to still succeed, got %v", err)
	}
}

func TestConsumerAddRemoveUnconfirmedTransaction(t *testing.T) {
	keys := newTestAccount(0x01)
	deriver := cryptoprim.FakeDeriver{}
	node := &stubNode{globalIndices: map[types.Hash][]uint32{}}

	var genesis types.Hash
	c := NewConsumer(keys, genesis, deriver, node, 5)
	sub, err := c.AddSubscription(keys, SyncStart{})
	if err != nil {
		t.Fatal(err)
	}

	// Fund the subscription with a confirmed, spendable output.
	var fundPub types.PublicKey
	fundPub[0] = 0xAA
	fundHash := types.Hash{0x01}
	fundOut := ownedOutputFor(deriver, fundPub, keys.ViewSec, 0, keys.Address.SpendPublic, 1000, fundHash)
	fundOut.KeyImage = types.KeyImage{0x11}
	fundTx := types.Transaction{Hash: fundHash, PublicKey: fundPub, Outputs: []types.TransactionOutputInformation{fundOut}}
	if ok := c.OnNewBlocks(context.Background(), []BlockEntry{{HasBody: true, BlockInfo: types.BlockInfo{Height: 0}, Transactions: []types.Transaction{fundTx}}}, 0, 1); !ok {
		t.Fatal("expected funding scan to succeed")
	}
	if _, err := sub.Container.AdvanceHeight(10); err != nil {
		t.Fatal(err)
	}
	if bal := sub.Container.Balance(transfers.DefaultBalanceFlags); bal != 1000 {
		t.Fatalf("expected available balance 1000 before spend, got %d", bal)
	}

	spendHash := types.Hash{0x02}
	spendTx := types.Transaction{Hash: spendHash, InputImages: []types.KeyImage{fundOut.KeyImage}}
	if err := c.AddUnconfirmedTransaction(context.Background(), spendTx); err != nil {
		t.Fatal(err)
	}

	if bal := sub.Container.Balance(transfers.DefaultBalanceFlags); bal != 0 {
		t.Fatalf("expected the spent output to be excluded from available balance, got %d", bal)
	}

	c.RemoveUnconfirmedTransaction(spendHash)

	if bal := sub.Container.Balance(transfers.DefaultBalanceFlags); bal != 1000 {
		t.Fatalf("expected available balance restored to 1000 after removal, got %d", bal)
	}
}
