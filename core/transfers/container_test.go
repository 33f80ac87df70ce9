package transfers

import (
	"bytes"
	"testing"

	"github.com/amjuarez/bytecoin-sub006/core/types"
)

func ki(n byte) types.KeyImage {
	var k types.KeyImage
	k[0] = n
	return k
}

func th(n byte) types.Hash {
	var h types.Hash
	h[0] = n
	return h
}

func keyOutput(tx types.Hash, amount uint64, image byte) types.TransactionOutputInformation {
	return types.TransactionOutputInformation{
		Type:              types.OutputTypeKey,
		Amount:            amount,
		TransactionHash:   tx,
		KeyImage:          ki(image),
		GlobalOutputIndex: types.UnconfirmedGlobalIndex,
	}
}

// TestIncomingTransferConfirmsThenUnlocks covers a single incoming
// transfer that confirms and later becomes spendable.
func TestIncomingTransferConfirmsThenUnlocks(t *testing.T) {
	c := NewContainer(5)
	tx := types.Transaction{Hash: th(1)}
	out := keyOutput(th(1), 1000, 1)

	added, err := c.AddTransaction(types.BlockInfo{Height: 10}, tx, []types.TransactionOutputInformation{out})
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Fatal("expected AddTransaction to report a change")
	}

	if _, err := c.AdvanceHeight(10); err != nil {
		t.Fatal(err)
	}

	if bal := c.Balance(IncludeLocked | IncludeTypeKey); bal != 1000 {
		t.Errorf("expected locked balance 1000, got %d", bal)
	}
	if bal := c.Balance(DefaultBalanceFlags); bal != 0 {
		t.Errorf("expected unlocked balance 0, got %d", bal)
	}

	unlocked, err := c.AdvanceHeight(15)
	if err != nil {
		t.Fatal(err)
	}
	if len(unlocked) != 1 || unlocked[0].Amount != 1000 {
		t.Errorf("expected one newly unlocked output of 1000, got %+v", unlocked)
	}
	if bal := c.Balance(DefaultBalanceFlags); bal != 1000 {
		t.Errorf("expected unlocked balance 1000, got %d", bal)
	}
}

// TestDetachRemovesConfirmedTransaction covers a reorg detaching a
// confirmed transaction.
func TestDetachRemovesConfirmedTransaction(t *testing.T) {
	c := NewContainer(5)
	tx := types.Transaction{Hash: th(1)}
	out := keyOutput(th(1), 1000, 1)

	if _, err := c.AddTransaction(types.BlockInfo{Height: 10}, tx, []types.TransactionOutputInformation{out}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AdvanceHeight(10); err != nil {
		t.Fatal(err)
	}

	result := c.Detach(10)
	if len(result.DeletedTxHashes) != 1 || result.DeletedTxHashes[0] != th(1) {
		t.Errorf("expected tx %v deleted, got %+v", th(1), result.DeletedTxHashes)
	}
	if bal := c.Balance(IncludeAllStates | IncludeAllTypes); bal != 0 {
		t.Errorf("expected balance 0 after detach, got %d", bal)
	}
	pending := c.GetUnconfirmedTransactions()
	for _, h := range pending {
		if h == th(1) {
			t.Error("detached tx should not reappear as unconfirmed")
		}
	}
}

// TestPoolTransactionConfirms covers a pool transaction later mined
// into a block.
func TestPoolTransactionConfirms(t *testing.T) {
	c := NewContainer(5)
	tx := types.Transaction{Hash: th(2)}
	out := keyOutput(th(2), 500, 2)

	if _, err := c.AddTransaction(unconfirmedBlockInfo(), tx, []types.TransactionOutputInformation{out}); err != nil {
		t.Fatal(err)
	}

	unconfirmed := c.GetUnconfirmedTransactions()
	if len(unconfirmed) != 1 || unconfirmed[0] != th(2) {
		t.Fatalf("expected tx %v pending, got %+v", th(2), unconfirmed)
	}

	if err := c.MarkTransactionConfirmed(types.BlockInfo{Height: 20}, th(2), []uint32{7}); err != nil {
		t.Fatal(err)
	}

	if len(c.GetUnconfirmedTransactions()) != 0 {
		t.Error("tx should no longer be unconfirmed after confirmation")
	}
	outs := c.GetTransactionOutputs(th(2), IncludeAllStates|IncludeAllTypes)
	if len(outs) != 1 || outs[0].GlobalOutputIndex != 7 {
		t.Errorf("expected global index 7 after confirmation, got %+v", outs)
	}
}

// TestDoubleSpendAcrossPoolAndChain covers the same key image being
// spent first by a pool transaction and then by a confirmed one.
func TestDoubleSpendAcrossPoolAndChain(t *testing.T) {
	c := NewContainer(5)
	fundingTx := types.Transaction{Hash: th(1)}
	out := keyOutput(th(1), 1000, 9)
	if _, err := c.AddTransaction(types.BlockInfo{Height: 1}, fundingTx, []types.TransactionOutputInformation{out}); err != nil {
		t.Fatal(err)
	}

	t1 := types.Transaction{Hash: th(10), InputImages: []types.KeyImage{ki(9)}}
	if _, err := c.AddTransaction(unconfirmedBlockInfo(), t1, nil); err != nil {
		t.Fatal(err)
	}

	spentBalance := c.Balance(IncludeSpent | IncludeTypeKey)
	if spentBalance != 1000 {
		t.Errorf("expected spent balance 1000 after T1, got %d", spentBalance)
	}

	t2 := types.Transaction{Hash: th(11), InputImages: []types.KeyImage{ki(9)}}
	if _, err := c.AddTransaction(types.BlockInfo{Height: 30}, t2, nil); err != nil {
		t.Fatal(err)
	}

	spent := c.GetSpentOutputs()
	if len(spent) != 1 || spent[0].SpendingTxHash != th(11) {
		t.Errorf("expected T2 to be the sole visible spend, got %+v", spent)
	}

	c.DeleteUnconfirmedTransaction(th(10))
	spent = c.GetSpentOutputs()
	if len(spent) != 1 || spent[0].SpendingTxHash != th(11) {
		t.Errorf("expected T2 to remain the sole visible spend after T1 times out, got %+v", spent)
	}
}

func TestInvariantAtMostOneVisibleUnspentPerDescriptor(t *testing.T) {
	c := NewContainer(5)
	out := keyOutput(th(1), 100, 1)
	c.AddTransaction(types.BlockInfo{Height: 1}, types.Transaction{Hash: th(1)}, []types.TransactionOutputInformation{out})
	// Re-add the same output under a different tx hash: the collision
	// sentinel should mark both invisible, never both visible.
	out2 := out
	c.AddTransaction(types.BlockInfo{Height: 2}, types.Transaction{Hash: th(2)}, []types.TransactionOutputInformation{out2})

	visibleCount := 0
	for _, r := range c.unspent {
		if r.Visible {
			visibleCount++
		}
	}
	if visibleCount > 1 {
		t.Errorf("expected at most one visible unspent entry per descriptor, got %d", visibleCount)
	}
}

// TestContainerSaveLoadRoundTrip covers saving a container with unspent,
// spent, and pending-unconfirmed state, loading it into a fresh one, and
// checking every balance/output view matches before a byte-identical
// re-save.
func TestContainerSaveLoadRoundTrip(t *testing.T) {
	c := NewContainer(5)

	unspentOut := keyOutput(th(1), 1000, 1)
	if _, err := c.AddTransaction(types.BlockInfo{Height: 1}, types.Transaction{Hash: th(1)}, []types.TransactionOutputInformation{unspentOut}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AdvanceHeight(10); err != nil {
		t.Fatal(err)
	}

	spentOut := keyOutput(th(2), 2000, 2)
	if _, err := c.AddTransaction(types.BlockInfo{Height: 2}, types.Transaction{Hash: th(2)}, []types.TransactionOutputInformation{spentOut}); err != nil {
		t.Fatal(err)
	}
	spendTx := types.Transaction{Hash: th(3), InputImages: []types.KeyImage{ki(2)}}
	if _, err := c.AddTransaction(types.BlockInfo{Height: 12}, spendTx, nil); err != nil {
		t.Fatal(err)
	}

	pendingOut := keyOutput(th(4), 500, 4)
	if _, err := c.AddTransaction(unconfirmedBlockInfo(), types.Transaction{Hash: th(4)}, []types.TransactionOutputInformation{pendingOut}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		t.Fatal(err)
	}
	saved := append([]byte(nil), buf.Bytes()...)

	loaded := NewContainer(5)
	if err := loaded.Load(bytes.NewReader(saved)); err != nil {
		t.Fatal(err)
	}

	flagSets := []Flags{
		DefaultBalanceFlags,
		IncludeAllStates | IncludeAllTypes,
		IncludeLocked | IncludeTypeKey,
		IncludeSpent | IncludeTypeKey,
	}
	for _, flags := range flagSets {
		want := c.Balance(flags)
		got := loaded.Balance(flags)
		if want != got {
			t.Errorf("balance(%v): expected %d, got %d", flags, want, got)
		}
	}

	wantOuts := c.GetOutputs(IncludeAllStates | IncludeAllTypes)
	gotOuts := loaded.GetOutputs(IncludeAllStates | IncludeAllTypes)
	if len(wantOuts) != len(gotOuts) {
		t.Fatalf("expected %d outputs after load, got %d", len(wantOuts), len(gotOuts))
	}

	var rebuf bytes.Buffer
	if err := loaded.Save(&rebuf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(saved, rebuf.Bytes()) {
		t.Error("expected an immediate re-save to be byte-identical")
	}
}
