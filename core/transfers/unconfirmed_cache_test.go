package transfers

import (
	"testing"

	"github.com/amjuarez/bytecoin-sub006/core/types"
)

func TestUnconfirmedCacheAddErase(t *testing.T) {
	cache := NewUnconfirmedCache()
	tx := types.Transaction{Hash: th(1)}
	d := types.SpentOutputDescriptor{Type: types.OutputTypeKey, KeyImage: ki(1)}

	cache.Add(tx, 100, 10, 1000, []types.SpentOutputDescriptor{d})
	if !cache.IsUsed(d) {
		t.Fatal("expected output to be marked used")
	}
	if cache.CountTxAmount() != 100 {
		t.Errorf("expected tx amount 100, got %d", cache.CountTxAmount())
	}

	cache.Erase(tx.Hash)
	if cache.IsUsed(d) {
		t.Error("expected output to be freed after erase")
	}
}

func TestUnconfirmedCacheDeleteOutdated(t *testing.T) {
	cache := NewUnconfirmedCache()
	cache.Add(types.Transaction{Hash: th(1)}, 1, 1, 100, nil)
	cache.Add(types.Transaction{Hash: th(2)}, 1, 1, 900, nil)

	removed := cache.DeleteOutdated(1000, 500)
	if len(removed) != 1 || removed[0] != th(1) {
		t.Errorf("expected only tx1 to time out, got %+v", removed)
	}
	if cache.CountTxAmount() != 1 {
		t.Errorf("expected remaining tx amount 1, got %d", cache.CountTxAmount())
	}
}
