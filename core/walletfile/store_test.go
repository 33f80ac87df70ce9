package walletfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amjuarez/bytecoin-sub006/core/cryptoprim"
	"github.com/amjuarez/bytecoin-sub006/core/types"
)

func testAccount(tag byte) types.AccountKeys {
	deriver := cryptoprim.FakeDeriver{}
	var viewSec types.SecretKey
	viewSec[0] = tag
	viewPub, _ := deriver.PublicFromSecret(viewSec)
	var spendPub types.PublicKey
	spendPub[0] = tag + 1
	return types.AccountKeys{
		Address: types.Address{SpendPublic: spendPub, ViewPublic: viewPub},
		ViewSec: viewSec,
	}
}

func TestStoreCreateAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.wallet")
	deriver := cryptoprim.FakeDeriver{}
	keys := testAccount(0x01)

	store, err := Create(path, []byte("hunter2"), keys, deriver)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, loaded, err := Open(path, []byte("hunter2"), deriver)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, keys.ViewSec, loaded.ViewSec)
	assert.Equal(t, keys.Address.ViewPublic, loaded.Address.ViewPublic)
}

func TestStoreWrongPassword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.wallet")
	deriver := cryptoprim.FakeDeriver{}
	keys := testAccount(0x02)

	store, err := Create(path, []byte("correct-password"), keys, deriver)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = Open(path, []byte("wrong-password"), deriver)
	assert.Equal(t, ErrWrongPassword, err)
}

func TestStoreSpendKeypairsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.wallet")
	deriver := cryptoprim.FakeDeriver{}
	keys := testAccount(0x03)

	store, err := Create(path, []byte("pw"), keys, deriver)
	require.NoError(t, err)

	var spendPubs []types.PublicKey
	var spendSecs []types.SecretKey
	for i := byte(0); i < 5; i++ {
		var pub types.PublicKey
		var sec types.SecretKey
		pub[0], sec[0] = i+10, i+20
		idx, err := store.AddSpendKeypair(pub, sec)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), idx)
		spendPubs = append(spendPubs, pub)
		spendSecs = append(spendSecs, sec)
	}
	require.NoError(t, store.Close())

	reopened, _, err := Open(path, []byte("pw"), deriver)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.SpendKeypairs()
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, r := range records {
		assert.Equal(t, spendPubs[i], r.SpendPublic)
		assert.Equal(t, spendSecs[i], r.SpendSecret)
	}
}

// Each record's IV is drawn from a monotonically increasing counter so
// that no (key, iv) pair is ever reused across the file's lifetime; the
// test reads the store's counter before each AddSpendKeypair call.
func TestStoreRecordsUseDistinctIVs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.wallet")
	deriver := cryptoprim.FakeDeriver{}
	keys := testAccount(0x04)

	store, err := Create(path, []byte("pw"), keys, deriver)
	require.NoError(t, err)
	defer store.Close()

	ivs := map[uint64]bool{}
	for i := byte(0); i < 8; i++ {
		var pub types.PublicKey
		var sec types.SecretKey
		pub[0], sec[0] = i, i
		iv := store.nextIVCounter
		require.False(t, ivs[iv], "iv %d reused", iv)
		ivs[iv] = true
		_, err := store.AddSpendKeypair(pub, sec)
		require.NoError(t, err)
	}
	assert.Len(t, ivs, 8)
}
