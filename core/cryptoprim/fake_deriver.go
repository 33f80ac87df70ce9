package cryptoprim

import (
	"crypto/sha256"

	"github.com/amjuarez/bytecoin-sub006/core/types"
)

// FakeDeriver is a deterministic, non-cryptographic Deriver for tests. It
// lets chainsync/transfers tests construct blocks whose outputs are or are
// not owned by a given account without pulling in real curve arithmetic,
// mirroring the production/mock split used elsewhere for signature
// generation.
type FakeDeriver struct{}

func (FakeDeriver) PublicFromSecret(sec types.SecretKey) (types.PublicKey, error) {
	h := sha256.New()
	h.Write([]byte("pubfromsec"))
	h.Write(sec[:])
	var pk types.PublicKey
	copy(pk[:], h.Sum(nil))
	return pk, nil
}

func (FakeDeriver) DeriveOutputKey(txPubKey types.PublicKey, viewSec types.SecretKey, outputIndex uint32, spendPub types.PublicKey) (types.PublicKey, error) {
	return fakeCombine(txPubKey, viewSec, outputIndex, spendPub), nil
}

func (FakeDeriver) DeriveKeyImage(outputPub types.PublicKey, spendSec types.SecretKey) (types.KeyImage, error) {
	h := sha256.New()
	h.Write([]byte("keyimage"))
	h.Write(outputPub[:])
	h.Write(spendSec[:])
	var ki types.KeyImage
	copy(ki[:], h.Sum(nil))
	return ki, nil
}

func (FakeDeriver) OwnsOutput(txPubKey types.PublicKey, viewSec types.SecretKey, outputIndex uint32, spendPub, outputPub types.PublicKey) (bool, error) {
	want := fakeCombine(txPubKey, viewSec, outputIndex, spendPub)
	return want == outputPub, nil
}

func fakeCombine(txPubKey types.PublicKey, viewSec types.SecretKey, outputIndex uint32, spendPub types.PublicKey) types.PublicKey {
	h := sha256.New()
	h.Write([]byte("outputkey"))
	h.Write(txPubKey[:])
	h.Write(viewSec[:])
	h.Write([]byte{byte(outputIndex), byte(outputIndex >> 8), byte(outputIndex >> 16), byte(outputIndex >> 24)})
	h.Write(spendPub[:])
	var pk types.PublicKey
	copy(pk[:], h.Sum(nil))
	return pk
}
