// Package cryptoprim isolates the cryptographic primitives the wallet
// synchronization core treats as dependencies rather than something it
// implements itself: the wallet-file stream cipher, the password-derived
// key used to open it, and the per-output key-image/stealth-address
// derivations a consumer needs while scanning. Each is an interface with
// a real default implementation, following the same dependency-injected
// keyDeriver split used elsewhere in this codebase for signature
// generation.
package cryptoprim

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/amjuarez/bytecoin-sub006/core/types"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/sha3"
)

// ErrShortKey is returned when a caller supplies a key or IV of the wrong
// length to a StreamCipher.
var ErrShortKey = errors.New("cryptoprim: key or nonce too short")

const (
	// StreamKeySize is the size in bytes of a ChaCha8 key.
	StreamKeySize = chacha20.KeySize
	// StreamIVSize is the size in bytes of the IV this core derives from
	// its monotonically increasing record counter.
	StreamIVSize = 8
)

// StreamCipher encrypts or decrypts in place, XOR-style, so the same
// method is used for both directions. Implementations must be safe to
// call repeatedly against a growing byte stream as long as callers never
// reuse a (key, iv) pair for two different plaintexts.
type StreamCipher interface {
	XORKeyStream(dst, src []byte)
}

// CipherFactory builds a StreamCipher for a given key and record index.
// The record index, not a random nonce, is what keeps the wallet file's
// encrypted envelopes collision-free: each record i in the file uses the
// stream positioned at iv=i.
type CipherFactory interface {
	NewCipher(key [StreamKeySize]byte, recordIndex uint64) (StreamCipher, error)
}

// StdCipherFactory is the production CipherFactory, built on ChaCha8 via
// golang.org/x/crypto/chacha20 (RFC 8439's 20-round construction is used
// here in place of the original's 8-round variant; see design notes).
type StdCipherFactory struct{}

// NewCipher implements CipherFactory.
func (StdCipherFactory) NewCipher(key [StreamKeySize]byte, recordIndex uint64) (StreamCipher, error) {
	var nonce [chacha20.NonceSize]byte
	putUint64(nonce[:StreamIVSize], recordIndex)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	return c, nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < len(b); i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// SlowHash derives a fixed-size key from a password, at a cost deliberately
// high enough to make brute-forcing the wallet file password expensive.
type SlowHash interface {
	Derive(password []byte, salt []byte) [StreamKeySize]byte
}

// StdSlowHash is the production SlowHash. It stands in for the original's
// purpose-built memory-hard hash (out of scope for this core) with a
// SHA3-256-based derivation; see DESIGN.md for why no memory-hard KDF was
// wired in.
type StdSlowHash struct{}

// Derive implements SlowHash.
func (StdSlowHash) Derive(password []byte, salt []byte) [StreamKeySize]byte {
	h := sha3.New256()
	h.Write(salt)
	h.Write(password)
	var out [StreamKeySize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Deriver computes the per-output values that depend on elliptic-curve
// scalar/point arithmetic: the shared secret between a transaction's
// public key and an account's view key, the one-time output public key
// derived from it, and the key image that uniquely fingerprints a spent
// output. The underlying curve operations are out of this core's scope;
// Deriver is the seam between the scanning logic and whatever crypto
// library supplies them.
type Deriver interface {
	// PublicFromSecret returns the public key corresponding to a secret
	// scalar (scalar multiplication against the curve base point). It is
	// used to verify a decrypted keypair is self-consistent, e.g. when
	// opening a password-protected wallet file.
	PublicFromSecret(sec types.SecretKey) (types.PublicKey, error)

	// DeriveOutputKey returns the one-time public key an output at index
	// outputIndex in a transaction with public key txPubKey would carry,
	// as seen by the account holding viewSec/spendPub.
	DeriveOutputKey(txPubKey types.PublicKey, viewSec types.SecretKey, outputIndex uint32, spendPub types.PublicKey) (types.PublicKey, error)

	// DeriveKeyImage computes the key image for an owned output, given the
	// account's spend secret and the output's derived one-time public key.
	DeriveKeyImage(outputPub types.PublicKey, spendSec types.SecretKey) (types.KeyImage, error)

	// OwnsOutput reports whether an output's public key matches the
	// one-time key this account would have generated for it, without
	// requiring a spend secret (used for view-only accounts).
	OwnsOutput(txPubKey types.PublicKey, viewSec types.SecretKey, outputIndex uint32, spendPub, outputPub types.PublicKey) (bool, error)
}

// RandomBytes fills b with cryptographically random bytes, used to mint
// new IVs and salts outside of the deterministic record-index scheme.
func RandomBytes(b []byte) error {
	_, err := io.ReadFull(rand.Reader, b)
	return err
}
