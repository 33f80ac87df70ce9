// Package types holds the data model shared by the wallet synchronization
// core: hashes and key material, the per-transaction/output metadata the
// node reports, and the descriptor used to deduplicate owned outputs.
package types

import "encoding/hex"

// HashSize, PublicKeySize, SecretKeySize and KeyImageSize are all 32 bytes,
// matching the CryptoNote primitives this core treats as opaque.
const (
	HashSize      = 32
	PublicKeySize = 32
	SecretKeySize = 32
	KeyImageSize  = 32
)

// Hash is an opaque content identifier for transactions and blocks.
type Hash [HashSize]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// PublicKey is a CryptoNote public key (spend or view).
type PublicKey [PublicKeySize]byte

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// SecretKey is a CryptoNote secret key (spend or view).
type SecretKey [SecretKeySize]byte

func (k SecretKey) String() string { return "<secret>" }

// KeyImage is the deterministic one-way fingerprint of a spent key output.
type KeyImage [KeyImageSize]byte

func (k KeyImage) String() string { return hex.EncodeToString(k[:]) }

// UnconfirmedHeight is the sentinel block height recorded for a
// transaction or output that has not yet been mined.
const UnconfirmedHeight = ^uint32(0)

// UnconfirmedGlobalIndex is the sentinel global output index recorded for
// an output that has not yet been assigned one by the chain.
const UnconfirmedGlobalIndex = ^uint32(0)

// Address identifies a spendable destination: a spend public key tracked
// under a particular view secret.
type Address struct {
	SpendPublic PublicKey
	ViewPublic  PublicKey
}

// AccountKeys is the key material for one subscription: a view secret
// shared across many spend keys, plus the spend key pair for this
// particular address. SpendSec is the zero key for tracking-only wallets.
type AccountKeys struct {
	Address  Address
	SpendSec SecretKey
	ViewSec  SecretKey
}

// OutputType distinguishes plain key outputs from multisignature outputs.
type OutputType uint8

const (
	OutputTypeKey OutputType = iota
	OutputTypeMultisig
)

// TransactionInformation is the ledger-level metadata the container keeps
// for every transaction that touches the wallet. A transaction's hash and
// payload never change once recorded; BlockHeight and Timestamp change
// when a pool transaction is confirmed, and the set of outputs/inputs
// attributed to it can grow.
type TransactionInformation struct {
	TransactionHash Hash
	BlockHeight     uint32 // UnconfirmedHeight while in the pool
	Timestamp       uint64
	UnlockTime      uint64
	PublicKey       PublicKey
	PaymentID       Hash
	AmountIn        uint64
	AmountOut       uint64
	Extra           []byte
}

// TransactionOutputInformation describes a single owned output as reported
// by a consumer's block/pool scan, before it is folded into a container.
type TransactionOutputInformation struct {
	Type                OutputType
	Amount              uint64
	GlobalOutputIndex   uint32 // UnconfirmedGlobalIndex while unconfirmed
	OutputInTransaction uint32

	TransactionHash      Hash
	TransactionPublicKey PublicKey

	// OutputKey is meaningful when Type == OutputTypeKey.
	OutputKey PublicKey
	// RequiredSignatures is meaningful when Type == OutputTypeMultisig.
	RequiredSignatures uint32

	// KeyImage is carried in with the scanned output; the consumer does not
	// derive it. Only meaningful for OutputTypeKey outputs.
	KeyImage KeyImage

	UnlockTime uint64
}

// SpentOutputDescriptor is the deduplication key of a transfer: the
// key image for Key outputs, or the (amount, global index) pair for
// Multisig outputs. Two outputs sharing a descriptor are the same coin.
type SpentOutputDescriptor struct {
	Type              OutputType
	KeyImage          KeyImage // meaningful iff Type == OutputTypeKey
	Amount            uint64   // meaningful iff Type == OutputTypeMultisig
	GlobalOutputIndex uint32   // meaningful iff Type == OutputTypeMultisig
}

// DescriptorOf builds the SpentOutputDescriptor for an observed output.
func DescriptorOf(o TransactionOutputInformation) SpentOutputDescriptor {
	if o.Type == OutputTypeKey {
		return SpentOutputDescriptor{Type: OutputTypeKey, KeyImage: o.KeyImage}
	}
	return SpentOutputDescriptor{
		Type:              OutputTypeMultisig,
		Amount:            o.Amount,
		GlobalOutputIndex: o.GlobalOutputIndex,
	}
}

// BlockInfo is the minimal per-block context the core needs beyond the
// block hash: its height and timestamp, used for unlock-time evaluation
// and TransactionInformation.
type BlockInfo struct {
	Height    uint32
	Hash      Hash
	Timestamp uint64
}

// Transaction is the minimal transaction shape the core's scanners and
// containers need: its own hash/metadata plus the set of key images it
// spends (its "inputs"), used to detect spends of owned outputs.
type Transaction struct {
	Hash           Hash
	PublicKey      PublicKey
	UnlockTime     uint64
	PaymentID      Hash
	Extra          []byte
	InputImages    []KeyImage // key images spent by this transaction's inputs
	Outputs        []TransactionOutputInformation
	MultisigSpends []SpentOutputDescriptor // (amount, global index) pairs this tx spends
}
