package transfers

// Flags is the bit-mask filter accepted by Container's query methods; a
// mask combines state bits and output-type bits. A query matches a
// transfer when its state bit and its output-type bit are both set in the
// mask.
type Flags uint32

const (
	// IncludeUnlocked selects transfers whose unlock predicate is
	// currently satisfied: mature (block_height+spendable_age <= current
	// height) and past their unlock_time.
	IncludeUnlocked Flags = 1 << iota
	// IncludeLocked selects confirmed transfers that have not yet reached
	// spendable_age (still "maturing").
	IncludeLocked
	// IncludeSoftLocked selects confirmed, mature transfers whose
	// unlock_time has not yet been reached.
	IncludeSoftLocked
	// IncludeSpent selects transfers whose output has been spent, by a
	// confirmed or a still-unconfirmed transaction; only the visible
	// (authoritative) claim per output counts.
	IncludeSpent

	// IncludeTypeKey selects plain key outputs.
	IncludeTypeKey
	// IncludeTypeMultisig selects multisignature outputs.
	IncludeTypeMultisig
)

// IncludeAllStates matches every lifecycle state.
const IncludeAllStates = IncludeUnlocked | IncludeLocked | IncludeSoftLocked | IncludeSpent

// IncludeAllTypes matches every output type.
const IncludeAllTypes = IncludeTypeKey | IncludeTypeMultisig

// DefaultBalanceFlags is balance()'s default filter: spendable key
// outputs.
const DefaultBalanceFlags = IncludeUnlocked | IncludeTypeKey
