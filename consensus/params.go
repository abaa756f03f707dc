package consensus

// Consensus parameters. This file is the single source of truth for the
// network-wide constants; no other package may redefine them.
const (
	// AmountDecimals is the fixed number of decimal places every Amount
	// carries (8, matching the spec's "8 decimal places" fixed-point rule).
	AmountDecimals = 8
	// UnitsPerCoin is 10^AmountDecimals, the integer scale factor amounts are
	// stored in so consensus arithmetic never touches floating point.
	UnitsPerCoin = 100_000_000

	// MaxSupply is the maximum number of base units that may ever exist.
	MaxSupply = 121_000_000 * UnitsPerCoin

	// InitialReward is the coinbase subsidy at height 1, in base units.
	InitialReward = 12 * UnitsPerCoin

	// HalvingInterval is the number of blocks between reward halvings.
	HalvingInterval = 262_800

	// TargetBlockInterval is the target time between blocks, in seconds.
	TargetBlockInterval = 120

	// RetargetWindow is the number of blocks between difficulty
	// recomputations.
	RetargetWindow = 2016

	// RetargetClamp bounds how much the target may move in one window.
	RetargetClamp = 4

	// MaxFutureDrift is the maximum number of seconds a block's timestamp may
	// be ahead of the local clock.
	MaxFutureDrift = 7200

	// MaxStringFieldLen bounds every consensus string field (addresses,
	// metadata keys/values).
	MaxStringFieldLen = 1000

	// MaxMetadataEntries bounds the number of metadata key/value pairs.
	MaxMetadataEntries = 32

	// MaxBlockTransactions bounds how many transactions (including the
	// coinbase) a block may contain. Operators may configure a stricter
	// local cap; this is the network-wide ceiling.
	MaxBlockTransactions = 20_000

	// MempoolExpirySeconds is the default age after which an un-mined
	// mempool transaction is evicted.
	MempoolExpirySeconds = 24 * 60 * 60
)

// DifficultyBitsMax is the easiest allowed target exponent: a hash must be
// less than 2^(256-DifficultyBits). DifficultyBits == 0 would mean "any hash
// passes", which is rejected as an invalid target.
const DifficultyBitsMax = 255
