package types

const (
	// MaxUnclesPerBlock is the most uncle references one block may carry.
	MaxUnclesPerBlock = 2

	// UncleDescendantLimit bounds how far back an uncle's lineage may
	// reconnect to the context block's ancestry, in blocks.
	UncleDescendantLimit = 6

	// DefaultEpochLength is the number of blocks per epoch on mainnet.
	DefaultEpochLength = 1800

	// GenesisDifficulty is the per-block work of the genesis header.
	GenesisDifficulty = 0x20000

	// MaxOrphanBlocks caps how many unknown-parent blocks are buffered
	// before the oldest is evicted.
	MaxOrphanBlocks = 1024
)
