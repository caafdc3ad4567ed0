package types

// ChainSpec pins the consensus parameters of a network. The values are
// fixed by the network's rules; every node on a network must agree.
type ChainSpec struct {
	Name                 string `json:"name"`
	EpochLength          uint64 `json:"epoch_length"`
	MaxUnclesPerBlock    int    `json:"max_uncles_per_block"`
	UncleDescendantLimit uint64 `json:"uncle_descendant_limit"`
	GenesisDifficulty    uint64 `json:"genesis_difficulty"`
	GenesisTimestamp     uint64 `json:"genesis_timestamp"`
}

func MainnetSpec() *ChainSpec {
	return &ChainSpec{
		Name:                 "mainnet",
		EpochLength:          DefaultEpochLength,
		MaxUnclesPerBlock:    MaxUnclesPerBlock,
		UncleDescendantLimit: UncleDescendantLimit,
		GenesisDifficulty:    GenesisDifficulty,
		GenesisTimestamp:     1750000000000,
	}
}

// TestSpec returns a spec with a short epoch so boundary behavior is
// reachable in tests.
func TestSpec(epochLength uint64) *ChainSpec {
	return &ChainSpec{
		Name:                 "test",
		EpochLength:          epochLength,
		MaxUnclesPerBlock:    MaxUnclesPerBlock,
		UncleDescendantLimit: UncleDescendantLimit,
		GenesisDifficulty:    1,
		GenesisTimestamp:     0,
	}
}

// GenesisHeader builds the epoch-zero header every chain starts from.
func (cs *ChainSpec) GenesisHeader() *Header {
	return &Header{
		Number:     0,
		Timestamp:  cs.GenesisTimestamp,
		Epoch:      NewEpochNumberWithFraction(0, 0, cs.EpochLength),
		Difficulty: cs.GenesisDifficulty,
	}
}

// GenesisBlock builds the genesis block (empty body, sealed roots).
func (cs *ChainSpec) GenesisBlock() *Block {
	b := NewBlock()
	b.Header = *cs.GenesisHeader()
	b.SealRoots()
	return b
}
