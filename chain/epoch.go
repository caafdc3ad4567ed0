package chain

import (
	"sync"

	"github.com/kindrednet/kindred/types"
)

// EpochDescriptor locates an epoch on the chain: its number, the
// height of its first block, and its length in blocks.
type EpochDescriptor struct {
	Number      uint64 `json:"number"`
	StartHeight uint64 `json:"start_height"`
	Length      uint64 `json:"length"`
}

// EpochTracker maps heights to epoch descriptors. Headers are
// immutable, so a descriptor computed for a height never changes and
// results are cached permanently keyed by epoch number.
type EpochTracker struct {
	mu     sync.RWMutex
	spec   *types.ChainSpec
	epochs map[uint64]EpochDescriptor
}

func NewEpochTracker(spec *types.ChainSpec) *EpochTracker {
	return &EpochTracker{
		spec:   spec,
		epochs: make(map[uint64]EpochDescriptor),
	}
}

// EpochOf returns the descriptor of the epoch containing height.
func (et *EpochTracker) EpochOf(height uint64) EpochDescriptor {
	number := height / et.spec.EpochLength

	et.mu.RLock()
	desc, ok := et.epochs[number]
	et.mu.RUnlock()
	if ok {
		return desc
	}

	desc = EpochDescriptor{
		Number:      number,
		StartHeight: number * et.spec.EpochLength,
		Length:      et.spec.EpochLength,
	}
	et.mu.Lock()
	et.epochs[number] = desc
	et.mu.Unlock()
	return desc
}

// IsEpochStart reports whether height is the first block of its epoch.
func (et *EpochTracker) IsEpochStart(height uint64) bool {
	return et.EpochOf(height).StartHeight == height
}

// PositionFor returns the epoch fraction a header at height must carry.
func (et *EpochTracker) PositionFor(height uint64) types.EpochNumberWithFraction {
	desc := et.EpochOf(height)
	return types.NewEpochNumberWithFraction(desc.Number, height-desc.StartHeight, desc.Length)
}
