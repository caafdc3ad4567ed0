package types

import "fmt"

// EpochNumberWithFraction locates a header inside its epoch: the epoch
// number, the header's index within the epoch, and the epoch length.
// A header with Index == 0 is the first block of its epoch.
type EpochNumberWithFraction struct {
	Number uint64 `json:"number"`
	Index  uint64 `json:"index"`
	Length uint64 `json:"length"`
}

const (
	epochNumberBits = 24
	epochIndexBits  = 16
	epochLengthBits = 16

	epochNumberMask = (uint64(1) << epochNumberBits) - 1
	epochIndexMask  = (uint64(1) << epochIndexBits) - 1
	epochLengthMask = (uint64(1) << epochLengthBits) - 1
)

func NewEpochNumberWithFraction(number, index, length uint64) EpochNumberWithFraction {
	return EpochNumberWithFraction{Number: number, Index: index, Length: length}
}

// IsFirstBlockInEpoch reports whether the header sits at the epoch boundary.
func (e EpochNumberWithFraction) IsFirstBlockInEpoch() bool {
	return e.Index == 0
}

// IsWellFormed checks the fraction fields fit their packed widths and
// the index lies inside the epoch.
func (e EpochNumberWithFraction) IsWellFormed() bool {
	return e.Number <= epochNumberMask &&
		e.Index <= epochIndexMask &&
		e.Length <= epochLengthMask &&
		e.Length > 0 &&
		e.Index < e.Length
}

// Pack encodes the fraction into a single uint64:
// length in bits [40,56), index in [24,40), number in [0,24).
func (e EpochNumberWithFraction) Pack() uint64 {
	return (e.Length&epochLengthMask)<<(epochNumberBits+epochIndexBits) |
		(e.Index&epochIndexMask)<<epochNumberBits |
		e.Number&epochNumberMask
}

func UnpackEpoch(v uint64) EpochNumberWithFraction {
	return EpochNumberWithFraction{
		Number: v & epochNumberMask,
		Index:  (v >> epochNumberBits) & epochIndexMask,
		Length: (v >> (epochNumberBits + epochIndexBits)) & epochLengthMask,
	}
}

// Successor returns the epoch position of the next block, rolling into
// a new epoch of the same length at the boundary.
func (e EpochNumberWithFraction) Successor() EpochNumberWithFraction {
	if e.Index+1 < e.Length {
		return EpochNumberWithFraction{Number: e.Number, Index: e.Index + 1, Length: e.Length}
	}
	return EpochNumberWithFraction{Number: e.Number + 1, Index: 0, Length: e.Length}
}

func (e EpochNumberWithFraction) String() string {
	return fmt.Sprintf("epoch %d (%d/%d)", e.Number, e.Index, e.Length)
}
