package types

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/kindrednet/kindred/common"
)

// Header is the immutable consensus view of a block. The content hash
// is a pure function of every other field; two headers with equal
// hashes are the same header.
type Header struct {
	Number     uint64                  `json:"number"`
	ParentHash common.Hash             `json:"parent_hash"`
	Timestamp  uint64                  `json:"timestamp"`
	Epoch      EpochNumberWithFraction `json:"epoch"`
	Difficulty uint64                  `json:"difficulty"`
	TxRoot     common.Hash             `json:"tx_root"`
	UnclesRoot common.Hash             `json:"uncles_root"`
}

func NewHeader() *Header {
	return &Header{}
}

// BytesForHash returns the fixed binary layout the content hash is
// computed over. This layout is consensus-critical.
func (h *Header) BytesForHash() []byte {
	out := make([]byte, 0, 8+32+8+8+8+32+32)
	out = append(out, common.Uint64ToBytes(h.Number)...)
	out = append(out, h.ParentHash.Bytes()...)
	out = append(out, common.Uint64ToBytes(h.Timestamp)...)
	out = append(out, common.Uint64ToBytes(h.Epoch.Pack())...)
	out = append(out, common.Uint64ToBytes(h.Difficulty)...)
	out = append(out, h.TxRoot.Bytes()...)
	out = append(out, h.UnclesRoot.Bytes()...)
	return out
}

// Hash returns the blake2b content hash of the header.
func (h *Header) Hash() common.Hash {
	return common.Blake2Hash(h.BytesForHash())
}

// Work returns the amount of proof-of-work this single header carries.
func (h *Header) Work() *uint256.Int {
	return uint256.NewInt(h.Difficulty)
}

// IsEpochStart reports whether this header is the first block of its epoch.
func (h *Header) IsEpochStart() bool {
	return h.Epoch.IsFirstBlockInEpoch()
}

// IsWellFormed checks structural invariants that do not need chain
// state: genesis links to the nil hash, everything else to a parent.
func (h *Header) IsWellFormed() bool {
	if !h.Epoch.IsWellFormed() {
		return false
	}
	if h.Number == 0 {
		return common.IsNilHash(h.ParentHash)
	}
	return !common.IsNilHash(h.ParentHash)
}

func (h *Header) Copy() *Header {
	if h == nil {
		return nil
	}
	c := *h
	return &c
}

func (h *Header) String() string {
	return fmt.Sprintf("#%d %s parent=%s %s", h.Number, h.Hash().String_short(), h.ParentHash.String_short(), h.Epoch.String())
}

func (h *Header) MarshalIndent() string {
	jsonByte, _ := json.MarshalIndent(h, "", "  ")
	return string(jsonByte)
}
