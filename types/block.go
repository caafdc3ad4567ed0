package types

import (
	"encoding/json"

	"github.com/kindrednet/kindred/common"
)

// Block is a header plus its transactions and uncle references. An
// uncle reference carries the uncle's header only, never its body.
type Block struct {
	Header       Header        `json:"header"`
	Transactions []Transaction `json:"transactions"`
	Uncles       []Header      `json:"uncles"`
}

func NewBlock() *Block {
	return &Block{}
}

func (b *Block) Hash() common.Hash {
	return b.Header.Hash()
}

func (b *Block) Number() uint64 {
	return b.Header.Number
}

func (b *Block) ParentHash() common.Hash {
	return b.Header.ParentHash
}

func (b *Block) UnclesCount() int {
	return len(b.Uncles)
}

// UncleHashes returns the content hashes of the uncle references, in
// block order.
func (b *Block) UncleHashes() []common.Hash {
	hashes := make([]common.Hash, 0, len(b.Uncles))
	for i := range b.Uncles {
		hashes = append(hashes, b.Uncles[i].Hash())
	}
	return hashes
}

// ComputeTxRoot folds the transaction hashes into a single digest.
func ComputeTxRoot(txs []Transaction) common.Hash {
	if len(txs) == 0 {
		return common.Hash{}
	}
	data := make([]byte, 0, len(txs)*32)
	for i := range txs {
		h := txs[i].Hash()
		data = append(data, h.Bytes()...)
	}
	return common.Blake2Hash(data)
}

// ComputeUnclesRoot folds the uncle header hashes into a single digest.
func ComputeUnclesRoot(uncles []Header) common.Hash {
	if len(uncles) == 0 {
		return common.Hash{}
	}
	data := make([]byte, 0, len(uncles)*32)
	for i := range uncles {
		h := uncles[i].Hash()
		data = append(data, h.Bytes()...)
	}
	return common.Blake2Hash(data)
}

// SealRoots recomputes and stamps TxRoot/UnclesRoot on the header so
// the header hash commits to the body.
func (b *Block) SealRoots() {
	b.Header.TxRoot = ComputeTxRoot(b.Transactions)
	b.Header.UnclesRoot = ComputeUnclesRoot(b.Uncles)
}

// CheckRoots verifies the header commits to the body it arrived with.
func (b *Block) CheckRoots() bool {
	return b.Header.TxRoot == ComputeTxRoot(b.Transactions) &&
		b.Header.UnclesRoot == ComputeUnclesRoot(b.Uncles)
}

func (b *Block) Copy() *Block {
	if b == nil {
		return nil
	}
	c := NewBlock()
	c.Header = *b.Header.Copy()
	c.Transactions = make([]Transaction, len(b.Transactions))
	copy(c.Transactions, b.Transactions)
	c.Uncles = make([]Header, len(b.Uncles))
	copy(c.Uncles, b.Uncles)
	return c
}

func (b *Block) Bytes() ([]byte, error) {
	return json.Marshal(b)
}

func DecodeBlock(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
