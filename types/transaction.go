package types

import (
	"encoding/json"

	"github.com/kindrednet/kindred/common"
)

type OutPoint struct {
	TxHash common.Hash `json:"tx_hash"`
	Index  uint32      `json:"index"`
}

type CellInput struct {
	PreviousOutput OutPoint `json:"previous_output"`
	Unlock         []byte   `json:"unlock"`
}

type CellOutput struct {
	Capacity uint64      `json:"capacity"`
	Data     []byte      `json:"data"`
	Lock     common.Hash `json:"lock"`
}

// Transaction is a value transfer. TxHash is not part of the content;
// it is attached by lookups that want to hand the hash back with the
// transaction (get_block fills it in for every transaction).
type Transaction struct {
	Version uint32       `json:"version"`
	Deps    []OutPoint   `json:"deps"`
	Inputs  []CellInput  `json:"inputs"`
	Outputs []CellOutput `json:"outputs"`
	TxHash  *common.Hash `json:"hash,omitempty"`
}

// Hash returns the blake2b content hash of the transaction. The
// attached TxHash field is excluded from the preimage.
func (t *Transaction) Hash() common.Hash {
	stripped := Transaction{
		Version: t.Version,
		Deps:    t.Deps,
		Inputs:  t.Inputs,
		Outputs: t.Outputs,
	}
	enc, _ := json.Marshal(&stripped)
	return common.Blake2Hash(enc)
}

// WithHash returns a copy with the content hash attached.
func (t *Transaction) WithHash() Transaction {
	c := *t
	h := t.Hash()
	c.TxHash = &h
	return c
}
