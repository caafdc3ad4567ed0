package types

import (
	"testing"

	"github.com/kindrednet/kindred/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTx(capacity uint64) Transaction {
	return Transaction{
		Version: 1,
		Inputs:  []CellInput{{PreviousOutput: OutPoint{Index: 0}}},
		Outputs: []CellOutput{{Capacity: capacity}},
	}
}

func TestSealAndCheckRoots(t *testing.T) {
	b := NewBlock()
	b.Header = sampleHeader()
	b.Transactions = []Transaction{sampleTx(100), sampleTx(200)}
	b.Uncles = []Header{sampleHeader()}

	b.SealRoots()
	assert.True(t, b.CheckRoots())

	// Tampering with the body breaks the commitment.
	b.Transactions[0].Outputs[0].Capacity = 999
	assert.False(t, b.CheckRoots())
}

func TestEmptyBodyRoots(t *testing.T) {
	b := NewBlock()
	b.Header = sampleHeader()
	b.SealRoots()
	assert.True(t, common.IsNilHash(b.Header.TxRoot))
	assert.True(t, common.IsNilHash(b.Header.UnclesRoot))
	assert.True(t, b.CheckRoots())
}

func TestBlockEncodeRoundtrip(t *testing.T) {
	b := NewBlock()
	b.Header = sampleHeader()
	b.Transactions = []Transaction{sampleTx(100)}
	b.Uncles = []Header{sampleHeader()}
	b.SealRoots()

	data, err := b.Bytes()
	require.NoError(t, err)
	decoded, err := DecodeBlock(data)
	require.NoError(t, err)
	assert.Equal(t, b.Hash(), decoded.Hash())
	assert.True(t, decoded.CheckRoots())
}

func TestBlockCopyIsDeep(t *testing.T) {
	b := NewBlock()
	b.Header = sampleHeader()
	b.Transactions = []Transaction{sampleTx(100)}
	b.SealRoots()

	c := b.Copy()
	c.Transactions[0] = sampleTx(999)
	c.Header.Timestamp = 1
	assert.Equal(t, uint64(100), b.Transactions[0].Outputs[0].Capacity)
	assert.NotEqual(t, b.Header.Timestamp, c.Header.Timestamp)
}

func TestTransactionHashIgnoresAttachedHash(t *testing.T) {
	tx := sampleTx(100)
	bare := tx.Hash()

	withHash := tx.WithHash()
	require.NotNil(t, withHash.TxHash)
	assert.Equal(t, bare, *withHash.TxHash)
	assert.Equal(t, bare, withHash.Hash(), "attached hash must not feed the preimage")
}

func TestUncleHashes(t *testing.T) {
	u1 := sampleHeader()
	u2 := sampleHeader()
	u2.Timestamp++

	b := NewBlock()
	b.Header = sampleHeader()
	b.Uncles = []Header{u1, u2}

	hashes := b.UncleHashes()
	require.Len(t, hashes, 2)
	assert.Equal(t, u1.Hash(), hashes[0])
	assert.Equal(t, u2.Hash(), hashes[1])
	assert.NotEqual(t, hashes[0], hashes[1])
}
