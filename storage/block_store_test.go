package storage

import (
	"testing"

	"github.com/kindrednet/kindred/chain"
	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BlockStore {
	t.Helper()
	ps, err := NewMemoryPersistStore()
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return NewBlockStore(ps)
}

func buildChild(c *chain.Chain, parent *types.Header, salt uint64) *types.Block {
	number := parent.Number + 1
	b := types.NewBlock()
	b.Header = types.Header{
		Number:     number,
		ParentHash: parent.Hash(),
		Timestamp:  parent.Timestamp + 1 + salt,
		Epoch:      c.Epochs().PositionFor(number),
		Difficulty: parent.Difficulty,
	}
	b.SealRoots()
	return b
}

func TestPersistStoreBasics(t *testing.T) {
	ps, err := NewMemoryPersistStore()
	require.NoError(t, err)
	defer ps.Close()

	_, ok, err := ps.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ps.Put([]byte("k"), []byte("v")))
	data, ok, err := ps.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	require.NoError(t, ps.Delete([]byte("k")))
	_, ok, err = ps.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistStorePrefixScan(t *testing.T) {
	ps, err := NewMemoryPersistStore()
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, ps.Put([]byte("aa_1"), []byte("1")))
	require.NoError(t, ps.Put([]byte("aa_2"), []byte("2")))
	require.NoError(t, ps.Put([]byte("ab_1"), []byte("3")))

	results, err := ps.GetWithPrefix([]byte("aa_"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []byte("aa_1"), results[0][0])
	assert.Equal(t, []byte("aa_2"), results[1][0])
}

func TestBlockRoundtrip(t *testing.T) {
	bs := newTestStore(t)
	spec := types.TestSpec(100)
	c := chain.NewChain(spec)

	b := buildChild(c, spec.GenesisHeader(), 0)
	require.NoError(t, bs.PutBlock(b))

	got, err := bs.GetBlock(b.Hash())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.Hash(), got.Hash())

	missing, err := bs.GetBlock(common.Blake2Hash([]byte("missing")))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCanonicalIndex(t *testing.T) {
	bs := newTestStore(t)
	h := common.Blake2Hash([]byte("canon"))

	require.NoError(t, bs.SetCanonical(7, h))
	got, ok, err := bs.GetCanonical(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h, got)

	require.NoError(t, bs.DeleteCanonical(7))
	_, ok, err = bs.GetCanonical(7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTipRecord(t *testing.T) {
	bs := newTestStore(t)
	_, ok, err := bs.GetTip()
	require.NoError(t, err)
	assert.False(t, ok)

	h := common.Blake2Hash([]byte("tip"))
	require.NoError(t, bs.SetTip(h))
	got, ok, err := bs.GetTip()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h, got)
}

func TestChildIndex(t *testing.T) {
	bs := newTestStore(t)
	spec := types.TestSpec(100)
	c := chain.NewChain(spec)
	genesis := spec.GenesisHeader()

	a := buildChild(c, genesis, 0)
	b := buildChild(c, genesis, 9)
	require.NoError(t, bs.PutBlock(a))
	require.NoError(t, bs.PutBlock(b))

	children, err := bs.GetChildren(genesis.Hash())
	require.NoError(t, err)
	assert.ElementsMatch(t, []common.Hash{a.Hash(), b.Hash()}, children)

	none, err := bs.GetChildren(a.Hash())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadIntoRebuildsChain(t *testing.T) {
	bs := newTestStore(t)
	spec := types.TestSpec(100)

	// First life: build a chain with a fork, persisting as we go.
	c1 := chain.NewChain(spec)
	c1.SetStore(bs)
	parent := c1.TipHeader()
	var blocks []*types.Block
	for i := 0; i < 4; i++ {
		b := buildChild(c1, parent, 0)
		require.NoError(t, c1.SubmitBlock(b))
		blocks = append(blocks, b)
		parent = &b.Header
	}
	fork := buildChild(c1, &blocks[1].Header, 9)
	require.NoError(t, c1.SubmitBlock(fork))
	require.Equal(t, blocks[3].Hash(), c1.TipHeader().Hash())

	// Second life: replay from storage into a fresh chain.
	c2 := chain.NewChain(spec)
	require.NoError(t, bs.LoadInto(c2.SubmitBlock, spec.GenesisHeader().Hash()))

	assert.Equal(t, c1.TipHeader().Hash(), c2.TipHeader().Hash())
	assert.Equal(t, c1.Height(), c2.Height())
	assert.NotNil(t, c2.GetBlock(fork.Hash()), "fork blocks survive the restart")
	for i, b := range blocks {
		hash, ok := c2.BlockHash(uint64(i + 1))
		require.True(t, ok)
		assert.Equal(t, b.Hash(), hash)
	}
}
