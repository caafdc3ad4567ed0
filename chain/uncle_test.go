package chain

import (
	"testing"

	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRejection(t *testing.T, err error, want UncleRejectionKind) {
	t.Helper()
	require.Error(t, err)
	kind, ok := RejectionKind(err)
	require.True(t, ok, "expected an uncle rejection, got %v", err)
	assert.Equal(t, want, kind)
}

func TestUncleSiblingAccepted(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	// Sibling of blocks[1]: parent on the context lineage.
	u := childBlock(c, &blocks[0].Header, 9)
	require.NoError(t, c.SubmitBlock(u))

	b4 := childBlock(c, &blocks[2].Header, 0, u.Header)
	require.NoError(t, c.SubmitBlock(b4))

	got := c.GetBlock(b4.Hash())
	require.NotNil(t, got)
	require.Len(t, got.Uncles, 1)
	assert.Equal(t, u.Hash(), got.Uncles[0].Hash())
}

func TestUncleNeverSubmittedStandalone(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 2)

	// An uncle reference is a bare header; the block carrying it need
	// not have seen the uncle arrive as a block of its own.
	u := childBlock(c, &blocks[0].Header, 9)
	b3 := childBlock(c, &blocks[1].Header, 0, u.Header)
	require.NoError(t, c.SubmitBlock(b3))
}

func TestUncleAlreadyAncestor(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	b4 := childBlock(c, &blocks[2].Header, 0, blocks[1].Header)
	requireRejection(t, c.SubmitBlock(b4), AlreadyAncestor)
}

func TestUncleAlreadyUsed(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	u := childBlock(c, &blocks[0].Header, 9)
	require.NoError(t, c.SubmitBlock(u))
	b4 := childBlock(c, &blocks[2].Header, 0, u.Header)
	require.NoError(t, c.SubmitBlock(b4))

	// A descendant crediting the same uncle again is refused.
	b5 := childBlock(c, &b4.Header, 0, u.Header)
	requireRejection(t, c.SubmitBlock(b5), AlreadyUsed)
}

func TestUncleUnknownLineage(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 2)

	stranger := types.Header{
		Number:     2,
		ParentHash: common.Blake2Hash([]byte("nowhere")),
		Timestamp:  42,
		Epoch:      c.epochs.PositionFor(2),
		Difficulty: 1,
	}
	b3 := childBlock(c, &blocks[1].Header, 0, stranger)
	requireRejection(t, c.SubmitBlock(b3), LineageMismatch)
}

func TestUncleNumberDiscontinuity(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	// Parent is on the lineage at height 1, but the candidate claims
	// height 3 rather than 2.
	u := childBlock(c, &blocks[0].Header, 9)
	u.Header.Number = 3
	u.Header.Epoch = c.epochs.PositionFor(3)
	u.SealRoots()

	b4 := childBlock(c, &blocks[2].Header, 0, u.Header)
	requireRejection(t, c.SubmitBlock(b4), LineageMismatch)
}

func TestUncleNumberBounds(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 2)

	// A candidate at or above the context height cannot be its uncle.
	high := childBlock(c, &blocks[1].Header, 9)
	b3 := childBlock(c, &blocks[1].Header, 0, high.Header)
	requireRejection(t, c.SubmitBlock(b3), LineageMismatch)
}

func TestUncleDescendantLimit(t *testing.T) {
	c := newTestChain(100)
	limit := c.Spec().UncleDescendantLimit
	blocks := extendChain(t, c, c.TipHeader(), int(limit)+4)

	// Sibling just below the window of the next block: parent known to
	// the tree but too far back to reconnect.
	deep := childBlock(c, &blocks[1].Header, 9)
	tip := &blocks[len(blocks)-1].Header
	next := childBlock(c, tip, 0, deep.Header)
	requireRejection(t, c.SubmitBlock(next), DescendantLimit)
}

func TestUncleJustInsideWindow(t *testing.T) {
	c := newTestChain(100)
	limit := c.Spec().UncleDescendantLimit
	blocks := extendChain(t, c, c.TipHeader(), int(limit)+1)
	tip := &blocks[len(blocks)-1].Header

	// The next block's window reaches back exactly limit ancestors,
	// heights tip down to tip-limit+1. An uncle whose parent is the
	// deepest of those is still accepted; one link further down is not.
	inside := childBlock(c, &blocks[1].Header, 9)
	next := childBlock(c, tip, 0, inside.Header)
	require.NoError(t, c.SubmitBlock(next))

	c2 := newTestChain(100)
	blocks2 := extendChain(t, c2, c2.TipHeader(), int(limit)+1)
	tip2 := &blocks2[len(blocks2)-1].Header
	outside := childBlock(c2, &blocks2[0].Header, 9)
	bad := childBlock(c2, tip2, 0, outside.Header)
	requireRejection(t, c2.SubmitBlock(bad), DescendantLimit)
}

func TestUncleChainsOffEmbeddedUncle(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	// u2 is embedded in b4; u3 extends u2 and rides in b5. Its parent
	// is not on the lineage but is acknowledged as an uncle there.
	u2 := childBlock(c, &blocks[0].Header, 9)
	b4 := childBlock(c, &blocks[2].Header, 0, u2.Header)
	require.NoError(t, c.SubmitBlock(b4))

	u3 := childBlock(c, &u2.Header, 9)
	b5 := childBlock(c, &b4.Header, 0, u3.Header)
	require.NoError(t, c.SubmitBlock(b5))
}

func TestUncleChainsOffUncleInSameBlock(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	// Two-link fork packed into one block, parent link first.
	u2 := childBlock(c, &blocks[0].Header, 9)
	u3 := childBlock(c, &u2.Header, 9)
	b4 := childBlock(c, &blocks[2].Header, 0, u2.Header, u3.Header)
	require.NoError(t, c.SubmitBlock(b4))

	// Reversed order: u3 arrives before anything acknowledges u2.
	c2 := newTestChain(100)
	blocks2 := extendChain(t, c2, c2.TipHeader(), 3)
	v2 := childBlock(c2, &blocks2[0].Header, 9)
	v3 := childBlock(c2, &v2.Header, 9)
	bad := childBlock(c2, &blocks2[2].Header, 0, v3.Header, v2.Header)
	requireRejection(t, c2.SubmitBlock(bad), LineageMismatch)
}

func TestEpochStartWithUncles(t *testing.T) {
	c := newTestChain(5)
	blocks := extendChain(t, c, c.TipHeader(), 4)

	u := childBlock(c, &blocks[1].Header, 9)
	require.NoError(t, c.SubmitBlock(u))

	// Height 5 is the first block of epoch 1; it must carry no uncles.
	b5 := childBlock(c, &blocks[3].Header, 0, u.Header)
	requireRejection(t, c.SubmitBlock(b5), EpochStartWithUncles)

	empty := childBlock(c, &blocks[3].Header, 0)
	require.NoError(t, c.SubmitBlock(empty))
}

func TestTooManyUncles(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	u1 := childBlock(c, &blocks[0].Header, 7)
	u2 := childBlock(c, &blocks[0].Header, 8)
	u3 := childBlock(c, &blocks[1].Header, 9)
	require.Equal(t, 2, c.Spec().MaxUnclesPerBlock)

	b4 := childBlock(c, &blocks[2].Header, 0, u1.Header, u2.Header, u3.Header)
	requireRejection(t, c.SubmitBlock(b4), TooManyUncles)
}

func TestDuplicateUncleInBlock(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	u := childBlock(c, &blocks[0].Header, 9)
	b4 := childBlock(c, &blocks[2].Header, 0, u.Header, u.Header)
	requireRejection(t, c.SubmitBlock(b4), DuplicateUncleInBlock)
}

func TestRejectedUncleLeavesChainUntouched(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)
	tipBefore := c.TipHeader().Hash()

	b4 := childBlock(c, &blocks[2].Header, 0, blocks[1].Header)
	require.Error(t, c.SubmitBlock(b4))
	assert.Equal(t, tipBefore, c.TipHeader().Hash())
	assert.Nil(t, c.GetBlock(b4.Hash()))
}

func TestDeepForkUncleAcceptedAfterDrain(t *testing.T) {
	c := newTestChain(100)
	genesis := c.TipHeader()

	// Main chain to height 4, plus a bare-header sibling off height 3.
	// The sibling never arrives as a block of its own.
	aBlocks := extendChain(t, c, genesis, 4)
	uncle := childBlock(c, &aBlocks[2].Header, 9)

	// A heavier five-block branch displaces the whole main chain.
	var fTip *types.Header
	parent := genesis
	for i := 0; i < 5; i++ {
		f := childBlock(c, parent, 5)
		require.NoError(t, c.SubmitBlock(f))
		parent = &f.Header
		fTip = parent
	}
	require.Equal(t, fTip.Hash(), c.TipHeader().Hash())

	// The uncle's parent sits on the displaced branch, beyond the
	// lookback window of the new tip: rejected, tip untouched.
	first := childBlock(c, fTip, 0, uncle.Header)
	requireRejection(t, c.SubmitBlock(first), DescendantLimit)
	require.Equal(t, fTip.Hash(), c.TipHeader().Hash())

	// Drain the displaced blocks as uncles, oldest first, capped per
	// block the way templates cap them.
	max := c.Spec().MaxUnclesPerBlock
	drained := 0
	tip := c.TipHeader()
	for {
		eligible := c.EligibleUncles(tip.Number + 1)
		if len(eligible) == 0 {
			break
		}
		if len(eligible) > max {
			eligible = eligible[:max]
		}
		b := childBlock(c, tip, 0, eligible...)
		require.NoError(t, c.SubmitBlock(b))
		drained += len(eligible)
		tip = c.TipHeader()
	}
	assert.Equal(t, len(aBlocks), drained)

	// Draining embedded the uncle's parent into the new lineage; the
	// once-rejected header now attaches cleanly.
	retry := childBlock(c, tip, 0, uncle.Header)
	require.NoError(t, c.SubmitBlock(retry))
	assert.Equal(t, retry.Hash(), c.TipHeader().Hash())
}

func TestValidateUncleStandalone(t *testing.T) {
	c := newTestChain(100)
	blocks := extendChain(t, c, c.TipHeader(), 3)

	u := childBlock(c, &blocks[0].Header, 9)
	context := childBlock(c, &blocks[2].Header, 0)

	require.NoError(t, c.ValidateUncle(&u.Header, &context.Header))
	requireRejection(t, c.ValidateUncle(&blocks[1].Header, &context.Header), AlreadyAncestor)

	// Context whose parent never arrived cannot be judged.
	floating := childBlock(c, &u.Header, 3)
	err := c.ValidateUncle(&u.Header, &floating.Header)
	require.Error(t, err)
	assert.True(t, IsUnknownParent(err))
}
