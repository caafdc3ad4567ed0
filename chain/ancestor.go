package chain

import (
	"github.com/holiman/uint256"
	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/types"
)

// blockNode is one entry in the in-memory block tree arena. Nodes are
// keyed by header hash in the chain index; parent/child links stay
// inside the arena so fork subtrees can be dropped without dangling
// references.
type blockNode struct {
	parent   *blockNode
	children []*blockNode
	block    *types.Block
	hash     common.Hash
	height   uint64

	// skip points to an ancestor far enough back that ancestor lookups
	// run in O(log depth) instead of walking every parent link.
	skip *blockNode

	// work is the cumulative proof-of-work from genesis through this
	// block.
	work *uint256.Int

	// onCanon marks membership of the current canonical path.
	onCanon bool
}

func newBlockNode(block *types.Block, parent *blockNode) *blockNode {
	n := &blockNode{
		block:  block,
		hash:   block.Hash(),
		parent: parent,
		work:   block.Header.Work(),
	}
	if parent != nil {
		n.height = parent.height + 1
		n.work = new(uint256.Int).Add(parent.work, n.work)
		n.skip = parent.ancestorAt(skipHeight(n.height))
		parent.children = append(parent.children, n)
	}
	return n
}

func (n *blockNode) header() *types.Header {
	return &n.block.Header
}

// ancestorAt returns the ancestor-or-self of n at the given height,
// following skip pointers where they do not overshoot.
func (n *blockNode) ancestorAt(height uint64) *blockNode {
	if height > n.height {
		return nil
	}
	cur := n
	for cur != nil && cur.height != height {
		if cur.skip != nil && cur.skip.height >= height {
			cur = cur.skip
		} else {
			cur = cur.parent
		}
	}
	return cur
}

// isAncestorOf reports whether n is an ancestor-or-self of other.
func (n *blockNode) isAncestorOf(other *blockNode) bool {
	if other == nil || n.height > other.height {
		return false
	}
	return other.ancestorAt(n.height) == n
}

// skipHeight picks the height the skip pointer of a node at the given
// height targets. Clearing the lowest set bits yields exponentially
// spaced jump targets, the standard block-index skip structure.
func skipHeight(height uint64) uint64 {
	if height < 2 {
		return 0
	}
	if height&1 == 1 {
		return clearLowestOne(clearLowestOne(height-1)) + 1
	}
	return clearLowestOne(height)
}

func clearLowestOne(n uint64) uint64 {
	return n & (n - 1)
}

// IsAncestor answers whether header x is an ancestor-or-self of header
// y, both identified by hash. Unknown hashes answer false.
func (c *Chain) IsAncestor(x, y common.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nx, okx := c.index[x]
	ny, oky := c.index[y]
	if !okx || !oky {
		return false
	}
	return nx.isAncestorOf(ny)
}

// NthAncestor returns the header n links up the parent chain from y,
// or false when y is unknown or the walk passes genesis.
func (c *Chain) NthAncestor(y common.Hash, n uint64) (*types.Header, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ny, ok := c.index[y]
	if !ok || n > ny.height {
		return nil, false
	}
	anc := ny.ancestorAt(ny.height - n)
	if anc == nil {
		return nil, false
	}
	return anc.header().Copy(), true
}
