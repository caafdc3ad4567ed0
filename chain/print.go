package chain

import (
	"fmt"

	"github.com/xlab/treeprint"
)

func (n *blockNode) label() string {
	marker := " "
	if n.onCanon {
		marker = "*"
	}
	return fmt.Sprintf("%s #%d %s work=%s uncles=%d", marker, n.height, n.hash.String_short(), n.work.Dec(), len(n.block.Uncles))
}

func (n *blockNode) addChildren(tree treeprint.Tree) {
	for _, child := range n.children {
		if len(child.children) == 0 {
			tree.AddNode(child.label())
			continue
		}
		child.addChildren(tree.AddBranch(child.label()))
	}
}

// Dump renders the block tree for debugging; canonical blocks are
// marked with an asterisk.
func (c *Chain) Dump() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tree := treeprint.NewWithRoot(c.genesis.label())
	c.genesis.addChildren(tree)
	return tree.String()
}
