package chain

import (
	"sort"
	"sync"

	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/log"
	"github.com/kindrednet/kindred/types"
)

// BlockStore is the persistence surface the chain writes through.
// Nil disables persistence (tests, ephemeral nodes).
type BlockStore interface {
	PutBlock(b *types.Block) error
	SetCanonical(height uint64, hash common.Hash) error
	DeleteCanonical(height uint64) error
	SetTip(hash common.Hash) error
}

// Relay is the best-effort broadcast primitive. Delivery failures
// never affect validation outcomes.
type Relay interface {
	SendToAllPeers(topic string, payload []byte)
}

// TipEvent is published whenever the canonical tip changes.
type TipEvent struct {
	Tip   types.Header
	Reorg bool
}

// Chain owns the block tree, selects the canonical tip by cumulative
// work, performs reorgs, and maintains the uncle-eligible fork set.
// It is the sole writer of chain state: block integration and reorg
// run inside one critical section so readers never observe a tip
// without the matching index and ledger updates.
type Chain struct {
	mu   sync.RWMutex
	spec *types.ChainSpec

	genesis   *blockNode
	index     map[common.Hash]*blockNode
	canonical map[uint64]*blockNode
	tip       *blockNode

	// txIndex maps transaction hash to the canonical block holding it.
	txIndex map[common.Hash]common.Hash

	// orphans buffers unknown-parent blocks until the parent arrives.
	orphans     map[common.Hash][]*types.Block
	orphanOrder []common.Hash

	epochs *EpochTracker
	store  BlockStore
	relay  Relay

	subscribers []chan TipEvent
}

func NewChain(spec *types.ChainSpec) *Chain {
	c := &Chain{
		spec:      spec,
		index:     make(map[common.Hash]*blockNode),
		canonical: make(map[uint64]*blockNode),
		txIndex:   make(map[common.Hash]common.Hash),
		orphans:   make(map[common.Hash][]*types.Block),
		epochs:    NewEpochTracker(spec),
	}
	genesis := newBlockNode(spec.GenesisBlock(), nil)
	genesis.onCanon = true
	c.genesis = genesis
	c.index[genesis.hash] = genesis
	c.canonical[0] = genesis
	c.tip = genesis
	return c
}

// SetStore wires persistence in. Safe to call while blocks are being
// submitted; blocks accepted before the store is set are not backfilled.
func (c *Chain) SetStore(store BlockStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

func (c *Chain) SetRelay(relay Relay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relay = relay
}

func (c *Chain) Spec() *types.ChainSpec {
	return c.spec
}

func (c *Chain) Epochs() *EpochTracker {
	return c.epochs
}

// SubscribeTip returns a channel receiving tip-change events. Slow
// receivers miss events rather than blocking the writer.
func (c *Chain) SubscribeTip() <-chan TipEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan TipEvent, 16)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// SubmitBlock validates and integrates a block into the tree,
// reorging if the block's branch now carries the most work.
func (c *Chain) SubmitBlock(block *types.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(block)
}

func (c *Chain) submitLocked(block *types.Block) error {
	hash := block.Hash()

	if !block.Header.IsWellFormed() {
		return newChainError(InvalidBlock, hash, "malformed header")
	}
	if !block.CheckRoots() {
		return newChainError(InvalidBlock, hash, "header does not commit to body")
	}
	if _, ok := c.index[hash]; ok {
		return newChainError(DuplicateBlock, hash, "")
	}

	parent, ok := c.index[block.Header.ParentHash]
	if !ok {
		c.bufferOrphanLocked(block)
		return newChainError(UnknownParent, hash, "parent %s not known", block.Header.ParentHash.String_short())
	}

	if block.Header.Number != parent.height+1 {
		return newChainError(InvalidBlock, hash, "number %d does not follow parent height %d", block.Header.Number, parent.height)
	}
	if block.Header.Epoch != c.epochs.PositionFor(block.Header.Number) {
		return newChainError(InvalidBlock, hash, "malformed epoch %s at height %d", block.Header.Epoch, block.Header.Number)
	}

	if err := c.validateUnclesLocked(parent, block.Header.Number, block.Header.Epoch, block.Uncles); err != nil {
		return err
	}

	node := newBlockNode(block, parent)
	c.index[hash] = node

	if c.store != nil {
		if err := c.store.PutBlock(block); err != nil {
			log.Error(log.Chain, "persist block failed", "hash", hash.String_short(), "err", err)
		}
	}

	log.Debug(log.Chain, "block integrated", "hash", hash.String_short(), "height", node.height, "uncles", len(block.Uncles))

	// Strictly-greater rule: equal cumulative work keeps the incumbent
	// tip, so the first-seen branch wins ties.
	if node.work.Cmp(c.tip.work) > 0 {
		reorged := c.extendOrReorgLocked(node)
		c.notifyLocked(TipEvent{Tip: *c.tip.header().Copy(), Reorg: reorged})
	}

	c.pruneAgedForksLocked()
	c.relayBlockLocked(block)
	c.processOrphansLocked(hash)
	return nil
}

// extendOrReorgLocked moves the canonical tip to newTip. Returns true
// when blocks were disconnected (a true reorg rather than extension).
func (c *Chain) extendOrReorgLocked(newTip *blockNode) bool {
	oldTip := c.tip
	fork := c.commonAncestorLocked(oldTip, newTip)

	disconnected := 0
	for n := oldTip; n != fork; n = n.parent {
		c.disconnectLocked(n)
		disconnected++
	}

	// Collect the new path fork→newTip and connect it root-first.
	path := make([]*blockNode, 0, newTip.height-fork.height)
	for n := newTip; n != fork; n = n.parent {
		path = append(path, n)
	}
	for i := len(path) - 1; i >= 0; i-- {
		c.connectLocked(path[i])
	}

	c.tip = newTip
	if c.store != nil {
		if err := c.store.SetTip(newTip.hash); err != nil {
			log.Error(log.Chain, "persist tip failed", "err", err)
		}
	}

	if disconnected > 0 {
		log.Info(log.Chain, "reorg", "fork", fork.hash.String_short(), "disconnected", disconnected, "connected", len(path), "tip", newTip.hash.String_short(), "height", newTip.height)
	} else {
		log.Debug(log.Chain, "tip extended", "tip", newTip.hash.String_short(), "height", newTip.height)
	}
	return disconnected > 0
}

func (c *Chain) commonAncestorLocked(a, b *blockNode) *blockNode {
	if a.height > b.height {
		a = a.ancestorAt(b.height)
	} else if b.height > a.height {
		b = b.ancestorAt(a.height)
	}
	for a != b {
		a = a.parent
		b = b.parent
	}
	return a
}

func (c *Chain) connectLocked(n *blockNode) {
	n.onCanon = true
	c.canonical[n.height] = n
	for i := range n.block.Transactions {
		c.txIndex[n.block.Transactions[i].Hash()] = n.hash
	}
	if c.store != nil {
		if err := c.store.SetCanonical(n.height, n.hash); err != nil {
			log.Error(log.Store, "persist canonical index failed", "height", n.height, "err", err)
		}
	}
}

func (c *Chain) disconnectLocked(n *blockNode) {
	n.onCanon = false
	if c.canonical[n.height] == n {
		delete(c.canonical, n.height)
		if c.store != nil {
			if err := c.store.DeleteCanonical(n.height); err != nil {
				log.Error(log.Store, "remove canonical index failed", "height", n.height, "err", err)
			}
		}
	}
	for i := range n.block.Transactions {
		txHash := n.block.Transactions[i].Hash()
		if c.txIndex[txHash] == n.hash {
			delete(c.txIndex, txHash)
		}
	}
}

func (c *Chain) bufferOrphanLocked(block *types.Block) {
	hash := block.Hash()
	parent := block.Header.ParentHash
	for _, waiting := range c.orphans[parent] {
		if waiting.Hash() == hash {
			return
		}
	}
	c.orphans[parent] = append(c.orphans[parent], block)
	c.orphanOrder = append(c.orphanOrder, parent)
	log.Debug(log.Chain, "orphan buffered", "hash", hash.String_short(), "parent", parent.String_short())

	for len(c.orphanOrder) > types.MaxOrphanBlocks {
		oldest := c.orphanOrder[0]
		c.orphanOrder = c.orphanOrder[1:]
		if blocks, ok := c.orphans[oldest]; ok && len(blocks) > 0 {
			c.orphans[oldest] = blocks[1:]
			if len(c.orphans[oldest]) == 0 {
				delete(c.orphans, oldest)
			}
		}
	}
}

func (c *Chain) processOrphansLocked(parentHash common.Hash) {
	waiting, ok := c.orphans[parentHash]
	if !ok {
		return
	}
	delete(c.orphans, parentHash)
	for _, block := range waiting {
		if err := c.submitLocked(block); err != nil {
			log.Debug(log.Chain, "orphan retry failed", "hash", block.Hash().String_short(), "err", err)
		}
	}
}

// pruneAgedForksLocked drops fork subtrees that fell outside the
// lookback window. Aged-out blocks are terminal: never revalidated.
func (c *Chain) pruneAgedForksLocked() {
	limit := c.spec.UncleDescendantLimit
	if c.tip.height <= limit {
		return
	}
	horizon := c.tip.height - limit
	for changed := true; changed; {
		changed = false
		for hash, n := range c.index {
			if n.onCanon || len(n.children) > 0 || n.height >= horizon {
				continue
			}
			c.removeNodeLocked(hash, n)
			changed = true
		}
	}
}

func (c *Chain) removeNodeLocked(hash common.Hash, n *blockNode) {
	if p := n.parent; p != nil {
		for i, child := range p.children {
			if child == n {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	n.parent = nil
	n.skip = nil
	delete(c.index, hash)
	log.Trace(log.Chain, "fork block aged out", "hash", hash.String_short(), "height", n.height)
}

func (c *Chain) relayBlockLocked(block *types.Block) {
	if c.relay == nil {
		return
	}
	payload, err := block.Bytes()
	if err != nil {
		return
	}
	c.relay.SendToAllPeers("block", payload)
}

func (c *Chain) notifyLocked(ev TipEvent) {
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// --- read-side queries ---

// TipHeader returns a copy of the current canonical tip header.
func (c *Chain) TipHeader() *types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip.header().Copy()
}

// Height returns the canonical tip height.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip.height
}

// GetBlock looks a block up by header hash, canonical or not.
func (c *Chain) GetBlock(hash common.Hash) *types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.index[hash]
	if !ok {
		return nil
	}
	return n.block.Copy()
}

// GetHeader looks a header up by hash, canonical or not.
func (c *Chain) GetHeader(hash common.Hash) *types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.index[hash]
	if !ok {
		return nil
	}
	return n.header().Copy()
}

// BlockHash resolves a height on the canonical path only.
func (c *Chain) BlockHash(height uint64) (common.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.canonical[height]
	if !ok {
		return common.Hash{}, false
	}
	return n.hash, true
}

// GetTransaction returns a canonical-chain transaction by content hash.
func (c *Chain) GetTransaction(hash common.Hash) *types.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	blockHash, ok := c.txIndex[hash]
	if !ok {
		return nil
	}
	n, ok := c.index[blockHash]
	if !ok {
		return nil
	}
	for i := range n.block.Transactions {
		if n.block.Transactions[i].Hash() == hash {
			tx := n.block.Transactions[i].WithHash()
			return &tx
		}
	}
	return nil
}

// EligibleUncles returns fork-block headers that would pass uncle
// validation against a context block at contextHeight built on the
// current tip. Computed lazily on every call: eligibility depends on
// the as-yet-unbuilt context, so nothing is cached.
func (c *Chain) EligibleUncles(contextHeight uint64) []types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()

	epochPos := c.epochs.PositionFor(contextHeight)
	if epochPos.IsFirstBlockInEpoch() {
		return nil
	}

	w := c.windowFor(c.tip, contextHeight)
	candidates := make([]*blockNode, 0)
	for _, n := range c.index {
		if n.onCanon || n.height >= contextHeight {
			continue
		}
		candidates = append(candidates, n)
	}
	// Deterministic order: lower forks first, hash as tie-break.
	sortNodes(candidates)

	out := make([]types.Header, 0, len(candidates))
	for _, n := range candidates {
		if err := w.validateCandidate(n.header()); err != nil {
			continue
		}
		out = append(out, *n.header().Copy())
		w.markUsed(n.header())
	}
	return out
}

func sortNodes(nodes []*blockNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].height != nodes[j].height {
			return nodes[i].height < nodes[j].height
		}
		return nodes[i].hash.String() < nodes[j].hash.String()
	})
}
