package chain

import (
	"fmt"

	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/types"
)

type UncleRejectionKind int

const (
	// AlreadyAncestor: the candidate is part of the context's own
	// lineage and cannot double as an uncle.
	AlreadyAncestor UncleRejectionKind = iota

	// LineageMismatch: the candidate's parent is neither an ancestor
	// of the context nor a previously included uncle.
	LineageMismatch

	// DescendantLimit: the candidate's lineage reconnects to the
	// context ancestry further back than the lookback window allows.
	DescendantLimit

	// AlreadyUsed: the candidate was already credited as an uncle
	// somewhere on the context's ancestry.
	AlreadyUsed

	// EpochStartWithUncles: the first block of an epoch must carry
	// zero uncles.
	EpochStartWithUncles

	// TooManyUncles: the block exceeds the per-block uncle cap.
	TooManyUncles

	// DuplicateUncleInBlock: the same uncle hash appears twice in one
	// block.
	DuplicateUncleInBlock
)

func (k UncleRejectionKind) String() string {
	switch k {
	case AlreadyAncestor:
		return "AlreadyAncestor"
	case LineageMismatch:
		return "LineageMismatch"
	case DescendantLimit:
		return "DescendantLimit"
	case AlreadyUsed:
		return "AlreadyUsed"
	case EpochStartWithUncles:
		return "EpochStartWithUncles"
	case TooManyUncles:
		return "TooManyUncles"
	case DuplicateUncleInBlock:
		return "DuplicateUncleInBlock"
	default:
		return "unknown"
	}
}

// UncleRejection reports why a candidate uncle was refused. Kind is
// the matchable value; the message exists for humans.
type UncleRejection struct {
	Kind  UncleRejectionKind
	Uncle common.Hash
}

func (e *UncleRejection) Error() string {
	return fmt.Sprintf("uncle %s rejected: %s", e.Uncle.String_short(), e.Kind)
}

func rejectUncle(kind UncleRejectionKind, uncle common.Hash) *UncleRejection {
	return &UncleRejection{Kind: kind, Uncle: uncle}
}

// RejectionKind extracts the rejection kind from an error, if it is an
// uncle rejection.
func RejectionKind(err error) (UncleRejectionKind, bool) {
	ur, ok := err.(*UncleRejection)
	if !ok {
		return 0, false
	}
	return ur.Kind, true
}

// ancestryWindow is the bounded lookback view the uncle rule is
// evaluated against: the context's nearest ancestors and every uncle
// hash those ancestors consumed. Validation cost is proportional to
// the window, never to chain height.
type ancestryWindow struct {
	// ancestors maps header hash to the ancestor node, covering
	// heights [contextNumber-limit, contextNumber-1].
	ancestors map[common.Hash]*blockNode

	// used maps consumed uncle hash to that uncle's own height.
	used map[common.Hash]uint64

	// known answers whether a header hash is anywhere in the block
	// tree, distinguishing a fork that reconnects too deep from a
	// lineage the tree has never seen.
	known func(common.Hash) bool

	contextNumber uint64
}

// windowFor walks up to limit ancestors starting at parent (the
// context block's parent) and collects lineage and uncle usage.
func (c *Chain) windowFor(parent *blockNode, contextNumber uint64) *ancestryWindow {
	limit := c.spec.UncleDescendantLimit
	w := &ancestryWindow{
		ancestors: make(map[common.Hash]*blockNode, limit),
		used:      make(map[common.Hash]uint64),
		known: func(h common.Hash) bool {
			_, ok := c.index[h]
			return ok
		},
		contextNumber: contextNumber,
	}
	cur := parent
	for steps := uint64(0); cur != nil && steps < limit; steps++ {
		w.ancestors[cur.hash] = cur
		for i := range cur.block.Uncles {
			u := &cur.block.Uncles[i]
			w.used[u.Hash()] = u.Number
		}
		cur = cur.parent
	}
	return w
}

// markUsed records an uncle accepted earlier in the same block, so
// later candidates may chain off it.
func (w *ancestryWindow) markUsed(u *types.Header) {
	w.used[u.Hash()] = u.Number
}

// validateCandidate applies the per-candidate decision sequence
// against the window. All checks must pass in order.
func (w *ancestryWindow) validateCandidate(candidate *types.Header) error {
	hash := candidate.Hash()

	if candidate.Number == 0 || candidate.Number >= w.contextNumber {
		return rejectUncle(LineageMismatch, hash)
	}

	// 1. An ancestor cannot also be an uncle.
	if _, ok := w.ancestors[hash]; ok {
		return rejectUncle(AlreadyAncestor, hash)
	}

	// 2. An uncle is credited exactly once.
	if _, ok := w.used[hash]; ok {
		return rejectUncle(AlreadyUsed, hash)
	}

	// 3. The uncle rule: the candidate's parent is on the lineage
	// inside the window, or was itself acknowledged as an uncle there.
	if pnode, ok := w.ancestors[candidate.ParentHash]; ok {
		if candidate.Number != pnode.height+1 {
			return rejectUncle(LineageMismatch, hash)
		}
		return nil
	}
	if pnum, ok := w.used[candidate.ParentHash]; ok {
		if candidate.Number != pnum+1 {
			return rejectUncle(LineageMismatch, hash)
		}
		return nil
	}

	// The parent is a block the tree knows about, but its lineage does
	// not reconnect to the context ancestry within the lookback
	// window: the fork has grown too long relative to the context.
	if w.known(candidate.ParentHash) {
		return rejectUncle(DescendantLimit, hash)
	}
	return rejectUncle(LineageMismatch, hash)
}

// validateUnclesLocked checks a full uncle list against a context
// block at the given number and epoch position whose parent node is
// already in the tree. Caller holds the chain lock.
func (c *Chain) validateUnclesLocked(parent *blockNode, number uint64, epochPos types.EpochNumberWithFraction, uncles []types.Header) error {
	if len(uncles) == 0 {
		return nil
	}
	if epochPos.IsFirstBlockInEpoch() {
		return rejectUncle(EpochStartWithUncles, uncles[0].Hash())
	}
	if len(uncles) > c.spec.MaxUnclesPerBlock {
		return rejectUncle(TooManyUncles, uncles[c.spec.MaxUnclesPerBlock].Hash())
	}

	seen := make(map[common.Hash]bool, len(uncles))
	w := c.windowFor(parent, number)
	for i := range uncles {
		u := &uncles[i]
		hash := u.Hash()
		if seen[hash] {
			return rejectUncle(DuplicateUncleInBlock, hash)
		}
		seen[hash] = true
		if err := w.validateCandidate(u); err != nil {
			return err
		}
		// Accepted uncles become lineage for the ones after them.
		w.markUsed(u)
	}
	return nil
}

// ValidateUncle is the pure decision function: accept or reject a
// single candidate against a context header whose parent is known to
// the chain. Whole-block checks (cap, duplicates, epoch start) live in
// block validation; this covers the per-candidate sequence.
func (c *Chain) ValidateUncle(candidate *types.Header, context *types.Header) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	parent, ok := c.index[context.ParentHash]
	if !ok {
		return newChainError(UnknownParent, context.Hash(), "context parent %s not in tree", context.ParentHash.String_short())
	}
	if context.IsEpochStart() {
		return rejectUncle(EpochStartWithUncles, candidate.Hash())
	}
	return c.windowFor(parent, context.Number).validateCandidate(candidate)
}
