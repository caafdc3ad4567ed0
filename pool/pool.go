package pool

import (
	"fmt"
	"sync"

	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/log"
	"github.com/kindrednet/kindred/types"
)

type PoolErrorKind int

const (
	// PoolFull: the pool is at capacity.
	PoolFull PoolErrorKind = iota

	// DuplicateTransaction: the transaction is already queued.
	DuplicateTransaction

	// MalformedTransaction: the transaction fails structural checks.
	MalformedTransaction
)

func (k PoolErrorKind) String() string {
	switch k {
	case PoolFull:
		return "PoolFull"
	case DuplicateTransaction:
		return "DuplicateTransaction"
	case MalformedTransaction:
		return "MalformedTransaction"
	default:
		return "unknown"
	}
}

type PoolError struct {
	Kind PoolErrorKind
	Tx   common.Hash
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("tx %s: %s", e.Tx.String_short(), e.Kind)
}

const DefaultCapacity = 8192

// TransactionPool queues transactions until a block template consumes
// them. Admission is intentionally simple: structural sanity, no
// duplicates, bounded size.
type TransactionPool struct {
	mu       sync.Mutex
	capacity int
	queued   map[common.Hash]*types.Transaction
	order    []common.Hash
}

func NewTransactionPool(capacity int) *TransactionPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TransactionPool{
		capacity: capacity,
		queued:   make(map[common.Hash]*types.Transaction),
	}
}

// AddToMemoryPool queues a transaction for inclusion in a future block.
func (tp *TransactionPool) AddToMemoryPool(tx types.Transaction) error {
	hash := tx.Hash()
	if len(tx.Inputs) == 0 && len(tx.Outputs) == 0 {
		return &PoolError{Kind: MalformedTransaction, Tx: hash}
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if _, ok := tp.queued[hash]; ok {
		return &PoolError{Kind: DuplicateTransaction, Tx: hash}
	}
	if len(tp.queued) >= tp.capacity {
		return &PoolError{Kind: PoolFull, Tx: hash}
	}
	tp.queued[hash] = &tx
	tp.order = append(tp.order, hash)
	log.Debug(log.Pool, "tx queued", "hash", hash.String_short(), "queued", len(tp.queued))
	return nil
}

// Get returns a queued transaction by content hash.
func (tp *TransactionPool) Get(hash common.Hash) (*types.Transaction, bool) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tx, ok := tp.queued[hash]
	if !ok {
		return nil, false
	}
	c := *tx
	return &c, true
}

// Pending returns up to max queued transactions in arrival order.
func (tp *TransactionPool) Pending(max int) []types.Transaction {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	out := make([]types.Transaction, 0, max)
	for _, hash := range tp.order {
		if len(out) >= max {
			break
		}
		if tx, ok := tp.queued[hash]; ok {
			out = append(out, *tx)
		}
	}
	return out
}

// RemoveCommitted drops transactions that made it into a block.
func (tp *TransactionPool) RemoveCommitted(block *types.Block) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	removed := 0
	for i := range block.Transactions {
		hash := block.Transactions[i].Hash()
		if _, ok := tp.queued[hash]; ok {
			delete(tp.queued, hash)
			removed++
		}
	}
	if removed > 0 {
		tp.compactOrderLocked()
		log.Debug(log.Pool, "committed txs removed", "removed", removed, "queued", len(tp.queued))
	}
}

func (tp *TransactionPool) compactOrderLocked() {
	order := tp.order[:0]
	for _, hash := range tp.order {
		if _, ok := tp.queued[hash]; ok {
			order = append(order, hash)
		}
	}
	tp.order = order
}

// Size returns the number of queued transactions.
func (tp *TransactionPool) Size() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.queued)
}
