package miner

import (
	"time"

	"github.com/kindrednet/kindred/chain"
	"github.com/kindrednet/kindred/log"
	"github.com/kindrednet/kindred/pool"
	"github.com/kindrednet/kindred/types"
)

const defaultMaxTxsPerBlock = 1000

// Assembler builds block templates on top of the current canonical
// tip: pending transactions from the pool plus whatever uncles are
// eligible right now, capped and epoch-gated.
type Assembler struct {
	chain *chain.Chain
	pool  *pool.TransactionPool

	maxTxs int
}

func NewAssembler(c *chain.Chain, tp *pool.TransactionPool) *Assembler {
	return &Assembler{
		chain:  c,
		pool:   tp,
		maxTxs: defaultMaxTxsPerBlock,
	}
}

// NewBlockTemplate assembles the next block. The header is complete
// except for proof-of-work sealing, which callers do elsewhere.
func (a *Assembler) NewBlockTemplate() *types.Block {
	tip := a.chain.TipHeader()
	number := tip.Number + 1
	epochPos := a.chain.Epochs().PositionFor(number)

	block := types.NewBlock()
	block.Header = types.Header{
		Number:     number,
		ParentHash: tip.Hash(),
		Timestamp:  templateTimestamp(tip),
		Epoch:      epochPos,
		Difficulty: tip.Difficulty,
	}

	// The first block of an epoch carries no uncles; otherwise take
	// eligible fork blocks up to the cap.
	if !epochPos.IsFirstBlockInEpoch() {
		eligible := a.chain.EligibleUncles(number)
		max := a.chain.Spec().MaxUnclesPerBlock
		if len(eligible) > max {
			eligible = eligible[:max]
		}
		block.Uncles = eligible
	}

	if a.pool != nil {
		block.Transactions = a.pool.Pending(a.maxTxs)
	}

	block.SealRoots()
	log.Debug(log.Miner, "template assembled", "height", number, "txs", len(block.Transactions), "uncles", len(block.Uncles))
	return block
}

// templateTimestamp keeps timestamps strictly increasing even when the
// wall clock lags the parent.
func templateTimestamp(tip *types.Header) uint64 {
	now := uint64(time.Now().UnixMilli())
	if now <= tip.Timestamp {
		return tip.Timestamp + 1
	}
	return now
}
