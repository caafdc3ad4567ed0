package storage

import (
	"fmt"

	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/log"
	"github.com/kindrednet/kindred/types"
)

const tipKey = "tip"

// BlockStore persists blocks and the canonical index on top of a
// PersistStore. Indices:
// - blk_<headerHash>         -> encoded block
// - num_<height>             -> headerHash (canonical path only)
// - child_<parent>_<hash>    -> headerHash
// - tip                      -> headerHash
type BlockStore struct {
	ps *PersistStore
}

func NewBlockStore(ps *PersistStore) *BlockStore {
	return &BlockStore{ps: ps}
}

func blockKey(hash common.Hash) []byte {
	return append([]byte("blk_"), hash.Bytes()...)
}

func heightKey(height uint64) []byte {
	return append([]byte("num_"), common.Uint64ToBytes(height)...)
}

func childKey(parent, hash common.Hash) []byte {
	key := append([]byte("child_"), parent.Bytes()...)
	return append(key, hash.Bytes()...)
}

// PutBlock stores a block and its child index entry.
func (bs *BlockStore) PutBlock(b *types.Block) error {
	hash := b.Hash()
	encoded, err := b.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode block: %w", err)
	}
	if err := bs.ps.Put(blockKey(hash), encoded); err != nil {
		return fmt.Errorf("failed to store block: %w", err)
	}
	if err := bs.ps.Put(childKey(b.Header.ParentHash, hash), hash.Bytes()); err != nil {
		return fmt.Errorf("failed to store child index: %w", err)
	}
	log.Trace(log.Store, "block stored", "hash", hash.String_short(), "height", b.Number())
	return nil
}

// GetBlock retrieves a block by header hash. Returns nil when absent.
func (bs *BlockStore) GetBlock(hash common.Hash) (*types.Block, error) {
	data, ok, err := bs.ps.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return types.DecodeBlock(data)
}

// SetCanonical marks hash as the canonical block at height.
func (bs *BlockStore) SetCanonical(height uint64, hash common.Hash) error {
	return bs.ps.Put(heightKey(height), hash.Bytes())
}

// DeleteCanonical clears the canonical marker at height (reorg).
func (bs *BlockStore) DeleteCanonical(height uint64) error {
	return bs.ps.Delete(heightKey(height))
}

// GetCanonical resolves the canonical hash at height.
func (bs *BlockStore) GetCanonical(height uint64) (common.Hash, bool, error) {
	data, ok, err := bs.ps.Get(heightKey(height))
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(data), true, nil
}

// SetTip records the canonical tip hash.
func (bs *BlockStore) SetTip(hash common.Hash) error {
	return bs.ps.Put([]byte(tipKey), hash.Bytes())
}

// GetTip returns the recorded canonical tip hash.
func (bs *BlockStore) GetTip() (common.Hash, bool, error) {
	data, ok, err := bs.ps.Get([]byte(tipKey))
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(data), true, nil
}

// GetChildren returns the stored children of a parent header hash.
func (bs *BlockStore) GetChildren(parent common.Hash) ([]common.Hash, error) {
	prefix := append([]byte("child_"), parent.Bytes()...)
	keyvals, err := bs.ps.GetWithPrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to read child index: %w", err)
	}
	out := make([]common.Hash, 0, len(keyvals))
	for _, kv := range keyvals {
		out = append(out, common.BytesToHash(kv[1]))
	}
	return out, nil
}

// LoadInto replays every stored block into the chain, children after
// parents, starting from the genesis the chain was initialized with.
// Used to rebuild in-memory state on restart.
func (bs *BlockStore) LoadInto(submit func(*types.Block) error, genesis common.Hash) error {
	queue := []common.Hash{genesis}
	loaded := 0
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := bs.GetChildren(parent)
		if err != nil {
			return err
		}
		for _, childHash := range children {
			block, err := bs.GetBlock(childHash)
			if err != nil {
				return err
			}
			if block == nil {
				continue
			}
			if err := submit(block); err != nil {
				log.Warn(log.Store, "stored block rejected on replay", "hash", childHash.String_short(), "err", err)
				continue
			}
			loaded++
			queue = append(queue, childHash)
		}
	}
	log.Info(log.Store, "chain state rebuilt", "blocks", loaded)
	return nil
}
