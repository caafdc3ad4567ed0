package chain

import (
	"fmt"

	"github.com/kindrednet/kindred/common"
)

type ChainErrorKind int

const (
	// UnknownParent means the referenced parent has not arrived yet.
	// Recoverable: the block is buffered and retried once the parent
	// shows up.
	UnknownParent ChainErrorKind = iota

	// InvalidBlock means a structural invariant was violated. Fatal,
	// the block is discarded and never relayed.
	InvalidBlock

	// DuplicateBlock means the block is already in the tree.
	DuplicateBlock
)

func (k ChainErrorKind) String() string {
	switch k {
	case UnknownParent:
		return "UnknownParent"
	case InvalidBlock:
		return "Invalid"
	case DuplicateBlock:
		return "Duplicate"
	default:
		return "unknown"
	}
}

// ChainError is the closed error type of the block submission path.
// Callers match on Kind, never on the message.
type ChainError struct {
	Kind ChainErrorKind
	Hash common.Hash
	Msg  string
}

func (e *ChainError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: block %s", e.Kind, e.Hash.String_short())
	}
	return fmt.Sprintf("%s: block %s: %s", e.Kind, e.Hash.String_short(), e.Msg)
}

func newChainError(kind ChainErrorKind, hash common.Hash, format string, args ...interface{}) *ChainError {
	return &ChainError{Kind: kind, Hash: hash, Msg: fmt.Sprintf(format, args...)}
}

// IsUnknownParent reports whether err is a ChainError of kind UnknownParent.
func IsUnknownParent(err error) bool {
	ce, ok := err.(*ChainError)
	return ok && ce.Kind == UnknownParent
}

// IsDuplicate reports whether err is a ChainError of kind DuplicateBlock.
func IsDuplicate(err error) bool {
	ce, ok := err.(*ChainError)
	return ok && ce.Kind == DuplicateBlock
}
