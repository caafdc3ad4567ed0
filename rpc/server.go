package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"net/rpc"
	"strconv"

	"github.com/kindrednet/kindred/chain"
	"github.com/kindrednet/kindred/common"
	"github.com/kindrednet/kindred/log"
	"github.com/kindrednet/kindred/pool"
	"github.com/kindrednet/kindred/types"
)

// Kindred is the RPC service surface. Methods follow the node rpc
// convention: positional string arguments in, one JSON string out.
type Kindred struct {
	chain *chain.Chain
	pool  *pool.TransactionPool
	relay chain.Relay
}

func NewService(c *chain.Chain, tp *pool.TransactionPool, relay chain.Relay) *Kindred {
	return &Kindred{chain: c, pool: tp, relay: relay}
}

// SendTransaction queues a transaction and relays it to peers. The
// content hash is returned even when pool admission fails: hashing
// does not require admission, and the failure is only a warning.
func (k *Kindred) SendTransaction(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	var tx types.Transaction
	if err := json.Unmarshal([]byte(req[0]), &tx); err != nil {
		return fmt.Errorf("malformed transaction: %v", err)
	}

	if err := k.pool.AddToMemoryPool(tx); err != nil {
		log.Warn(log.Rpc, "pool admission failed", "err", err)
	}

	if k.relay != nil {
		payload, _ := json.Marshal(&tx)
		k.relay.SendToAllPeers("tx", payload)
	}

	*res = tx.Hash().Hex()
	return nil
}

// GetBlock looks a block up by header hash. Every transaction in the
// result carries its own content hash attached.
func (k *Kindred) GetBlock(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	block := k.chain.GetBlock(common.HexToHash(req[0]))
	if block == nil {
		*res = "null"
		return nil
	}
	for i := range block.Transactions {
		block.Transactions[i] = block.Transactions[i].WithHash()
	}
	encoded, err := json.Marshal(block)
	if err != nil {
		return err
	}
	*res = string(encoded)
	return nil
}

// GetTransaction looks a canonical-chain transaction up by hash,
// falling back to the memory pool.
func (k *Kindred) GetTransaction(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	hash := common.HexToHash(req[0])
	tx := k.chain.GetTransaction(hash)
	if tx == nil {
		if queued, ok := k.pool.Get(hash); ok {
			attached := queued.WithHash()
			tx = &attached
		}
	}
	if tx == nil {
		*res = "null"
		return nil
	}
	encoded, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	*res = string(encoded)
	return nil
}

// GetBlockHash resolves a height on the canonical path only.
func (k *Kindred) GetBlockHash(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	height, err := strconv.ParseUint(req[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid height: %v", err)
	}
	hash, ok := k.chain.BlockHash(height)
	if !ok {
		*res = "null"
		return nil
	}
	*res = hash.Hex()
	return nil
}

// GetTipHeader returns the current canonical tip header.
func (k *Kindred) GetTipHeader(req []string, res *string) error {
	encoded, err := json.Marshal(k.chain.TipHeader())
	if err != nil {
		return err
	}
	*res = string(encoded)
	return nil
}

// SubmitBlock runs full validation on a mined block. Rejections carry
// their kind in the error so harnesses can match on it.
func (k *Kindred) SubmitBlock(req []string, res *string) error {
	if len(req) != 2 {
		return fmt.Errorf("invalid number of arguments: expected 2, got %d", len(req))
	}
	block, err := types.DecodeBlock([]byte(req[1]))
	if err != nil {
		return fmt.Errorf("malformed block: %v", err)
	}
	if err := k.chain.SubmitBlock(block); err != nil {
		return err
	}
	*res = block.Hash().Hex()
	return nil
}

// Server serves the Kindred service over TCP.
type Server struct {
	Addr    string
	service *Kindred

	listener net.Listener
}

func NewServer(addr string, service *Kindred) *Server {
	return &Server{Addr: addr, service: service}
}

// Start listens and serves connections until Stop. Blocks; run it in
// a goroutine.
func (s *Server) Start() error {
	srv := rpc.NewServer()
	if err := srv.RegisterName("kindred", s.service); err != nil {
		return err
	}
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start RPC server: %w", err)
	}
	s.listener = listener
	log.Info(log.Rpc, "RPC server listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Debug(log.Rpc, "accept failed", "err", err)
			return nil
		}
		go srv.ServeConn(conn)
	}
}

func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
}
