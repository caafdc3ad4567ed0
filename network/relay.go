package network

import (
	"sync"

	"github.com/kindrednet/kindred/log"
)

// Peer consumes relayed payloads. Send returning an error only gets
// logged: relay is fire-and-forget, no retry, no effect on the caller.
type Peer interface {
	ID() string
	Send(topic string, payload []byte) error
}

// RelayHub fans payloads out to all registered peers, best effort.
type RelayHub struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

func NewRelayHub() *RelayHub {
	return &RelayHub{
		peers: make(map[string]Peer),
	}
}

func (r *RelayHub) AddPeer(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID()] = p
	log.Debug(log.Net, "peer added", "peer", p.ID(), "peers", len(r.peers))
}

func (r *RelayHub) RemovePeer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
	log.Debug(log.Net, "peer removed", "peer", id, "peers", len(r.peers))
}

func (r *RelayHub) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// SendToAllPeers relays a payload to every peer. Per-peer failures are
// logged and swallowed.
func (r *RelayHub) SendToAllPeers(topic string, payload []byte) {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	for _, p := range peers {
		if err := p.Send(topic, payload); err != nil {
			log.Debug(log.Net, "relay send failed", "peer", p.ID(), "topic", topic, "err", err)
		}
	}
}
