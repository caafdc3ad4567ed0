package rpc

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kindrednet/kindred/chain"
	"github.com/kindrednet/kindred/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TipFeed pushes tip-change events to websocket subscribers.
type TipFeed struct {
	chain *chain.Chain

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewTipFeed(c *chain.Chain) *TipFeed {
	return &TipFeed{
		chain:   c,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Serve starts the HTTP listener and the broadcast loop. Blocks; run
// it in a goroutine.
func (f *TipFeed) Serve(addr string) error {
	go f.broadcastLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/tip", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug(log.Rpc, "ws upgrade failed", "err", err)
			return
		}
		f.mu.Lock()
		f.clients[conn] = true
		f.mu.Unlock()
		log.Debug(log.Rpc, "ws client connected", "remote", conn.RemoteAddr().String())

		conn.SetCloseHandler(func(code int, text string) error {
			f.dropClient(conn)
			return nil
		})
	})
	log.Info(log.Rpc, "tip feed listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func (f *TipFeed) broadcastLoop() {
	events := f.chain.SubscribeTip()
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		f.mu.Lock()
		for conn := range f.clients {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				delete(f.clients, conn)
				conn.Close()
			}
		}
		f.mu.Unlock()
	}
}

func (f *TipFeed) dropClient(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clients[conn] {
		delete(f.clients, conn)
		conn.Close()
	}
}
