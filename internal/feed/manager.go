// Package feed relays genuine order lifecycle events — not a registry of
// static symbols — over the optional low-latency raw endpoint
// (SPEC_FULL.md §B.1 C10): clients that want binary ITCH-style framing
// instead of JSON SSE frames connect here and subscribe by symbol.
package feed

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/weaverhq/weaver/internal/itch"
)

// Manager handles client registration, subscriptions, and message fan-out.
// Unlike a static symbol registry, subscriptions resolve to a locate code
// by hashing the ticker (itch.Locate) — any symbol a run trades can be
// subscribed to without the manager needing to know about it in advance.
type Manager struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	bufferSize int
}

// NewManager creates a feed manager. bufferSize bounds each client's
// outbound send channel; a slow client drops messages rather than
// blocking the broadcaster.
func NewManager(bufferSize int) *Manager {
	return &Manager{
		clients:    make(map[uint64]*Client),
		bufferSize: bufferSize,
	}
}

// Register adds a new client. Returns the client for further use.
func (m *Manager) Register(conn *websocket.Conn) *Client {
	c := NewClient(conn, m.bufferSize)

	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	log.Printf("feed client %d connected (%s)", c.ID, conn.RemoteAddr())
	return c
}

// Unregister removes a client.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()

	c.Close()
	log.Printf("feed client %d disconnected", c.ID)
}

// ResolveSymbols hashes ticker strings to locate codes. Returns all=true
// for "*" (every symbol).
func ResolveSymbols(symbols []string) (locates []uint16, all bool) {
	for _, s := range symbols {
		if s == "*" {
			return nil, true
		}
		locates = append(locates, itch.Locate(s))
	}
	return locates, false
}

// Broadcast sends a batch of messages to every subscribed client, each
// message already stamped with its own Stock/StockLocate.
func (m *Manager) Broadcast(locate uint16, msgs []itch.Message) {
	if len(msgs) == 0 {
		return
	}

	ts := itch.NanosFromMidnight()
	for i := range msgs {
		msgs[i].Timestamp = ts
	}

	var jsonEncoded [][]byte
	var binaryEncoded [][]byte
	var jsonOnce, binaryOnce sync.Once

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if !c.IsSubscribed(locate) {
			continue
		}

		switch c.Format() {
		case FormatJSON:
			jsonOnce.Do(func() {
				jsonEncoded = encodeAllJSON(msgs)
			})
			for _, data := range jsonEncoded {
				c.Send(data)
			}

		case FormatBinary:
			binaryOnce.Do(func() {
				binaryEncoded = encodeAllBinary(msgs)
			})
			for _, data := range binaryEncoded {
				c.Send(data)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func encodeAllJSON(msgs []itch.Message) [][]byte {
	out := make([][]byte, 0, len(msgs))
	for i := range msgs {
		data, err := itch.EncodeJSON(&msgs[i])
		if err != nil {
			continue
		}
		out = append(out, data)
	}
	return out
}

func encodeAllBinary(msgs []itch.Message) [][]byte {
	out := make([][]byte, 0, len(msgs))
	for i := range msgs {
		data := itch.EncodeBinary(&msgs[i])
		if data != nil {
			out = append(out, data)
		}
	}
	return out
}
