package websocket

import (
	"sync"

	"chat-platform/pkg/logger"
)

// Tracker keeps the set of live clients so shutdown can close them.
type Tracker struct {
	clients map[*Client]struct{}
	mutex   sync.Mutex
}

func NewTracker() *Tracker {
	return &Tracker{clients: make(map[*Client]struct{})}
}

func (t *Tracker) add(c *Client) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.clients[c] = struct{}{}
}

func (t *Tracker) remove(c *Client) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.clients, c)
}

func (t *Tracker) Count() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.clients)
}

// CloseAll sends a close frame to every client. Each one then runs its normal
// disconnect path.
func (t *Tracker) CloseAll() {
	t.mutex.Lock()
	clients := make([]*Client, 0, len(t.clients))
	for c := range t.clients {
		clients = append(clients, c)
	}
	t.mutex.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
	logger.Info("Closing %d websocket connections", len(clients))
}
