package sessionstore

import (
	"sync"

	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// Hub fans session updates out to every consumer in the same process, so all
// of them converge to the same in-memory state after any mutation from any
// of them. A nil session on the channel means the session was cleared.
// Last-write-wins; there is no locking discipline beyond the broadcast.
type Hub struct {
	mu        sync.Mutex
	listeners []chan *models.AnonymousSession
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Listen registers a listener channel. The channel is buffered; a listener
// that falls behind loses intermediate updates, which is acceptable because
// every update carries the full session state.
func (h *Hub) Listen() chan *models.AnonymousSession {
	ch := make(chan *models.AnonymousSession, 8)
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
	return ch
}

// Remove unregisters a listener channel.
func (h *Hub) Remove(ch chan *models.AnonymousSession) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := make([]chan *models.AnonymousSession, 0, len(h.listeners))
	for _, l := range h.listeners {
		if l != ch {
			kept = append(kept, l)
		}
	}
	h.listeners = kept
}

// Broadcast delivers the session snapshot to every listener without blocking.
func (h *Hub) Broadcast(session *models.AnonymousSession) {
	h.mu.Lock()
	listeners := append([]chan *models.AnonymousSession(nil), h.listeners...)
	h.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- session:
		default:
			// Listener is behind; it will catch up on the next broadcast.
		}
	}
}
