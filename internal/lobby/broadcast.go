// internal/lobby/broadcast.go
package lobby

import (
	"github.com/google/uuid"
)

// BroadcastAllUnsafe delivers msg to every current member in membership
// order. Delivery is best-effort; a member whose channel is gone is
// skipped without failing the rest. Assumes Mu is held.
func (l *Lobby) BroadcastAllUnsafe(msg map[string]interface{}) {
	for _, p := range l.Players {
		p.Write(msg)
	}
}

// BroadcastExceptUnsafe is BroadcastAllUnsafe minus one designated
// member, used to avoid echoing a sender's own update back to itself.
// Assumes Mu is held.
func (l *Lobby) BroadcastExceptUnsafe(msg map[string]interface{}, exceptID uuid.UUID) {
	for _, p := range l.Players {
		if p.ID == exceptID {
			continue
		}
		p.Write(msg)
	}
}

// BroadcastAll delivers msg to every current member, acquiring the lock.
func (l *Lobby) BroadcastAll(msg map[string]interface{}) {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	l.BroadcastAllUnsafe(msg)
}
