// internal/lobby/registry.go
package lobby

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/bhattrav/arena/internal/models"
)

// Registry holds all active lobbies keyed by match type, in creation
// order. Its lock is distinct from the per-lobby locks so broadcasts in
// one lobby never block matchmaking for unrelated lobbies. Lock order is
// always registry first, then lobby.
type Registry struct {
	mu       sync.Mutex
	lobbies  map[MatchType][]*Lobby
	capacity int
}

// NewRegistry builds an empty registry whose lobbies hold up to capacity
// members each.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		lobbies:  make(map[MatchType][]*Lobby),
		capacity: capacity,
	}
}

// FindOrCreate returns the oldest Filling lobby of the given match type
// with room, creating and appending a new one if none exists. It never
// returns an Active or Ending lobby.
func (r *Registry) FindOrCreate(mt MatchType) *Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findOrCreateLocked(mt)
}

func (r *Registry) findOrCreateLocked(mt MatchType) *Lobby {
	for _, l := range r.lobbies[mt] {
		l.Mu.Lock()
		open := l.State == Filling && !l.IsFullUnsafe()
		l.Mu.Unlock()
		if open {
			return l
		}
	}
	l := NewLobby(mt, r.capacity)
	r.lobbies[mt] = append(r.lobbies[mt], l)
	log.Printf("Registry: created %s lobby %s (capacity %d).", mt, l.ID, r.capacity)
	return l
}

// Join atomically matchmakes p into a lobby: find-or-create plus
// add-member under the registry lock, so the room guarantee of
// FindOrCreate cannot be raced away between the two steps. The returned
// bool reports whether this join filled the lobby, which happens for
// exactly one join per lobby instantiation.
func (r *Registry) Join(p *models.Player, mt MatchType) (*Lobby, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.findOrCreateLocked(mt)
	l.Mu.Lock()
	defer l.Mu.Unlock()
	if err := l.AddPlayerUnsafe(p); err != nil {
		return nil, false, err
	}
	return l, l.IsFullUnsafe(), nil
}

// Lookup returns the lobby with the given id across all match types.
func (r *Registry) Lookup(id uuid.UUID) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ls := range r.lobbies {
		for _, l := range ls {
			if l.ID == id {
				return l, true
			}
		}
	}
	return nil, false
}

// Lobbies returns a snapshot slice of all active lobbies, used for the
// list endpoint and debugging.
func (r *Registry) Lobbies() []*Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Lobby
	for _, ls := range r.lobbies {
		out = append(out, ls...)
	}
	return out
}
