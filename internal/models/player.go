// internal/models/player.go
package models

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Player is the in-memory session record for one connected client. It
// lives for the lifetime of the connection and is destroyed on disconnect.
//
// Once a player is matched, the gameplay fields (State, Kills, Deaths,
// Points, Team, Ready, Name, Rank) are lobby state: they are read and
// written under the owning lobby's mutex, never bare. The lobby
// reference itself has its own accessor pair so a connection goroutine
// can locate the lobby without already holding its lock.
type Player struct {
	ID       uuid.UUID `json:"id"` // ephemeral session id, unique per connection
	StableID string    `json:"-"`  // links to the durable record
	Name     string    `json:"name"`
	Contact  string    `json:"-"`

	// State is the last reported position/pose blob. The server stores and
	// rebroadcasts it without interpreting it.
	State interface{} `json:"-"`

	Kills  int     `json:"kills"`
	Deaths int     `json:"deaths"`
	Points int     `json:"points"`
	Rank   float64 `json:"rank"`
	Team   string  `json:"team,omitempty"`
	Ready  bool    `json:"-"`

	// Out is the outbound event channel owned by the transport layer. The
	// core addresses broadcasts through it and never touches the socket.
	Out chan map[string]interface{} `json:"-"`

	// mu guards lobbyID only. It is a leaf lock: lobby code calls
	// SetLobbyID while holding the lobby mutex, never the reverse.
	mu      sync.Mutex
	lobbyID uuid.UUID
}

// NewPlayer builds a session record with zero-valued counters.
func NewPlayer() *Player {
	return &Player{
		ID:  uuid.New(),
		Out: make(chan map[string]interface{}, 16),
	}
}

// LobbyID returns the weak reference to the lobby the player currently
// sits in, or uuid.Nil if the player has not joined a match.
func (p *Player) LobbyID() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lobbyID
}

// SetLobbyID updates the lobby reference. Callers mutating membership
// hold the lobby mutex around this.
func (p *Player) SetLobbyID(id uuid.UUID) {
	p.mu.Lock()
	p.lobbyID = id
	p.mu.Unlock()
}

// Write pushes a message onto the player's Out channel non-blockingly.
// If the channel is full or the transport already tore it down, the
// message is dropped and logged; a slow client must never stall a lobby
// broadcast.
func (p *Player) Write(msg map[string]interface{}) {
	if p.Out == nil {
		return
	}
	select {
	case p.Out <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("Player %s: Out channel closed or full, dropped message type '%s'.", p.ID, msgType)
	}
}
