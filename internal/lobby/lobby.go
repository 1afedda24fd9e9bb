// internal/lobby/lobby.go
package lobby

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bhattrav/arena/internal/models"
)

// MatchType selects team-based vs free-for-all rules.
type MatchType string

const (
	TeamMatch  MatchType = "team_match"
	FreeForAll MatchType = "free_for_all"
)

// ParseMatchType validates a client-supplied match type string.
func ParseMatchType(s string) (MatchType, bool) {
	switch MatchType(s) {
	case TeamMatch, FreeForAll:
		return MatchType(s), true
	default:
		return "", false
	}
}

// Team labels for team matches. Ties in team balance go to TeamA.
const (
	TeamA = "Team-A"
	TeamB = "Team-B"
)

// State is the lobby activity state.
type State int

const (
	Filling State = iota // accepting joins
	Active               // session running, membership immutable except removal
	Ending               // reconciliation in progress
)

func (s State) String() string {
	switch s {
	case Filling:
		return "filling"
	case Active:
		return "active"
	case Ending:
		return "ending"
	default:
		return "unknown"
	}
}

// ErrCapacityExceeded is returned when a player is added to a lobby that
// is full or no longer filling. Matchmaking guarantees room, so seeing
// this outside tests means an invariant was violated.
var ErrCapacityExceeded = errors.New("lobby capacity exceeded")

// EndFunc is invoked when the session timer expires for a lobby that is
// still on the same instantiation it was armed for.
type EndFunc func(*Lobby)

// Lobby is a bounded group of player sessions sharing a match type,
// team assignment, activity state and score accumulators.
//
// Mu guards all mutable fields. Methods with the Unsafe suffix assume
// the caller already holds Mu; the rest acquire it themselves.
type Lobby struct {
	ID        uuid.UUID
	MatchType MatchType
	Capacity  int

	// Players is the membership in join order. Join order doubles as the
	// tie break for MVP selection at session end.
	Players []*models.Player

	// Points maps team label to team score. Non-nil only for team
	// matches; keys appear as teams are first assigned.
	Points map[string]int

	State     State
	StartedAt time.Time

	// generation counts lobby instantiations. It is bumped on every
	// reset so a stale session timer can detect it fired against a
	// reused lobby slot and become a no-op.
	generation   uint64
	sessionTimer *time.Timer

	Mu sync.Mutex
}

// NewLobby builds an empty Filling lobby for the given match type.
func NewLobby(mt MatchType, capacity int) *Lobby {
	l := &Lobby{
		ID:        uuid.New(),
		MatchType: mt,
		Capacity:  capacity,
		State:     Filling,
	}
	if mt == TeamMatch {
		l.Points = make(map[string]int)
	}
	return l
}

// AddPlayerUnsafe appends p to the membership, assigning a team first if
// the match type requires one. Returns ErrCapacityExceeded if the lobby
// is full or not Filling. Assumes Mu is held.
func (l *Lobby) AddPlayerUnsafe(p *models.Player) error {
	if l.State != Filling || len(l.Players) >= l.Capacity {
		return ErrCapacityExceeded
	}
	if l.MatchType == TeamMatch {
		p.Team = l.pickTeamUnsafe()
		if _, ok := l.Points[p.Team]; !ok {
			l.Points[p.Team] = 0
		}
	}
	p.SetLobbyID(l.ID)
	l.Players = append(l.Players, p)
	return nil
}

// pickTeamUnsafe assigns the team with fewer current members, preferring
// TeamA on ties.
func (l *Lobby) pickTeamUnsafe() string {
	countA, countB := 0, 0
	for _, p := range l.Players {
		switch p.Team {
		case TeamA:
			countA++
		case TeamB:
			countB++
		}
	}
	if countA <= countB {
		return TeamA
	}
	return TeamB
}

// IsFullUnsafe reports whether membership reached capacity. Assumes Mu is held.
func (l *Lobby) IsFullUnsafe() bool {
	return len(l.Players) >= l.Capacity
}

// FindPlayerUnsafe returns the member with the given session id, or nil.
// Assumes Mu is held.
func (l *Lobby) FindPlayerUnsafe(sessionID uuid.UUID) *models.Player {
	for _, p := range l.Players {
		if p.ID == sessionID {
			return p
		}
	}
	return nil
}

// RemovePlayer removes the member with the given session id and
// broadcasts the remaining roster. Removing an absent player is a no-op.
// Removal is the only membership mutation allowed once Active; teams are
// not rebalanced and the session timer keeps running.
func (l *Lobby) RemovePlayer(sessionID uuid.UUID) {
	l.Mu.Lock()
	found := false
	for i, p := range l.Players {
		if p.ID == sessionID {
			p.SetLobbyID(uuid.Nil)
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		l.Mu.Unlock()
		return
	}
	log.Printf("Lobby %s: removed player %s (%d remaining).", l.ID, sessionID, len(l.Players))
	l.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "lobby_update",
		"players": l.RosterUnsafe(),
	})
	l.Mu.Unlock()
}

// RecordKillUnsafe increments the killer's kill count, the victim's
// death count and, for team matches, the killer team's score. Returns
// false if either session id is not a member. Assumes Mu is held.
func (l *Lobby) RecordKillUnsafe(killerID, victimID uuid.UUID) bool {
	killer := l.FindPlayerUnsafe(killerID)
	victim := l.FindPlayerUnsafe(victimID)
	if killer == nil || victim == nil {
		return false
	}
	killer.Kills++
	victim.Deaths++
	if l.MatchType == TeamMatch {
		l.Points[killer.Team]++
	}
	return true
}

// AllReadyUnsafe reports whether every current member flagged ready.
// Assumes Mu is held.
func (l *Lobby) AllReadyUnsafe() bool {
	if len(l.Players) == 0 {
		return false
	}
	for _, p := range l.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// RosterUnsafe builds the lobby_update player list. Assumes Mu is held.
func (l *Lobby) RosterUnsafe() []map[string]interface{} {
	roster := make([]map[string]interface{}, 0, len(l.Players))
	for _, p := range l.Players {
		entry := map[string]interface{}{
			"id":   p.ID.String(),
			"name": p.Name,
			"rank": p.Rank,
		}
		if l.MatchType == TeamMatch {
			entry["team"] = p.Team
		}
		roster = append(roster, entry)
	}
	return roster
}

// StartSession performs the one-way Filling -> Active transition:
// records the start time, broadcasts session_start and arms the one-shot
// session timer. It refuses to start twice for the same instantiation.
func (l *Lobby) StartSession(duration time.Duration, onEnd EndFunc) bool {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	if l.State != Filling || !l.IsFullUnsafe() {
		log.Printf("Lobby %s: ignoring session start (state=%s, members=%d/%d).",
			l.ID, l.State, len(l.Players), l.Capacity)
		return false
	}
	l.State = Active
	l.StartedAt = time.Now()
	l.BroadcastAllUnsafe(map[string]interface{}{
		"type":     "session_start",
		"lobby_id": l.ID.String(),
	})
	l.armSessionTimerUnsafe(duration, onEnd)
	return true
}

// armSessionTimerUnsafe schedules the Active -> Ending transition. The
// callback re-checks the generation under the lock: if the lobby slot
// was reset and reused since arming, the stale timer does nothing.
// Assumes Mu is held.
func (l *Lobby) armSessionTimerUnsafe(duration time.Duration, onEnd EndFunc) {
	gen := l.generation
	l.sessionTimer = time.AfterFunc(duration, func() {
		l.Mu.Lock()
		if l.generation != gen || l.State != Active {
			log.Printf("Lobby %s: stale session timer fired (gen %d != %d). Ignoring.",
				l.ID, gen, l.generation)
			l.Mu.Unlock()
			return
		}
		l.State = Ending
		l.sessionTimer = nil
		l.Mu.Unlock()
		if onEnd != nil {
			onEnd(l)
		}
	})
}

// ResetUnsafe clears membership and score accumulators and returns the
// lobby to Filling, making the slot eligible for matchmaking again. The
// generation bump invalidates any timer armed for the previous
// instantiation. Assumes Mu is held.
func (l *Lobby) ResetUnsafe() {
	for _, p := range l.Players {
		p.SetLobbyID(uuid.Nil)
	}
	l.Players = nil
	if l.MatchType == TeamMatch {
		l.Points = make(map[string]int)
	}
	l.State = Filling
	l.StartedAt = time.Time{}
	l.generation++
	if l.sessionTimer != nil {
		l.sessionTimer.Stop()
		l.sessionTimer = nil
	}
}
