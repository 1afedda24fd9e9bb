// internal/lobby/lobby_test.go
package lobby

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhattrav/arena/internal/models"
)

func newTestPlayer(name string) *models.Player {
	p := models.NewPlayer()
	p.Name = name
	return p
}

// drainMessages empties a player's outbound channel.
func drainMessages(p *models.Player) []map[string]interface{} {
	var msgs []map[string]interface{}
	for {
		select {
		case m := <-p.Out:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func messageTypes(msgs []map[string]interface{}) []string {
	var types []string
	for _, m := range msgs {
		typ, _ := m["type"].(string)
		types = append(types, typ)
	}
	return types
}

func TestAddPlayerCapacity(t *testing.T) {
	l := NewLobby(FreeForAll, 2)

	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("a")))
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("b")))
	assert.True(t, l.IsFullUnsafe())

	err := l.AddPlayerUnsafe(newTestPlayer("c"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Len(t, l.Players, 2)
}

func TestAddPlayerRejectedOnceActive(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("a")))
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("b")))
	require.True(t, l.StartSession(time.Minute, nil))

	l.Mu.Lock()
	defer l.Mu.Unlock()
	// Removal below capacity mid-session does not reopen the lobby.
	l.Players = l.Players[:1]
	assert.ErrorIs(t, l.AddPlayerUnsafe(newTestPlayer("c")), ErrCapacityExceeded)
}

func TestTeamAssignmentBalancesWithinOne(t *testing.T) {
	l := NewLobby(TeamMatch, 4)

	players := make([]*models.Player, 4)
	for i := range players {
		players[i] = newTestPlayer("p")
		require.NoError(t, l.AddPlayerUnsafe(players[i]))

		countA, countB := 0, 0
		for _, p := range l.Players {
			switch p.Team {
			case TeamA:
				countA++
			case TeamB:
				countB++
			}
		}
		diff := countA - countB
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, 1, "teams must stay balanced within 1")
	}

	// Tie break prefers TeamA, so join order alternates A, B, A, B.
	assert.Equal(t, TeamA, players[0].Team)
	assert.Equal(t, TeamB, players[1].Team)
	assert.Equal(t, TeamA, players[2].Team)
	assert.Equal(t, TeamB, players[3].Team)

	// Score keys exist exactly for the labels assigned.
	assert.Len(t, l.Points, 2)
	assert.Contains(t, l.Points, TeamA)
	assert.Contains(t, l.Points, TeamB)
}

func TestFreeForAllHasNoTeamPoints(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("a")))
	assert.Nil(t, l.Points)
	assert.Empty(t, l.Players[0].Team)
}

func TestStartSessionTransitionsOnce(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	a := newTestPlayer("a")
	b := newTestPlayer("b")
	require.NoError(t, l.AddPlayerUnsafe(a))
	require.NoError(t, l.AddPlayerUnsafe(b))

	require.True(t, l.StartSession(time.Minute, nil))
	assert.Equal(t, Active, l.State)
	assert.False(t, l.StartedAt.IsZero())

	// Second start is refused.
	assert.False(t, l.StartSession(time.Minute, nil))

	for _, p := range []*models.Player{a, b} {
		types := messageTypes(drainMessages(p))
		assert.Equal(t, []string{"session_start"}, types)
	}
}

func TestStartSessionRequiresFullLobby(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("a")))
	assert.False(t, l.StartSession(time.Minute, nil))
	assert.Equal(t, Filling, l.State)
}

func TestSessionTimerFiresOnce(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("a")))
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("b")))

	fired := make(chan *Lobby, 2)
	require.True(t, l.StartSession(20*time.Millisecond, func(ended *Lobby) {
		fired <- ended
	}))

	select {
	case ended := <-fired:
		assert.Same(t, l, ended)
	case <-time.After(time.Second):
		t.Fatal("session timer never fired")
	}

	l.Mu.Lock()
	assert.Equal(t, Ending, l.State)
	l.Mu.Unlock()

	select {
	case <-fired:
		t.Fatal("session timer fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStaleSessionTimerIsNoOp(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("a")))
	require.NoError(t, l.AddPlayerUnsafe(newTestPlayer("b")))

	fired := make(chan struct{}, 1)
	require.True(t, l.StartSession(30*time.Millisecond, func(*Lobby) {
		fired <- struct{}{}
	}))

	// Reset before the timer fires; the reused slot must not be ended
	// by the stale callback.
	l.Mu.Lock()
	l.ResetUnsafe()
	l.Mu.Unlock()

	select {
	case <-fired:
		t.Fatal("stale timer ended a reused lobby slot")
	case <-time.After(150 * time.Millisecond):
	}

	l.Mu.Lock()
	assert.Equal(t, Filling, l.State)
	l.Mu.Unlock()
}

func TestRemovePlayerBroadcastsRemainingRoster(t *testing.T) {
	l := NewLobby(FreeForAll, 3)
	a := newTestPlayer("a")
	b := newTestPlayer("b")
	require.NoError(t, l.AddPlayerUnsafe(a))
	require.NoError(t, l.AddPlayerUnsafe(b))

	l.RemovePlayer(a.ID)

	assert.Equal(t, Filling, l.State)
	assert.Len(t, l.Players, 1)
	assert.Equal(t, uuid.Nil, a.LobbyID())

	msgs := drainMessages(b)
	require.Len(t, msgs, 1)
	assert.Equal(t, "lobby_update", msgs[0]["type"])
	roster := msgs[0]["players"].([]map[string]interface{})
	require.Len(t, roster, 1)
	assert.Equal(t, b.ID.String(), roster[0]["id"])
}

func TestRemoveAbsentPlayerIsNoOp(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	b := newTestPlayer("b")
	require.NoError(t, l.AddPlayerUnsafe(b))

	l.RemovePlayer(uuid.New())

	assert.Len(t, l.Players, 1)
	assert.Empty(t, drainMessages(b), "no broadcast for a no-op removal")
}

func TestRecordKill(t *testing.T) {
	l := NewLobby(TeamMatch, 2)
	a := newTestPlayer("a")
	b := newTestPlayer("b")
	require.NoError(t, l.AddPlayerUnsafe(a))
	require.NoError(t, l.AddPlayerUnsafe(b))

	l.Mu.Lock()
	defer l.Mu.Unlock()

	require.True(t, l.RecordKillUnsafe(a.ID, b.ID))
	assert.Equal(t, 1, a.Kills)
	assert.Equal(t, 1, b.Deaths)
	assert.Equal(t, 1, l.Points[a.Team])
	assert.Equal(t, 0, l.Points[b.Team])

	// Unknown session ids leave everything untouched.
	assert.False(t, l.RecordKillUnsafe(uuid.New(), b.ID))
	assert.Equal(t, 1, a.Kills)
	assert.Equal(t, 1, b.Deaths)
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	l := NewLobby(FreeForAll, 3)
	a := newTestPlayer("a")
	b := newTestPlayer("b")
	c := newTestPlayer("c")
	for _, p := range []*models.Player{a, b, c} {
		require.NoError(t, l.AddPlayerUnsafe(p))
	}

	l.Mu.Lock()
	l.BroadcastExceptUnsafe(map[string]interface{}{"type": "update_state"}, a.ID)
	l.Mu.Unlock()

	assert.Empty(t, drainMessages(a))
	assert.Len(t, drainMessages(b), 1)
	assert.Len(t, drainMessages(c), 1)
}

func TestBroadcastSkipsDeadChannel(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	a := newTestPlayer("a")
	b := newTestPlayer("b")
	require.NoError(t, l.AddPlayerUnsafe(a))
	require.NoError(t, l.AddPlayerUnsafe(b))

	// Saturate a's channel so further writes drop instead of blocking.
	for i := 0; i < cap(a.Out); i++ {
		a.Out <- map[string]interface{}{"type": "filler"}
	}

	done := make(chan struct{})
	go func() {
		l.BroadcastAll(map[string]interface{}{"type": "session_start"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a saturated member channel")
	}

	msgs := drainMessages(b)
	require.Len(t, msgs, 1)
	assert.Equal(t, "session_start", msgs[0]["type"])
}

func TestAllReady(t *testing.T) {
	l := NewLobby(FreeForAll, 2)
	a := newTestPlayer("a")
	b := newTestPlayer("b")
	require.NoError(t, l.AddPlayerUnsafe(a))
	require.NoError(t, l.AddPlayerUnsafe(b))

	assert.False(t, l.AllReadyUnsafe())
	a.Ready = true
	assert.False(t, l.AllReadyUnsafe())
	b.Ready = true
	assert.True(t, l.AllReadyUnsafe())
}

func TestResetClearsStateForReuse(t *testing.T) {
	l := NewLobby(TeamMatch, 2)
	a := newTestPlayer("a")
	b := newTestPlayer("b")
	require.NoError(t, l.AddPlayerUnsafe(a))
	require.NoError(t, l.AddPlayerUnsafe(b))
	require.True(t, l.StartSession(time.Minute, nil))
	drainMessages(a)
	drainMessages(b)

	l.Mu.Lock()
	l.Points[TeamA] = 5
	l.ResetUnsafe()
	l.Mu.Unlock()

	assert.Equal(t, Filling, l.State)
	assert.Empty(t, l.Players)
	assert.Empty(t, l.Points)
	assert.Equal(t, uuid.Nil, a.LobbyID())
	assert.True(t, l.StartedAt.IsZero())
}
