// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bhattrav/arena/internal/database"
	"github.com/bhattrav/arena/internal/lobby"
	"github.com/bhattrav/arena/internal/middleware"
	"github.com/bhattrav/arena/internal/models"
	"github.com/bhattrav/arena/internal/session"
)

// GameServer wires the transport to the lobby engine: it owns the
// registry, the reconciler and the session duration applied to every
// lobby it starts.
type GameServer struct {
	Registry        *lobby.Registry
	Reconciler      *session.Reconciler
	SessionDuration time.Duration
	Logger          *logrus.Logger
}

// NewGameServer builds a GameServer around an empty registry.
func NewGameServer(capacity int, duration time.Duration, rc *session.Reconciler, logger *logrus.Logger) *GameServer {
	return &GameServer{
		Registry:        lobby.NewRegistry(capacity),
		Reconciler:      rc,
		SessionDuration: duration,
		Logger:          logger,
	}
}

// WSHandler accepts a client WebSocket, creates the session record for
// the connection and runs the read loop until disconnect.
func (s *GameServer) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		player := models.NewPlayer()
		ctx, cancel := context.WithCancel(r.Context())
		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr)

		go writePump(ctx, c, player, s.Logger)
		readErr := s.readPump(ctx, c, player)

		// ---- Cleanup after readPump exits ----
		s.handleDisconnect(player)
		cancel()
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, readErr)
	}
}

// readPump reads client messages until the connection drops. Each
// message is handled to completion before the next is read, so all
// mutations driven by one connection are serialized.
func (s *GameServer) readPump(ctx context.Context, c *websocket.Conn, player *models.Player) error {
	for {
		typ, raw, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			s.Logger.Warnf("Player %s: ignoring non-text message type %d.", player.ID, typ)
			continue
		}
		s.HandleMessage(ctx, player, raw)
	}
}

// HandleMessage decodes one inbound payload and dispatches it. Malformed
// payloads are logged and dropped; the connection stays open.
func (s *GameServer) HandleMessage(ctx context.Context, player *models.Player, raw []byte) {
	msg, err := models.DecodeClientMessage(raw)
	if err != nil {
		s.Logger.Warnf("Player %s: malformed message dropped: %v", player.ID, err)
		return
	}

	switch msg.Type {
	case models.MsgRegister:
		s.handleRegister(ctx, player, msg)
	case models.MsgJoinMatch:
		s.handleJoinMatch(player, msg)
	case models.MsgUpdateState:
		s.handleUpdateState(player, msg)
	case models.MsgPlayerKill:
		s.handlePlayerKill(player, msg)
	case models.MsgReady:
		s.handleReady(player)
	}
}

// handleRegister upserts the durable record and loads its rank into the
// session for roster display. Session kill/death/point counters stay
// zero: reconciliation adds them to the durable totals at session end,
// so preloading them here would double-count.
func (s *GameServer) handleRegister(ctx context.Context, player *models.Player, msg *models.ClientMessage) {
	rec, err := database.UpsertPlayerByStableID(ctx, msg.StableID, msg.Name, msg.Contact)
	if err != nil {
		s.Logger.Errorf("Player %s: register failed for stable id %q: %v", player.ID, msg.StableID, err)
		return
	}
	// Once matched these are roster fields read under the lobby lock, so
	// a re-registration mid-lobby takes it too.
	apply := func() {
		player.StableID = rec.StableID
		player.Name = rec.Name
		player.Contact = rec.Contact
		player.Rank = rec.Rank
	}
	if l, ok := s.Registry.Lookup(player.LobbyID()); ok {
		l.Mu.Lock()
		apply()
		l.Mu.Unlock()
	} else {
		apply()
	}

	player.Write(map[string]interface{}{
		"type": "registered",
		"id":   player.ID.String(),
	})
}

func (s *GameServer) handleJoinMatch(player *models.Player, msg *models.ClientMessage) {
	mt, ok := lobby.ParseMatchType(msg.MatchType)
	if !ok {
		s.Logger.Warnf("Player %s: unknown match type %q dropped.", player.ID, msg.MatchType)
		return
	}
	if id := player.LobbyID(); id != uuid.Nil {
		s.Logger.Warnf("Player %s: join_match while already in lobby %s dropped.", player.ID, id)
		return
	}

	l, full, err := s.Registry.Join(player, mt)
	if err != nil {
		// Join guarantees room; this is an invariant violation, not a client error.
		s.Logger.Errorf("Player %s: matchmaking failed: %v", player.ID, err)
		return
	}

	l.Mu.Lock()
	l.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "lobby_update",
		"players": l.RosterUnsafe(),
	})
	l.Mu.Unlock()

	player.Write(map[string]interface{}{
		"type":     "joined_lobby",
		"lobby_id": l.ID.String(),
	})

	if full {
		l.StartSession(s.SessionDuration, func(ended *lobby.Lobby) {
			s.Reconciler.EndSession(context.Background(), ended)
		})
	}
}

func (s *GameServer) handleUpdateState(player *models.Player, msg *models.ClientMessage) {
	l, ok := s.Registry.Lookup(player.LobbyID())
	if !ok {
		return
	}
	l.Mu.Lock()
	// Membership can change between the lookup and the lock (session
	// reset, disconnect); re-check before touching roster state.
	if l.FindPlayerUnsafe(player.ID) == nil {
		l.Mu.Unlock()
		return
	}
	player.State = msg.State
	l.BroadcastExceptUnsafe(map[string]interface{}{
		"type":      "update_state",
		"player_id": player.ID.String(),
		"state":     msg.State,
	}, player.ID)
	l.Mu.Unlock()
}

func (s *GameServer) handlePlayerKill(player *models.Player, msg *models.ClientMessage) {
	killerID, err := uuid.Parse(msg.KillerSessionID)
	if err != nil {
		return
	}
	victimID, err := uuid.Parse(msg.VictimSessionID)
	if err != nil {
		return
	}
	l, ok := s.Registry.Lookup(player.LobbyID())
	if !ok {
		return
	}
	l.Mu.Lock()
	if l.RecordKillUnsafe(killerID, victimID) {
		l.BroadcastAllUnsafe(map[string]interface{}{
			"type":      "player_kill",
			"killer_id": killerID.String(),
			"victim_id": victimID.String(),
		})
	}
	l.Mu.Unlock()
}

func (s *GameServer) handleReady(player *models.Player) {
	l, ok := s.Registry.Lookup(player.LobbyID())
	if !ok {
		// Not matched yet; only this connection's goroutine sees the flag.
		player.Ready = true
		return
	}
	l.Mu.Lock()
	if l.FindPlayerUnsafe(player.ID) == nil {
		l.Mu.Unlock()
		return
	}
	player.Ready = true
	if l.AllReadyUnsafe() {
		l.BroadcastAllUnsafe(map[string]interface{}{"type": "all_ready"})
	}
	l.Mu.Unlock()
}

// handleDisconnect removes the player from their lobby, if any. An
// already-armed session timer keeps running and reconciles whoever
// remains.
func (s *GameServer) handleDisconnect(player *models.Player) {
	id := player.LobbyID()
	if id == uuid.Nil {
		return
	}
	if l, ok := s.Registry.Lookup(id); ok {
		l.RemovePlayer(player.ID)
	}
}

// writePump drains the player's outbound channel onto the socket and
// pings periodically to detect dead connections.
func writePump(ctx context.Context, c *websocket.Conn, player *models.Player, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-player.Out:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("Player %s: failed to marshal outgoing msg: %v", player.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Player %s: websocket write failed: %v", player.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Player %s: ping failed, assuming disconnect: %v", player.ID, err)
				return
			}
		}
	}
}
