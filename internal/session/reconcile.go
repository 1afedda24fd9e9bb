// internal/session/reconcile.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bhattrav/arena/internal/cache"
	"github.com/bhattrav/arena/internal/lobby"
	"github.com/bhattrav/arena/internal/models"
)

// PlayerStore is the durable record collaborator consumed by
// reconciliation. The pgx-backed implementation lives in
// internal/database; tests substitute fakes.
type PlayerStore interface {
	FindByContactOrID(ctx context.Context, key string) (*models.PlayerRecord, error)
	Save(ctx context.Context, rec *models.PlayerRecord) error
}

// Reconciler finalizes ended sessions: it computes the MVP, broadcasts
// session_end, merges per-player deltas into durable records and resets
// the lobby for reuse.
type Reconciler struct {
	Store  PlayerStore
	Logger *logrus.Logger

	// Publish, when set, ships a result record to the session-history
	// queue after reconciliation. Failures are logged, never fatal.
	Publish func(ctx context.Context, rec cache.SessionResultRecord) error
}

// delta is a snapshot of one member's session counters, captured before
// the lobby is handed back to matchmaking.
type delta struct {
	stableID string
	name     string
	kills    int
	deaths   int
	points   int
}

// EndSession finalizes one lobby instantiation. Persistence runs
// concurrently per player; a failure for one player is logged and
// skipped without touching the others, and the lobby resets regardless.
// Calling it again on an already-reset lobby has no additional effect.
func (rc *Reconciler) EndSession(ctx context.Context, l *lobby.Lobby) {
	l.Mu.Lock()

	// A lobby that is already back in Filling with nobody in it was
	// reconciled before (or never ran); there is no session to record.
	if len(l.Players) == 0 && l.State == lobby.Filling {
		l.Mu.Unlock()
		return
	}

	endMsg := map[string]interface{}{"type": "session_end"}
	if mvp := mvpUnsafe(l); mvp != nil {
		endMsg["mvp"] = map[string]interface{}{
			"name":  mvp.Name,
			"kills": mvp.Kills,
		}
	}
	l.BroadcastAllUnsafe(endMsg)

	// Points earned this session equal kills this session.
	deltas := make([]delta, 0, len(l.Players))
	for _, p := range l.Players {
		p.Points += p.Kills
		deltas = append(deltas, delta{
			stableID: p.StableID,
			name:     p.Name,
			kills:    p.Kills,
			deaths:   p.Deaths,
			points:   p.Points,
		})
	}

	result := cache.SessionResultRecord{
		LobbyID:   l.ID,
		MatchType: string(l.MatchType),
		EndedAt:   time.Now().Unix(),
	}
	if mvp, ok := endMsg["mvp"].(map[string]interface{}); ok {
		result.MVPName, _ = mvp["name"].(string)
		result.MVPKills, _ = mvp["kills"].(int)
	}
	for team, pts := range l.Points {
		if result.TeamPoints == nil {
			result.TeamPoints = make(map[string]int)
		}
		result.TeamPoints[team] = pts
	}
	for _, d := range deltas {
		result.Players = append(result.Players, cache.PlayerResult{
			StableID: d.stableID,
			Name:     d.name,
			Kills:    d.kills,
			Deaths:   d.deaths,
			Points:   d.points,
		})
	}

	l.Mu.Unlock()

	// Fan out durable writes, wait for all, isolate failures.
	var wg sync.WaitGroup
	for _, d := range deltas {
		wg.Add(1)
		go func(d delta) {
			defer wg.Done()
			rc.persist(ctx, d)
		}(d)
	}
	wg.Wait()

	l.Mu.Lock()
	l.ResetUnsafe()
	l.Mu.Unlock()
	rc.Logger.Infof("Lobby %s: session reconciled (%d players), lobby reset.", l.ID, len(deltas))

	if rc.Publish != nil {
		if err := rc.Publish(ctx, result); err != nil {
			rc.Logger.Warnf("Lobby %s: failed to publish session result: %v", l.ID, err)
		}
	}
}

// persist merges one member's session deltas into their durable record.
func (rc *Reconciler) persist(ctx context.Context, d delta) {
	if d.stableID == "" {
		rc.Logger.Warnf("Skipping persistence for unregistered player %q.", d.name)
		return
	}
	rec, err := rc.Store.FindByContactOrID(ctx, d.stableID)
	if err != nil {
		rc.Logger.Errorf("Lookup failed for player %s (%s): %v", d.name, d.stableID, err)
		return
	}
	rec.Kills += d.kills
	rec.Deaths += d.deaths
	rec.TotalPoints += d.points
	rec.UpdateRank()
	if err := rc.Store.Save(ctx, rec); err != nil {
		rc.Logger.Errorf("Save failed for player %s (%s): %v", d.name, d.stableID, err)
	}
}

// mvpUnsafe returns the member with the strictly highest kill count,
// ties broken by join order, or nil for an empty roster. Assumes the
// lobby lock is held.
func mvpUnsafe(l *lobby.Lobby) *models.Player {
	if len(l.Players) == 0 {
		return nil
	}
	best := l.Players[0]
	for _, p := range l.Players[1:] {
		if p.Kills > best.Kills {
			best = p
		}
	}
	return best
}
