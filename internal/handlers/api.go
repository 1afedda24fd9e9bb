// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bhattrav/arena/internal/database"
	"github.com/bhattrav/arena/internal/lobby"
)

// ListLobbiesHandler returns a summary of all active lobbies.
func ListLobbiesHandler(s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		type lobbySummary struct {
			ID        string         `json:"id"`
			MatchType string         `json:"match_type"`
			State     string         `json:"state"`
			Members   int            `json:"members"`
			Capacity  int            `json:"capacity"`
			Points    map[string]int `json:"points,omitempty"`
		}

		var out []lobbySummary
		for _, l := range s.Registry.Lobbies() {
			l.Mu.Lock()
			summary := lobbySummary{
				ID:        l.ID.String(),
				MatchType: string(l.MatchType),
				State:     l.State.String(),
				Members:   len(l.Players),
				Capacity:  l.Capacity,
			}
			if l.MatchType == lobby.TeamMatch {
				summary.Points = make(map[string]int, len(l.Points))
				for team, pts := range l.Points {
					summary.Points[team] = pts
				}
			}
			l.Mu.Unlock()
			out = append(out, summary)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"lobbies": out})
	}
}

// LeaderboardHandler returns the top durable records ordered by rank.
func LeaderboardHandler(s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		records, err := database.TopPlayers(r.Context(), 20)
		if err != nil {
			s.Logger.Errorf("leaderboard query failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"players": records})
	}
}
