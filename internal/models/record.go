// internal/models/record.go
package models

// PlayerRecord is the durable player row outlived by individual sessions.
// Session deltas are merged into it when a session ends.
type PlayerRecord struct {
	StableID    string  `json:"stable_id"`
	Name        string  `json:"name"`
	Contact     string  `json:"contact"`
	Kills       int     `json:"kills"`
	Deaths      int     `json:"deaths"`
	TotalPoints int     `json:"total_points"`
	Rank        float64 `json:"rank"`
}

// UpdateRank recomputes the derived rank field as kills over deaths,
// treating zero deaths as one so the ratio is always defined.
func (r *PlayerRecord) UpdateRank() {
	deaths := r.Deaths
	if deaths < 1 {
		deaths = 1
	}
	r.Rank = float64(r.Kills) / float64(deaths)
}
