// internal/database/player.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bhattrav/arena/internal/models"
)

// UpsertPlayerByStableID creates or refreshes the durable record keyed
// by stable id, returning the stored counters so the session can load
// them.
func UpsertPlayerByStableID(ctx context.Context, stableID, name, contact string) (*models.PlayerRecord, error) {
	var r models.PlayerRecord
	q := `
	INSERT INTO players (stable_id, name, contact)
	VALUES ($1, $2, $3)
	ON CONFLICT (stable_id) DO UPDATE SET name = $2, contact = $3
	RETURNING stable_id, name, contact, kills, deaths, total_points, rank
	`
	err := DB.QueryRow(ctx, q, stableID, name, contact).Scan(
		&r.StableID, &r.Name, &r.Contact,
		&r.Kills, &r.Deaths, &r.TotalPoints, &r.Rank,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player %s: %w", stableID, err)
	}
	return &r, nil
}

// FindPlayerByContactOrID fetches the durable record whose stable id or
// contact handle matches key.
func FindPlayerByContactOrID(ctx context.Context, key string) (*models.PlayerRecord, error) {
	var r models.PlayerRecord
	q := `
	SELECT stable_id, name, contact, kills, deaths, total_points, rank
	FROM players
	WHERE stable_id = $1 OR contact = $1
	`
	err := DB.QueryRow(ctx, q, key).Scan(
		&r.StableID, &r.Name, &r.Contact,
		&r.Kills, &r.Deaths, &r.TotalPoints, &r.Rank,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SavePlayer writes the record's counters back by stable id.
func SavePlayer(ctx context.Context, rec *models.PlayerRecord) error {
	q := `
	UPDATE players
	SET kills = $1, deaths = $2, total_points = $3, rank = $4
	WHERE stable_id = $5
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, rec.Kills, rec.Deaths, rec.TotalPoints, rec.Rank, rec.StableID)
		return err
	})
}

// TopPlayers returns the highest-ranked durable records for the
// leaderboard endpoint.
func TopPlayers(ctx context.Context, limit int) ([]*models.PlayerRecord, error) {
	q := `
	SELECT stable_id, name, contact, kills, deaths, total_points, rank
	FROM players
	ORDER BY rank DESC, total_points DESC
	LIMIT $1
	`
	rows, err := DB.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.PlayerRecord
	for rows.Next() {
		var r models.PlayerRecord
		if err := rows.Scan(
			&r.StableID, &r.Name, &r.Contact,
			&r.Kills, &r.Deaths, &r.TotalPoints, &r.Rank,
		); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Store adapts the package-level queries to the session.PlayerStore
// interface consumed by reconciliation.
type Store struct{}

func (Store) FindByContactOrID(ctx context.Context, key string) (*models.PlayerRecord, error) {
	return FindPlayerByContactOrID(ctx, key)
}

func (Store) Save(ctx context.Context, rec *models.PlayerRecord) error {
	return SavePlayer(ctx, rec)
}
