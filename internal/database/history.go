package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/musicquiz/internal/models"
)

// InsertMatchEvents persists a batch of match events in a single transaction, creating or
// finalizing the owning matches rows as needed.
func InsertMatchEvents(ctx context.Context, pool *pgxpool.Pool, events []models.MatchEvent) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, ev := range events {
			if err := insertMatchEventTx(ctx, tx, ev); err != nil {
				return fmt.Errorf("match %s event %d: %w", ev.MatchID, ev.Seq, err)
			}
		}
		return nil
	})
}

func insertMatchEventTx(ctx context.Context, tx pgx.Tx, ev models.MatchEvent) error {
	upsertMatchQ := `
		INSERT INTO matches (id, lobby_code, status, started_at)
		VALUES ($1, $2, 'in_progress', $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertMatchQ, ev.MatchID, ev.LobbyCode, ev.Timestamp); err != nil {
		return err
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	eventQ := `
		INSERT INTO match_events (match_id, seq, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, seq) DO NOTHING
	`
	if _, err := tx.Exec(ctx, eventQ, ev.MatchID, ev.Seq, ev.Type, payload, ev.Timestamp); err != nil {
		return err
	}

	var status string
	switch ev.Type {
	case "match_ended":
		status = "completed"
	case "lobby_closed":
		status = "abandoned"
	default:
		return nil
	}
	finalizeQ := `
		UPDATE matches
		SET status = $2, ended_at = $3
		WHERE id = $1 AND status = 'in_progress'
	`
	_, err = tx.Exec(ctx, finalizeQ, ev.MatchID, status, ev.Timestamp)
	return err
}

// MarkMatchAbandoned flags a match that stopped producing events.
func MarkMatchAbandoned(ctx context.Context, pool *pgxpool.Pool, matchID uuid.UUID) error {
	q := `
		UPDATE matches
		SET status = 'abandoned', ended_at = $2
		WHERE id = $1 AND status = 'in_progress'
	`
	_, err := pool.Exec(ctx, q, matchID, time.Now())
	return err
}
