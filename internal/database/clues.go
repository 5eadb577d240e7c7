package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/musicquiz/internal/models"
)

// LoadClues returns the clues of the given sources and categories, ordered by the position of
// their source in sources and then by their position within the source.
func LoadClues(ctx context.Context, pool *pgxpool.Pool, sources, categories []string) ([]models.Clue, error) {
	q := `
		SELECT id, title, game, link, category, source
		FROM clues
		WHERE source = ANY($1) AND category = ANY($2)
		ORDER BY array_position($1, source), position
	`
	rows, err := pool.Query(ctx, q, sources, categories)
	if err != nil {
		return nil, fmt.Errorf("query clues: %w", err)
	}
	clues, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Clue, error) {
		var c models.Clue
		err := row.Scan(&c.ID, &c.Title, &c.Game, &c.Link, &c.Category, &c.Source)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan clues: %w", err)
	}
	return clues, nil
}

// ClueIndex lists the distinct sources and categories present in the clues table.
func ClueIndex(ctx context.Context, pool *pgxpool.Pool) (sources, categories []string, err error) {
	if err = pool.QueryRow(ctx, `SELECT COALESCE(array_agg(DISTINCT source ORDER BY source), '{}') FROM clues`).Scan(&sources); err != nil {
		return nil, nil, fmt.Errorf("query sources: %w", err)
	}
	if err = pool.QueryRow(ctx, `SELECT COALESCE(array_agg(DISTINCT category ORDER BY category), '{}') FROM clues`).Scan(&categories); err != nil {
		return nil, nil, fmt.Errorf("query categories: %w", err)
	}
	return sources, categories, nil
}

// UpsertClues writes clues in one transaction. The numeric suffix of each id is its position.
func UpsertClues(ctx context.Context, pool *pgxpool.Pool, clues []models.Clue) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO clues (id, source, position, title, game, link, category)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id)
			DO UPDATE SET title = $4, game = $5, link = $6, category = $7, position = $3
		`
		batch := &pgx.Batch{}
		for i, c := range clues {
			batch.Queue(q, c.ID, c.Source, i, c.Title, c.Game, c.Link, c.Category)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert clues: %w", err)
		}
		return nil
	})
}
