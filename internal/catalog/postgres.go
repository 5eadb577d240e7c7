package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/musicquiz/internal/database"
	"github.com/jason-s-yu/musicquiz/internal/models"
)

// PostgresCatalog serves clues from the clues table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) Load(ctx context.Context, sources, categories []string) ([]models.Clue, error) {
	return database.LoadClues(ctx, c.pool, sources, categories)
}

func (c *PostgresCatalog) Index(ctx context.Context) (Index, error) {
	sources, categories, err := database.ClueIndex(ctx, c.pool)
	if err != nil {
		return Index{}, err
	}
	return Index{Sources: sources, Categories: categories}, nil
}
