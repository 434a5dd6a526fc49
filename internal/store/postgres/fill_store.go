package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Create persists a fill event. The post-fill balances are stored as JSONB.
func (s *FillStore) Create(ctx context.Context, fill domain.FillEvent) error {
	balancesJSON, err := json.Marshal(fill.Balances)
	if err != nil {
		return fmt.Errorf("postgres: marshal fill balances: %w", err)
	}

	const query = `
		INSERT INTO fills (order_id, token_id, side, price, size, balances, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, query,
		fill.OrderID, string(fill.Token), string(fill.Side),
		fill.Price, fill.Size, balancesJSON, fill.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: create fill %s: %w", fill.OrderID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
