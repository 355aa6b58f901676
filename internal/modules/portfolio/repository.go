// Package portfolio manages persisted portfolio definitions.
package portfolio

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Repository stores portfolios in the portfolios sqlite database.
// It implements domain.PortfolioStore.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

const portfolioColumns = "id, name, description, symbols, weights, strategy, created_at, updated_at"

// Get returns the portfolio with id, or domain.ErrPortfolioNotFound
func (r *Repository) Get(ctx context.Context, id string) (*domain.Portfolio, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}
	return p, nil
}

// Put inserts or replaces p
func (r *Repository) Put(ctx context.Context, p *domain.Portfolio) error {
	symbols, err := json.Marshal(p.Symbols)
	if err != nil {
		return fmt.Errorf("failed to marshal symbols: %w", err)
	}
	weights, err := json.Marshal(p.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, name, description, symbols, weights, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			symbols = excluded.symbols,
			weights = excluded.weights,
			strategy = excluded.strategy,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.Description, string(symbols), string(weights), p.Strategy,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store portfolio %s: %w", p.ID, err)
	}

	r.log.Debug().Str("id", p.ID).Msg("Stored portfolio")
	return nil
}

// Delete removes the portfolio with id, or returns domain.ErrPortfolioNotFound
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPortfolioNotFound
	}
	return nil
}

// List returns every portfolio ordered by name
func (r *Repository) List(ctx context.Context) ([]domain.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var out []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(s scanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var symbols, weights string
	var createdAt, updatedAt int64

	if err := s.Scan(&p.ID, &p.Name, &p.Description, &symbols, &weights, &p.Strategy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(symbols), &p.Symbols); err != nil {
		return nil, fmt.Errorf("corrupt symbols for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(weights), &p.Weights); err != nil {
		return nil, fmt.Errorf("corrupt weights for %s: %w", p.ID, err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &p, nil
}
