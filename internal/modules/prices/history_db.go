// Package prices serves daily closes to the analytics pipeline.
package prices

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/domain"
)

// HistoryDB reads and writes daily closes in the history database.
// It implements domain.PriceSeriesProvider.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// SymbolCoverage describes the stored history of one symbol
type SymbolCoverage struct {
	Symbol string `json:"symbol"`
	First  string `json:"first"`
	Last   string `json:"last"`
	Count  int    `json:"count"`
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// GetPrices returns the closes of symbol between start and end inclusive,
// ordered by date. A zero start or end leaves that side open.
func (h *HistoryDB) GetPrices(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error) {
	symbol = normalize(symbol)
	from := int64(math.MinInt64)
	to := int64(math.MaxInt64)
	if !start.IsZero() {
		from = dayUnix(start)
	}
	if !end.IsZero() {
		to = dayUnix(end)
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT date, close
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, from, to)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	series := domain.PriceSeries{Symbol: symbol}
	for rows.Next() {
		var dateUnix int64
		var p domain.PricePoint
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return domain.PriceSeries{}, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return domain.PriceSeries{}, fmt.Errorf("error iterating daily prices: %w", err)
	}

	if len(series.Points) == 0 {
		return domain.PriceSeries{}, &domain.DataUnavailableError{Symbol: symbol}
	}
	return series, nil
}

// UpsertPrices inserts or replaces closes for symbol in one transaction
func (h *HistoryDB) UpsertPrices(ctx context.Context, symbol string, points []domain.PricePoint) (int, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return 0, domain.NewValidationError("symbol", "must not be empty")
	}
	for _, p := range points {
		if p.Date.IsZero() {
			return 0, domain.NewValidationError("date", "missing date for %s", symbol)
		}
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			return 0, domain.NewValidationError("close", "%s on %s must be a positive number", symbol, domain.FormatDate(p.Date))
		}
	}

	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (symbol, date, close, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				close = excluded.close,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, symbol, dayUnix(p.Date), p.Close, now); err != nil {
				return fmt.Errorf("failed to upsert daily price for %s: %w", domain.FormatDate(p.Date), err)
			}
		}
		return bumpRevision(ctx, tx, symbol)
	})
	if err != nil {
		return 0, err
	}

	h.log.Info().
		Str("symbol", symbol).
		Int("count", len(points)).
		Msg("Upserted daily prices")

	return len(points), nil
}

// DeletePrices removes the whole history of symbol
func (h *HistoryDB) DeletePrices(ctx context.Context, symbol string) (int64, error) {
	symbol = normalize(symbol)
	var n int64
	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM daily_prices WHERE symbol = ?", symbol)
		if err != nil {
			return fmt.Errorf("failed to delete daily prices: %w", err)
		}
		n, _ = res.RowsAffected()
		return bumpRevision(ctx, tx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Revision returns a counter that grows with every write to the history
// of symbol. A symbol never written has revision 0.
func (h *HistoryDB) Revision(ctx context.Context, symbol string) (int64, error) {
	var rev int64
	err := h.db.QueryRowContext(ctx,
		"SELECT revision FROM price_revisions WHERE symbol = ?", normalize(symbol),
	).Scan(&rev)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read price revision: %w", err)
	}
	return rev, nil
}

func bumpRevision(ctx context.Context, tx *sql.Tx, symbol string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO price_revisions (symbol, revision) VALUES (?, 1)
		ON CONFLICT(symbol) DO UPDATE SET revision = revision + 1
	`, symbol)
	if err != nil {
		return fmt.Errorf("failed to bump price revision: %w", err)
	}
	return nil
}

// Coverage lists every stored symbol with its date range
func (h *HistoryDB) Coverage(ctx context.Context) ([]SymbolCoverage, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT symbol, MIN(date), MAX(date), COUNT(*)
		FROM daily_prices
		GROUP BY symbol
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage: %w", err)
	}
	defer rows.Close()

	var out []SymbolCoverage
	for rows.Next() {
		var c SymbolCoverage
		var first, last int64
		if err := rows.Scan(&c.Symbol, &first, &last, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan coverage: %w", err)
		}
		c.First = domain.FormatDate(time.Unix(first, 0).UTC())
		c.Last = domain.FormatDate(time.Unix(last, 0).UTC())
		out = append(out, c)
	}
	return out, rows.Err()
}

// dayUnix truncates t to its UTC calendar day
func dayUnix(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
