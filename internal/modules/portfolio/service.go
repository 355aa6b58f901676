package portfolio

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// WeightSumTolerance is how far stored weights may sum away from 1
const WeightSumTolerance = 0.01

// Input is the user supplied part of a portfolio
type Input struct {
	Name        string
	Description string
	Symbols     []string
	Weights     []float64
	Strategy    string
}

// Service validates and persists portfolio definitions
type Service struct {
	store domain.PortfolioStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates a portfolio service over store
func NewService(store domain.PortfolioStore, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("service", "portfolio").Logger(),
		now:   time.Now,
	}
}

// Create validates in and stores it under a new id
func (s *Service) Create(ctx context.Context, in Input) (*domain.Portfolio, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &domain.Portfolio{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Symbols:     in.Symbols,
		Weights:     in.Weights,
		Strategy:    in.Strategy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Put(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().Str("id", p.ID).Str("name", p.Name).Int("assets", len(p.Symbols)).Msg("Created portfolio")
	return p, nil
}

// Update replaces the definition of id, keeping its creation time
func (s *Service) Update(ctx context.Context, id string, in Input) (*domain.Portfolio, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err = normalizeInput(in)
	if err != nil {
		return nil, err
	}

	p := &domain.Portfolio{
		ID:          existing.ID,
		Name:        in.Name,
		Description: in.Description,
		Symbols:     in.Symbols,
		Weights:     in.Weights,
		Strategy:    in.Strategy,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.store.Put(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().Str("id", p.ID).Msg("Updated portfolio")
	return p, nil
}

// Get returns the portfolio with id
func (s *Service) Get(ctx context.Context, id string) (*domain.Portfolio, error) {
	return s.store.Get(ctx, id)
}

// List returns every stored portfolio
func (s *Service) List(ctx context.Context) ([]domain.Portfolio, error) {
	return s.store.List(ctx)
}

// Delete removes the portfolio with id
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("id", id).Msg("Deleted portfolio")
	return nil
}

func normalizeInput(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, domain.NewValidationError("name", "must not be empty")
	}
	if len(in.Symbols) == 0 {
		return in, domain.NewValidationError("symbols", "at least one symbol is required")
	}
	if len(in.Symbols) != len(in.Weights) {
		return in, domain.NewValidationError("weights", "%d weights for %d symbols", len(in.Weights), len(in.Symbols))
	}

	symbols := make([]string, len(in.Symbols))
	seen := make(map[string]bool, len(in.Symbols))
	var sum float64
	for i, raw := range in.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			return in, domain.NewValidationError("symbols", "entry %d is empty", i)
		}
		if seen[sym] {
			return in, domain.NewValidationError("symbols", "%s appears more than once", sym)
		}
		seen[sym] = true
		symbols[i] = sym

		w := in.Weights[i]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return in, domain.NewValidationError("weights", "weight of %s must be a non-negative number", sym)
		}
		sum += w
	}
	if math.Abs(sum-1) > WeightSumTolerance {
		return in, domain.NewValidationError("weights", "must sum to 1 (got %.4f)", sum)
	}

	in.Symbols = symbols
	in.Weights = append([]float64(nil), in.Weights...)
	in.Description = strings.TrimSpace(in.Description)
	if in.Strategy == "" {
		in.Strategy = "custom"
	}
	return in, nil
}
