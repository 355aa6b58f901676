package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
	testhelpers "github.com/aristath/portfolio-engine/internal/testing"
)

func TestService_CreateAndUpdate(t *testing.T) {
	svc := NewService(testhelpers.NewMemoryPortfolioStore(), zerolog.Nop())
	ctx := context.Background()

	p, err := svc.Create(ctx, Input{
		Name:    "  Core ",
		Symbols: []string{" aaa", "bbb"},
		Weights: []float64{0.6, 0.405},
	})
	require.NoError(t, err)
	_, err = uuid.Parse(p.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Core", p.Name)
	assert.Equal(t, []string{"AAA", "BBB"}, p.Symbols)
	assert.Equal(t, "custom", p.Strategy)

	updated, err := svc.Update(ctx, p.ID, Input{
		Name:     "Core",
		Symbols:  []string{"AAA"},
		Weights:  []float64{1},
		Strategy: "max_sharpe",
	})
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)
	assert.Equal(t, []string{"AAA"}, updated.Symbols)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)

	_, err = svc.Update(ctx, p.ID, Input{Name: "x", Symbols: []string{"A"}, Weights: []float64{1}})
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestService_Validation(t *testing.T) {
	svc := NewService(testhelpers.NewMemoryPortfolioStore(), zerolog.Nop())

	tests := []struct {
		name string
		in   Input
	}{
		{"no name", Input{Symbols: []string{"A"}, Weights: []float64{1}}},
		{"no symbols", Input{Name: "x"}},
		{"length mismatch", Input{Name: "x", Symbols: []string{"A", "B"}, Weights: []float64{1}}},
		{"sum too low", Input{Name: "x", Symbols: []string{"A", "B"}, Weights: []float64{0.5, 0.48}}},
		{"sum too high", Input{Name: "x", Symbols: []string{"A", "B"}, Weights: []float64{0.5, 0.52}}},
		{"negative", Input{Name: "x", Symbols: []string{"A", "B"}, Weights: []float64{1.5, -0.5}}},
		{"nan", Input{Name: "x", Symbols: []string{"A"}, Weights: []float64{math.NaN()}}},
		{"duplicate", Input{Name: "x", Symbols: []string{"A", " a"}, Weights: []float64{0.5, 0.5}}},
		{"blank symbol", Input{Name: "x", Symbols: []string{" "}, Weights: []float64{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			var ve *domain.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}
