package shipping

import (
	"context"

	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/melhorenvio"
)

// RateOracle is the slice of the aggregator client the service needs.
type RateOracle interface {
	Quotes(ctx context.Context, toPostalCode string, items []melhorenvio.Item) ([]melhorenvio.Quote, error)
}

// QuoteItem is one cart line to quote.
type QuoteItem struct {
	ID       string  `json:"id" validate:"required"`
	Quantity int     `json:"quantity" validate:"required,gt=0"`
	Price    float64 `json:"price" validate:"required,gt=0"`
	WeightKg float64 `json:"weight,omitempty" validate:"omitempty,gt=0"`
}

// QuoteRequest is the payload of the shipping endpoints.
type QuoteRequest struct {
	PostalCode string      `json:"postal_code" validate:"required"`
	Items      []QuoteItem `json:"items" validate:"required,min=1,dive"`
}

type Service struct {
	oracle   RateOracle
	strategy Strategy
	log      *logger.Logger
}

func NewService(oracle RateOracle, strategy Strategy, log *logger.Logger) *Service {
	return &Service{oracle: oracle, strategy: strategy, log: log}
}

// Strategy exposes the configured selection strategy for the checkout flow.
func (s *Service) Strategy() Strategy {
	return s.strategy
}

// Calculate returns every available option for the destination.
func (s *Service) Calculate(ctx context.Context, req QuoteRequest) ([]melhorenvio.Quote, error) {
	return s.oracle.Quotes(ctx, req.PostalCode, toOracleItems(req.Items))
}

// Cheapest returns the lowest-priced option across all carriers.
func (s *Service) Cheapest(ctx context.Context, req QuoteRequest) (*melhorenvio.Quote, error) {
	return s.pick(ctx, req, Cheapest{})
}

// MostExpensive returns the highest-priced option, honoring the carrier
// preference when one is configured.
func (s *Service) MostExpensive(ctx context.Context, req QuoteRequest) (*melhorenvio.Quote, error) {
	if pref, ok := s.strategy.(CarrierPreference); ok {
		return s.pick(ctx, req, CarrierPreference{CarrierID: pref.CarrierID, MostExpensive: true})
	}
	return s.pick(ctx, req, mostExpensiveOverall{})
}

type mostExpensiveOverall struct{}

func (mostExpensiveOverall) Name() string { return "most-expensive" }

func (mostExpensiveOverall) Pick(quotes []melhorenvio.Quote) (melhorenvio.Quote, bool) {
	return pickByPrice(quotes, true)
}

// Selected applies the configured strategy, for checkout's shipping cost.
func (s *Service) Selected(ctx context.Context, req QuoteRequest) (*melhorenvio.Quote, error) {
	return s.pick(ctx, req, s.strategy)
}

func (s *Service) pick(ctx context.Context, req QuoteRequest, strategy Strategy) (*melhorenvio.Quote, error) {
	quotes, err := s.oracle.Quotes(ctx, req.PostalCode, toOracleItems(req.Items))
	if err != nil {
		return nil, err
	}
	quote, ok := strategy.Pick(quotes)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no shipping option available for this destination")
	}
	ctx = s.log.WithFields(ctx, map[string]any{
		"strategy": strategy.Name(),
		"carrier":  quote.Company.Name,
		"price":    quote.Price,
	})
	s.log.Info(ctx, "shipping option selected")
	return &quote, nil
}

func toOracleItems(items []QuoteItem) []melhorenvio.Item {
	out := make([]melhorenvio.Item, 0, len(items))
	for _, item := range items {
		out = append(out, melhorenvio.Item{
			ID:       item.ID,
			Quantity: item.Quantity,
			Price:    item.Price,
			WeightKg: item.WeightKg,
		})
	}
	return out
}
