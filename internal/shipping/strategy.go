// Package shipping selects a shipping option from aggregator quotes and
// exposes the quote operations behind the store's shipping endpoints.
package shipping

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/adega-digital/vinicola-backend/pkg/config"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/melhorenvio"
)

// Strategy picks one option from a non-empty list of quotes.
type Strategy interface {
	Name() string
	Pick(quotes []melhorenvio.Quote) (melhorenvio.Quote, bool)
}

// StrategyFromConfig resolves the configured strategy.
func StrategyFromConfig(cfg config.ShippingConfig) (Strategy, error) {
	switch cfg.Strategy {
	case config.ShippingStrategyCheapest:
		return Cheapest{}, nil
	case config.ShippingStrategyCarrierCheapest:
		return CarrierPreference{CarrierID: cfg.CarrierID, MostExpensive: false}, nil
	case config.ShippingStrategyCarrierMostExpensive:
		return CarrierPreference{CarrierID: cfg.CarrierID, MostExpensive: true}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown shipping strategy %q", cfg.Strategy))
	}
}

// Cheapest takes the lowest-priced option across all carriers.
type Cheapest struct{}

func (Cheapest) Name() string { return config.ShippingStrategyCheapest }

func (Cheapest) Pick(quotes []melhorenvio.Quote) (melhorenvio.Quote, bool) {
	return pickByPrice(quotes, false)
}

// CarrierPreference restricts the choice to one carrier, falling back to the
// full list when that carrier has no available option for the route.
type CarrierPreference struct {
	CarrierID     int64
	MostExpensive bool
}

func (s CarrierPreference) Name() string {
	if s.MostExpensive {
		return config.ShippingStrategyCarrierMostExpensive
	}
	return config.ShippingStrategyCarrierCheapest
}

func (s CarrierPreference) Pick(quotes []melhorenvio.Quote) (melhorenvio.Quote, bool) {
	preferred := make([]melhorenvio.Quote, 0, len(quotes))
	for _, quote := range quotes {
		if quote.Company.ID == s.CarrierID {
			preferred = append(preferred, quote)
		}
	}
	if len(preferred) > 0 {
		if quote, ok := pickByPrice(preferred, s.MostExpensive); ok {
			return quote, ok
		}
	}
	return pickByPrice(quotes, s.MostExpensive)
}

// pickByPrice considers only quotes with a parseable price, so a bad price
// in any position can never win or block the comparison.
func pickByPrice(quotes []melhorenvio.Quote, highest bool) (melhorenvio.Quote, bool) {
	var best melhorenvio.Quote
	var bestPrice decimal.Decimal
	found := false
	for _, quote := range quotes {
		price, ok := parsePrice(quote.Price)
		if !ok {
			continue
		}
		if !found || (highest && price.GreaterThan(bestPrice)) || (!highest && price.LessThan(bestPrice)) {
			best = quote
			bestPrice = price
			found = true
		}
	}
	return best, found
}

func parsePrice(raw string) (decimal.Decimal, bool) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}
