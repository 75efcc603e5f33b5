package checkout

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/adega-digital/vinicola-backend/pkg/mercadopago"
)

// pricedLine is a cart line after catalog resolution: canonical unit price,
// display name and the physical attributes used for parcel manifests.
type pricedLine struct {
	productID int64
	variantID int64
	title     string
	quantity  int
	unitPrice decimal.Decimal
	weightKg  float64
	widthCm   float64
	heightCm  float64
	lengthCm  float64
}

// Monetary values are rounded half-up to cents at every arithmetic step so
// the distributed line items always sum to the computed total exactly.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func (l pricedLine) lineTotal() decimal.Decimal {
	return round2(l.unitPrice.Mul(decimal.NewFromInt(int64(l.quantity))))
}

func subtotalOf(lines []pricedLine) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.lineTotal())
	}
	return round2(sum)
}

// distributeDiscount spreads the discount proportionally over the line unit
// prices so no line goes negative. The rounding residual is folded into a
// line whose quantity divides it to whole cents, keeping
// Σ(unit × qty) == subtotal − discount to the cent.
func distributeDiscount(lines []pricedLine, discount decimal.Decimal) []decimal.Decimal {
	units := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		units[i] = line.unitPrice
	}

	subtotal := subtotalOf(lines)
	if discount.LessThanOrEqual(decimal.Zero) || subtotal.LessThanOrEqual(decimal.Zero) {
		return units
	}

	for i, line := range lines {
		quantity := decimal.NewFromInt(int64(line.quantity))
		share := round2(discount.Mul(line.lineTotal()).Div(subtotal))
		perUnit := round2(share.Div(quantity))
		adjusted := round2(line.unitPrice.Sub(perUnit))
		if adjusted.IsNegative() {
			adjusted = decimal.Zero
		}
		units[i] = adjusted
	}

	expected := round2(subtotal.Sub(discount))
	adjustedTotal := decimal.Zero
	for i, line := range lines {
		adjustedTotal = adjustedTotal.Add(round2(units[i].Mul(decimal.NewFromInt(int64(line.quantity)))))
	}
	diff := round2(expected.Sub(adjustedTotal))
	if !diff.IsZero() {
		// A per-unit correction only lands exactly when the line
		// quantity divides the residual cents; quantity-1 lines always
		// qualify.
		target := 0
		cents := diff.Mul(decimal.NewFromInt(100))
		for i, line := range lines {
			if cents.Mod(decimal.NewFromInt(int64(line.quantity))).IsZero() {
				target = i
				break
			}
		}
		qty := decimal.NewFromInt(int64(lines[target].quantity))
		corrected := round2(units[target].Add(diff.Div(qty)))
		if corrected.IsNegative() {
			corrected = decimal.Zero
		}
		units[target] = corrected
	}
	return units
}

// paymentItems mirrors the cart at post-discount prices, plus one shipping
// line when the shipping cost is non-zero.
func paymentItems(lines []pricedLine, discount, shippingCost decimal.Decimal) []mercadopago.Item {
	units := distributeDiscount(lines, discount)

	items := make([]mercadopago.Item, 0, len(lines)+1)
	for i, line := range lines {
		items = append(items, mercadopago.Item{
			ID:         strconv.FormatInt(line.productID, 10),
			Title:      line.title,
			Quantity:   line.quantity,
			UnitPrice:  units[i].InexactFloat64(),
			CurrencyID: "BRL",
		})
	}
	if shippingCost.GreaterThan(decimal.Zero) {
		items = append(items, mercadopago.Item{
			ID:         "shipping",
			Title:      "Frete",
			Quantity:   1,
			UnitPrice:  round2(shippingCost).InexactFloat64(),
			CurrencyID: "BRL",
		})
	}
	return items
}

func parseDimension(raw string) float64 {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return 0
	}
	return value
}
