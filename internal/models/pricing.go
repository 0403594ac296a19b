package models

import (
	"github.com/shopspring/decimal"
)

// PricingRules are the checkout constants used by ComputeSummary.
type PricingRules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRate               decimal.Decimal
}

func DefaultPricingRules() PricingRules {
	return PricingRules{
		FreeShippingThreshold: decimal.NewFromInt(500),
		FlatShippingFee:       decimal.NewFromInt(50),
		TaxRate:               decimal.RequireFromString("0.18"),
	}
}

// PricedLine is one cart line as seen at checkout.
type PricedLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l PricedLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

// ComputeSummary prices a checkout. Shipping is waived only when the
// subtotal strictly exceeds the threshold. Product discounts are display
// only and never reduce the order total.
func ComputeSummary(lines []PricedLine, rules PricingRules) OrderSummary {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}

	shipping := rules.FlatShippingFee
	if subtotal.GreaterThan(rules.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := subtotal.Mul(rules.TaxRate).Round(2)

	return OrderSummary{
		Subtotal:     subtotal,
		ShippingCost: shipping.Round(2),
		Tax:          tax,
		Discount:     decimal.Zero,
		TotalAmount:  subtotal.Add(shipping).Add(tax).Round(2),
	}
}
