package checkout

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// UnitWithFee returns the buyer-facing unit price with the marketplace
// fee baked in, rounded to 2 places. This is the authoritative price
// charged to the payment provider; the fee never applies to free
// tickets.
func UnitWithFee(unitPrice, feePercent decimal.Decimal) decimal.Decimal {
	if unitPrice.IsZero() {
		return decimal.Zero
	}
	multiplier := decimal.NewFromInt(1).Add(feePercent.Div(hundred))
	return unitPrice.Mul(multiplier).Round(2)
}

// LineTotal returns the total for quantity units of a ticket type at the
// fee-inflated unit price.
func LineTotal(unitPrice decimal.Decimal, quantity int, feePercent decimal.Decimal) decimal.Decimal {
	return UnitWithFee(unitPrice, feePercent).Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// OrderTotal sums fee-inflated line totals.
func OrderTotal(lines []Line, feePercent decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l.UnitPrice, l.Quantity, feePercent))
	}
	return total
}

// ServiceFeeAmount returns the fee portion of a pre-fee subtotal,
// rounded to 2 places. Display only; the charge itself always comes from
// the fee-inflated unit prices.
func ServiceFeeAmount(subtotal, feePercent decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() {
		return decimal.Zero
	}
	return subtotal.Mul(feePercent).Div(hundred).Round(2)
}

// Line is one cart entry priced at the organizer's base unit price.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}
