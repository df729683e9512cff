package market

import "github.com/shopspring/decimal"

// Free delivery above the threshold (strictly greater), flat fee below.
// Amounts are KSh; decimals keep the arithmetic exact.
var (
	FreeDeliveryThreshold = decimal.NewFromInt(1000)
	StandardDeliveryFee   = decimal.NewFromInt(100)
)

type PriceQuote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

// Quote prices a cart snapshot. Order creation calls the same function over
// the same lines, so the total shown in the cart is the total charged.
func Quote(lines []CartLine) PriceQuote {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return quoteFromSubtotal(subtotal)
}

// QuoteItems re-prices a persisted order from its frozen items.
func QuoteItems(items []OrderItem) PriceQuote {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
	}
	return quoteFromSubtotal(subtotal)
}

func quoteFromSubtotal(subtotal decimal.Decimal) PriceQuote {
	fee := StandardDeliveryFee
	if subtotal.GreaterThan(FreeDeliveryThreshold) {
		fee = decimal.Zero
	}
	return PriceQuote{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       subtotal.Add(fee),
	}
}
