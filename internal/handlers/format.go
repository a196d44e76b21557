package handlers

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// usd formats an amount as dollars: $1,234.50, -$12.00.
func usd(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	cents := fixed[len(fixed)-3:]
	return sign + "$" + humanize.BigComma(d.Truncate(0).BigInt()) + cents
}
