// Package quote looks up current stock prices from an external provider.
package quote

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotFound means the provider does not know the symbol.
var ErrNotFound = errors.New("symbol not found")

// Quote is the current price of one share.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Source is anything that can price a symbol.
type Source interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}

// Normalize trims and upper-cases a ticker.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
