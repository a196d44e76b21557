package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds  = errors.New("not enough money")
	ErrInsufficientShares = errors.New("not enough shares")
	ErrInvalidOrder       = errors.New("invalid order")
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Signed returns qty with the ledger sign for s: positive for buys,
// negative for sells.
func (s Side) Signed(qty int64) int64 {
	if s == Sell {
		return -qty
	}
	return qty
}

// User represents a user in the system
type User struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Hash      string          `json:"-"`
	Cash      decimal.Decimal `json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
}

// Trade is one row of the append-only ledger. Price is always positive;
// Quantity carries the sign (negative for sells).
type Trade struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

// Shares is the unsigned number of shares moved by the trade.
func (t Trade) Shares() int64 {
	if t.Quantity < 0 {
		return -t.Quantity
	}
	return t.Quantity
}

// Holding is the derived position of one user in one symbol.
type Holding struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Shares    int64           `json:"shares"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// Order is a validated request to trade, priced at the quote taken when the
// request arrived.
type Order struct {
	UserID   int64
	Side     Side
	Symbol   string
	Name     string
	Price    decimal.Decimal
	Quantity int64
}

// Total is price times quantity.
func (o Order) Total() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// Validate checks the order shape, not the account.
func (o Order) Validate() error {
	switch {
	case !o.Side.Valid():
		return ErrInvalidOrder
	case o.Symbol == "":
		return ErrInvalidOrder
	case o.Quantity <= 0:
		return ErrInvalidOrder
	case !o.Price.IsPositive():
		return ErrInvalidOrder
	}
	return nil
}

// Settle applies o to an account holding cash and held shares of o.Symbol
// and returns the new cash balance. Buys may not overdraw cash; sells may
// not exceed held shares.
func Settle(o Order, cash decimal.Decimal, held int64) (decimal.Decimal, error) {
	if err := o.Validate(); err != nil {
		return cash, err
	}

	total := o.Total()
	if o.Side == Buy {
		if cash.LessThan(total) {
			return cash, ErrInsufficientFunds
		}
		return cash.Sub(total), nil
	}

	if held < o.Quantity {
		return cash, ErrInsufficientShares
	}
	return cash.Add(total), nil
}

// NewTrade builds the ledger row for a settled order.
func NewTrade(o Order) Trade {
	return Trade{
		UserID:   o.UserID,
		Symbol:   o.Symbol,
		Name:     o.Name,
		Side:     o.Side,
		Price:    o.Price,
		Quantity: o.Side.Signed(o.Quantity),
		Total:    o.Total(),
	}
}

// Position is a holding valued at the current market price.
type Position struct {
	Holding
	Price decimal.Decimal `json:"price"`
	Value decimal.Decimal `json:"value"`
}

// NewPosition values h at price.
func NewPosition(h Holding, price decimal.Decimal) Position {
	return Position{
		Holding: h,
		Price:   price,
		Value:   price.Mul(decimal.NewFromInt(h.Shares)),
	}
}

// Portfolio is what the index page shows.
type Portfolio struct {
	Positions     []Position      `json:"positions"`
	Cash          decimal.Decimal `json:"cash"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	Total         decimal.Decimal `json:"total"`
}

// NewPortfolio sums positions. Total is cash plus market value.
func NewPortfolio(cash decimal.Decimal, positions []Position) Portfolio {
	p := Portfolio{
		Positions:     positions,
		Cash:          cash,
		HoldingsValue: decimal.Zero,
		CostBasis:     decimal.Zero,
	}
	for _, pos := range positions {
		p.HoldingsValue = p.HoldingsValue.Add(pos.Value)
		p.CostBasis = p.CostBasis.Add(pos.CostBasis)
	}
	p.Total = cash.Add(p.HoldingsValue)

	return p
}
