package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/finance/internal/models"
)

// ExecuteTrade settles o in one transaction: the user row is locked, the
// balance or position is checked, then the ledger row and the new cash are
// written. Nothing is written when the check fails.
func (r *Repository) ExecuteTrade(ctx context.Context, o models.Order) (models.Trade, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Trade{}, fmt.Errorf("r.db.BeginTx -> %w", err)
	}
	defer tx.Rollback() // Rollback if we don't commit

	// 1. Lock the account
	var cash decimal.Decimal
	err = tx.QueryRowContext(ctx,
		"SELECT cash FROM users WHERE id = $1 FOR UPDATE",
		o.UserID,
	).Scan(&cash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trade{}, ErrUserNotFound
	}
	if err != nil {
		return models.Trade{}, fmt.Errorf("tx.QueryRowContext -> select cash -> %w", err)
	}

	// 2. Current position, only needed for sells
	var held int64
	if o.Side == models.Sell {
		err = tx.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(quantity), 0)::BIGINT FROM trades WHERE user_id = $1 AND symbol = $2",
			o.UserID, o.Symbol,
		).Scan(&held)
		if err != nil {
			return models.Trade{}, fmt.Errorf("tx.QueryRowContext -> select shares -> %w", err)
		}
	}

	newCash, err := models.Settle(o, cash, held)
	if err != nil {
		return models.Trade{}, err
	}

	// 3. Record trade
	trade := models.NewTrade(o)
	err = tx.QueryRowContext(ctx, `
        INSERT INTO trades (user_id, symbol, name, side, price, quantity, total_price)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at
    `, trade.UserID, trade.Symbol, trade.Name, string(trade.Side), trade.Price, trade.Quantity, trade.Total,
	).Scan(&trade.ID, &trade.CreatedAt)
	if err != nil {
		return models.Trade{}, fmt.Errorf("tx.QueryRowContext -> insert trade -> %w", err)
	}

	// 4. Move cash
	if _, err = tx.ExecContext(ctx,
		"UPDATE users SET cash = $1 WHERE id = $2",
		newCash, o.UserID,
	); err != nil {
		return models.Trade{}, fmt.Errorf("tx.ExecContext -> update cash -> %w", err)
	}

	if err = tx.Commit(); err != nil {
		return models.Trade{}, fmt.Errorf("tx.Commit -> %w", err)
	}

	return trade, nil
}

// Holdings returns the user's open positions, one per symbol with a
// positive share count, ordered by symbol.
func (r *Repository) Holdings(ctx context.Context, userID int64) ([]models.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT symbol, MAX(name), SUM(quantity)::BIGINT, SUM(price * quantity)
        FROM trades
        WHERE user_id = $1
        GROUP BY symbol
        HAVING SUM(quantity) > 0
        ORDER BY symbol
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("r.db.QueryContext -> select holdings -> %w", err)
	}
	defer rows.Close()

	holdings := make([]models.Holding, 0)
	for rows.Next() {
		var h models.Holding
		if err = rows.Scan(&h.Symbol, &h.Name, &h.Shares, &h.CostBasis); err != nil {
			return nil, fmt.Errorf("rows.Scan -> holding -> %w", err)
		}
		holdings = append(holdings, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err -> holdings -> %w", err)
	}

	return holdings, nil
}

// History returns every trade of the user, oldest first.
func (r *Repository) History(ctx context.Context, userID int64) ([]models.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, user_id, symbol, name, side, price, quantity, total_price, created_at
        FROM trades
        WHERE user_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("r.db.QueryContext -> select trades -> %w", err)
	}
	defer rows.Close()

	trades := make([]models.Trade, 0)
	for rows.Next() {
		var (
			t    models.Trade
			side string
		)
		err = rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Name, &side,
			&t.Price, &t.Quantity, &t.Total, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan -> trade -> %w", err)
		}
		t.Side = models.Side(side)
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err -> trades -> %w", err)
	}

	return trades, nil
}
