package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atharvakonge/finance/internal/models"
	"github.com/atharvakonge/finance/internal/quote"
)

const maxQuantity = 1_000_000_000

var (
	errInvalidSymbol   = errors.New("must provide valid symbol")
	errInvalidQuantity = errors.New("must provide positive integer quantity")
)

type orderForm struct {
	Symbol   string `form:"symbol"`
	Quantity string `form:"quantity"`
}

// parseQuantity accepts whole numbers written as floats ("10", "10.0").
func parseQuantity(raw string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errInvalidQuantity
	}
	if f <= 0 || f != math.Trunc(f) || f > maxQuantity {
		return 0, errInvalidQuantity
	}
	return int64(f), nil
}

// Validate checks symbol then quantity and returns the parsed quantity.
func (f *orderForm) Validate() (int64, error) {
	f.Symbol = quote.Normalize(f.Symbol)
	if err := validation.Validate(f.Symbol, validation.Required.Error(errInvalidSymbol.Error())); err != nil {
		return 0, err
	}
	return parseQuantity(f.Quantity)
}

// BuyForm handles GET /buy
func (h *Handler) BuyForm(c *gin.Context) {
	h.render(c, http.StatusOK, "buy.html", "Buy", nil)
}

// SellForm handles GET /sell. Only symbols with shares left are offered.
func (h *Handler) SellForm(c *gin.Context) {
	holdings, err := h.trades.Holdings(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	h.render(c, http.StatusOK, "sell.html", "Sell", gin.H{"Holdings": holdings})
}

// Buy handles POST /buy
func (h *Handler) Buy(c *gin.Context) {
	h.placeOrder(c, models.Buy)
}

// Sell handles POST /sell
func (h *Handler) Sell(c *gin.Context) {
	h.placeOrder(c, models.Sell)
}

func (h *Handler) placeOrder(c *gin.Context, side models.Side) {
	user := currentUser(c)
	ctx := c.Request.Context()

	var form orderForm
	_ = c.ShouldBind(&form)

	qty, err := form.Validate()
	if err != nil {
		h.apology(c, http.StatusForbidden, err.Error())
		return
	}

	q, err := h.quotes.Lookup(ctx, form.Symbol)
	if err != nil {
		if !errors.Is(err, quote.ErrNotFound) {
			h.log.Warn("quote lookup failed", zap.String("symbol", form.Symbol), zap.Error(err))
		}
		h.apology(c, http.StatusForbidden, errInvalidSymbol.Error())
		return
	}

	trade, err := h.trader.SubmitTrade(ctx, models.Order{
		UserID:   user.ID,
		Side:     side,
		Symbol:   q.Symbol,
		Name:     q.Name,
		Price:    q.Price.Round(2),
		Quantity: qty,
	})
	switch {
	case errors.Is(err, models.ErrInsufficientFunds), errors.Is(err, models.ErrInsufficientShares):
		h.apology(c, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, models.ErrInvalidOrder):
		// a sub-cent quote rounds to zero
		h.apology(c, http.StatusForbidden, errInvalidSymbol.Error())
		return
	case err != nil:
		h.internalError(c, err)
		return
	}

	verb := "Buy"
	if side == models.Sell {
		verb = "Sell"
	}
	msg := fmt.Sprintf("%s of %d %s completed! (%s)", verb, trade.Shares(), trade.Symbol, usd(trade.Total))
	if err = h.sessions.AddFlash(c.Writer, c.Request, msg); err != nil {
		h.log.Warn("flash", zap.Error(err))
	}

	c.Redirect(http.StatusSeeOther, "/")
}
