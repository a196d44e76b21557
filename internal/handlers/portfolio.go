package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atharvakonge/finance/internal/models"
	"github.com/atharvakonge/finance/internal/quote"
)

// Index handles GET /. Holdings are valued at current prices.
func (h *Handler) Index(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	holdings, err := h.trades.Holdings(ctx, user.ID)
	if err != nil {
		h.internalError(c, err)
		return
	}

	symbols := make([]string, len(holdings))
	for i, hd := range holdings {
		symbols[i] = hd.Symbol
	}
	quotes, err := h.quotes.LookupMany(ctx, symbols)
	if err != nil {
		h.internalError(c, fmt.Errorf("price holdings -> %w", err))
		return
	}

	positions := make([]models.Position, 0, len(holdings))
	for _, hd := range holdings {
		q, ok := quotes[hd.Symbol]
		if !ok {
			h.internalError(c, fmt.Errorf("price holdings -> no quote for %s", hd.Symbol))
			return
		}
		positions = append(positions, models.NewPosition(hd, q.Price.Round(2)))
	}

	flashes, err := h.sessions.Flashes(c.Writer, c.Request)
	if err != nil {
		h.log.Warn("read flashes", zap.Error(err))
	}

	h.render(c, http.StatusOK, "index.html", "Portfolio", gin.H{
		"Portfolio": models.NewPortfolio(user.Cash, positions),
		"Flashes":   flashes,
	})
}

// History handles GET /history
func (h *Handler) History(c *gin.Context) {
	trades, err := h.trades.History(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	h.render(c, http.StatusOK, "history.html", "History", gin.H{"Trades": trades})
}

// QuoteForm handles GET /quote
func (h *Handler) QuoteForm(c *gin.Context) {
	h.render(c, http.StatusOK, "quote.html", "Quote", nil)
}

// Quote handles POST /quote
func (h *Handler) Quote(c *gin.Context) {
	symbol := quote.Normalize(c.PostForm("symbol"))
	if symbol == "" {
		h.apology(c, http.StatusForbidden, "invalid symbol")
		return
	}

	q, err := h.quotes.Lookup(c.Request.Context(), symbol)
	if err != nil {
		if !errors.Is(err, quote.ErrNotFound) {
			h.log.Warn("quote lookup failed", zap.String("symbol", symbol), zap.Error(err))
		}
		h.apology(c, http.StatusForbidden, "invalid symbol")
		return
	}

	q.Price = q.Price.Round(2)
	h.render(c, http.StatusOK, "quoted.html", "Quoted", gin.H{"Quote": q})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.trades.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
