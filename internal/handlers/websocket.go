package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceUpdate is one message on /ws/prices.
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"` // percent since the previous tick
	Timestamp time.Time `json:"timestamp"`
}

const writeWait = 10 * time.Second

// Same-origin only: the stream is authorized by the session cookie.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// PriceStream handles GET /ws/prices. It pushes the current price of every
// holding each tick until the client leaves or the server shuts down.
func (h *Handler) PriceStream(c *gin.Context) {
	user := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close() //nolint:errcheck

	// The client never sends anything; reading only notices when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prev := make(map[string]decimal.Decimal)
	send := func() error {
		holdings, err := h.trades.Holdings(ctx, user.ID)
		if err != nil {
			h.log.Warn("price stream holdings", zap.Int64("user_id", user.ID), zap.Error(err))
			return nil
		}
		symbols := make([]string, len(holdings))
		for i, hd := range holdings {
			symbols[i] = hd.Symbol
		}
		quotes, err := h.quotes.LookupMany(ctx, symbols)
		if err != nil {
			h.log.Warn("price stream quotes", zap.Int64("user_id", user.ID), zap.Error(err))
			return nil
		}

		now := time.Now().UTC()
		for _, sym := range symbols {
			q, ok := quotes[sym]
			if !ok {
				h.log.Warn("price stream quotes", zap.Int64("user_id", user.ID), zap.String("missing", sym))
				return nil
			}
			update := PriceUpdate{
				Symbol:    q.Symbol,
				Name:      q.Name,
				Price:     q.Price.Round(2).InexactFloat64(),
				Timestamp: now,
			}
			if last, ok := prev[sym]; ok && last.IsPositive() {
				update.Change = q.Price.Sub(last).Div(last).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
			}
			prev[sym] = q.Price

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(update); err != nil {
				return err
			}
		}
		return nil
	}

	if err = send(); err != nil {
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-h.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if err = send(); err != nil {
				h.log.Debug("price stream closed", zap.Int64("user_id", user.ID), zap.Error(err))
				return
			}
		}
	}
}
