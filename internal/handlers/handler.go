package handlers

import (
	"context"
	"embed"
	"html/template"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atharvakonge/finance/internal/models"
	"github.com/atharvakonge/finance/internal/quote"
	"github.com/atharvakonge/finance/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").
	Funcs(template.FuncMap{"usd": usd}).
	ParseFS(templateFS, "templates/*.html"))

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, hash string, cash decimal.Decimal) (models.User, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
	FindUserByID(ctx context.Context, id int64) (models.User, error)
}

// TradeStore reads the trade ledger.
type TradeStore interface {
	Holdings(ctx context.Context, userID int64) ([]models.Holding, error)
	History(ctx context.Context, userID int64) ([]models.Trade, error)
	Ping(ctx context.Context) error
}

// QuoteService prices symbols.
type QuoteService interface {
	Lookup(ctx context.Context, symbol string) (quote.Quote, error)
	LookupMany(ctx context.Context, symbols []string) (map[string]quote.Quote, error)
}

// Trader executes orders.
type Trader interface {
	SubmitTrade(ctx context.Context, o models.Order) (models.Trade, error)
}

// Options carries everything the handlers need. Nothing is read from the
// environment after startup.
type Options struct {
	Users          UserStore
	Trades         TradeStore
	Quotes         QuoteService
	Trader         Trader
	Sessions       *session.Manager
	Log            *zap.Logger
	StartingCash   decimal.Decimal
	StreamInterval time.Duration
	BcryptCost     int // zero means bcrypt.DefaultCost
}

// Handler serves every page of the app.
type Handler struct {
	users          UserStore
	trades         TradeStore
	quotes         QuoteService
	trader         Trader
	sessions       *session.Manager
	log            *zap.Logger
	startingCash   decimal.Decimal
	streamInterval time.Duration
	bcryptCost     int

	dummyOnce sync.Once
	dummyHash []byte

	quit     chan struct{}
	quitOnce sync.Once
}

// New builds a Handler, filling defaults for the optional fields.
func New(opts Options) *Handler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 5 * time.Second
	}
	return &Handler{
		users:          opts.Users,
		trades:         opts.Trades,
		quotes:         opts.Quotes,
		trader:         opts.Trader,
		sessions:       opts.Sessions,
		log:            opts.Log,
		startingCash:   opts.StartingCash,
		streamInterval: opts.StreamInterval,
		bcryptCost:     opts.BcryptCost,
		quit:           make(chan struct{}),
	}
}

// Close ends open price streams. Hijacked websocket connections are not
// tracked by http.Server.Shutdown.
func (h *Handler) Close() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// render adds the fields every page's layout reads.
func (h *Handler) render(c *gin.Context, code int, name, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = title
	_, data["LoggedIn"] = c.Get(userKey)
	c.HTML(code, name, data)
}
