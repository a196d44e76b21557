package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atharvakonge/finance/internal/models"
	"github.com/atharvakonge/finance/internal/quote"
	"github.com/atharvakonge/finance/internal/repository"
	"github.com/atharvakonge/finance/internal/session"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memStore is an in-memory users/trades store. ExecuteTrade settles with the
// same rules as the SQL repository.
type memStore struct {
	mu        sync.Mutex
	users     map[int64]models.User
	trades    []models.Trade
	nextUser  int64
	nextTrade int64
	clock     time.Time
	pingErr   error
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[int64]models.User),
		clock: time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) CreateUser(_ context.Context, username, hash string, cash decimal.Decimal) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return models.User{}, s.createErr
	}
	for _, u := range s.users {
		if u.Username == username {
			return models.User{}, repository.ErrUsernameTaken
		}
	}
	s.nextUser++
	u := models.User{ID: s.nextUser, Username: username, Hash: hash, Cash: cash, CreatedAt: s.clock}
	s.users[u.ID] = u
	return u, nil
}

func (s *memStore) FindUserByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memStore) FindUserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) ExecuteTrade(_ context.Context, o models.Order) (models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[o.UserID]
	if !ok {
		return models.Trade{}, repository.ErrUserNotFound
	}
	var held int64
	for _, t := range s.trades {
		if t.UserID == o.UserID && t.Symbol == o.Symbol {
			held += t.Quantity
		}
	}
	cash, err := models.Settle(o, u.Cash, held)
	if err != nil {
		return models.Trade{}, err
	}

	s.nextTrade++
	s.clock = s.clock.Add(time.Second)
	t := models.NewTrade(o)
	t.ID = s.nextTrade
	t.CreatedAt = s.clock
	s.trades = append(s.trades, t)

	u.Cash = cash
	s.users[u.ID] = u
	return t, nil
}

func (s *memStore) Holdings(_ context.Context, userID int64) ([]models.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySymbol := make(map[string]*models.Holding)
	for _, t := range s.trades {
		if t.UserID != userID {
			continue
		}
		h := bySymbol[t.Symbol]
		if h == nil {
			h = &models.Holding{Symbol: t.Symbol, Name: t.Name, CostBasis: decimal.Zero}
			bySymbol[t.Symbol] = h
		}
		h.Shares += t.Quantity
		h.CostBasis = h.CostBasis.Add(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
	}

	holdings := make([]models.Holding, 0, len(bySymbol))
	for _, h := range bySymbol {
		if h.Shares > 0 {
			holdings = append(holdings, *h)
		}
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

func (s *memStore) History(_ context.Context, userID int64) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades := make([]models.Trade, 0)
	for _, t := range s.trades {
		if t.UserID == userID {
			trades = append(trades, t)
		}
	}
	return trades, nil
}

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *memStore) cash(t *testing.T, username string) decimal.Decimal {
	t.Helper()
	u, err := s.FindUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return u.Cash
}

func (s *memStore) tradesOf(t *testing.T, username string) []models.Trade {
	t.Helper()
	u, err := s.FindUserByUsername(context.Background(), username)
	require.NoError(t, err)
	trades, _ := s.History(context.Background(), u.ID)
	return trades
}

func (s *memStore) failCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

func (s *memStore) failPing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *memStore) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

// fakeQuotes prices symbols from a map. Missing symbols are not found.
type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[string]quote.Quote
	errs   map[string]error
	calls  int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		quotes: map[string]quote.Quote{
			"AAPL":  {Symbol: "AAPL", Name: "Apple Inc.", Price: dec("150.25")},
			"MSFT":  {Symbol: "MSFT", Name: "Microsoft Corporation", Price: dec("380.00")},
			"PENNY": {Symbol: "PENNY", Name: "Penny Co", Price: dec("0.004")},
		},
		errs: make(map[string]error),
	}
}

func (f *fakeQuotes) setPrice(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quotes[symbol]
	q.Price = dec(price)
	f.quotes[symbol] = q
}

func (f *fakeQuotes) setErr(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

// reportAs makes the provider answer for symbol under another name.
func (f *fakeQuotes) reportAs(symbol, other string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quotes[symbol]
	q.Symbol = other
	f.quotes[symbol] = q
}

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeQuotes) Lookup(_ context.Context, symbol string) (quote.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	symbol = quote.Normalize(symbol)
	if err := f.errs[symbol]; err != nil {
		return quote.Quote{}, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return quote.Quote{}, quote.ErrNotFound
	}
	return q, nil
}

func (f *fakeQuotes) LookupMany(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	out := make(map[string]quote.Quote, len(symbols))
	for _, s := range symbols {
		q, err := f.Lookup(ctx, s)
		if err != nil {
			return nil, err
		}
		out[q.Symbol] = q
	}
	return out, nil
}

type testEnv struct {
	h      *Handler
	srv    *httptest.Server
	store  *memStore
	quotes *fakeQuotes
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLog(t, zap.NewNop())
}

func newTestEnvWithLog(t *testing.T, log *zap.Logger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	quotes := newFakeQuotes()

	sessions, err := session.NewManager(session.Options{
		Dir:    t.TempDir(),
		Key:    []byte("0123456789abcdef0123456789abcdef"),
		MaxAge: time.Hour,
	})
	require.NoError(t, err)

	proc := NewTradeProcessor(store, 2, log)
	proc.Start()
	t.Cleanup(proc.Stop)

	h := New(Options{
		Users:          store,
		Trades:         store,
		Quotes:         quotes,
		Trader:         proc,
		Sessions:       sessions,
		Log:            log,
		StartingCash:   dec("10000.00"),
		StreamInterval: 20 * time.Millisecond,
		BcryptCost:     bcrypt.MinCost,
	})

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)

	return &testEnv{h: h, srv: srv, store: store, quotes: quotes}
}

// browser is one cookie jar; redirects are not followed so tests see them.
type browser struct {
	env    *testEnv
	client *http.Client
}

func (e *testEnv) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		env: e,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type page struct {
	code     int
	body     string
	header   http.Header
	location string
}

func (b *browser) do(t *testing.T, req *http.Request) page {
	t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return page{
		code:     resp.StatusCode,
		body:     string(body),
		header:   resp.Header,
		location: resp.Header.Get("Location"),
	}
}

func (b *browser) get(t *testing.T, path string) page {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.env.srv.URL+path, nil)
	require.NoError(t, err)
	return b.do(t, req)
}

func (b *browser) post(t *testing.T, path string, form url.Values) page {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.env.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(t, req)
}

// signedUp returns a browser logged in as a freshly registered user.
func (e *testEnv) signedUp(t *testing.T, username string) *browser {
	t.Helper()
	b := e.browser(t)
	p := b.post(t, "/register", url.Values{"username": {username}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, p.code, p.body)
	require.Equal(t, "/", p.location)
	return b
}

func order(symbol, quantity string) url.Values {
	return url.Values{"symbol": {symbol}, "quantity": {quantity}}
}
