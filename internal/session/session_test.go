package session

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Options{Dir: dir, Key: []byte("0123456789abcdef0123456789abcdef"), MaxAge: time.Hour})
	require.NoError(t, err)
	return m, dir
}

// lastCookie returns the cookie the browser would keep after applying every Set-Cookie.
func lastCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			found = c
		}
	}
	require.NotNil(t, found, "no session cookie set")
	return found
}

func requestWith(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		r.AddCookie(c)
	}
	return r
}

func sessionFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestManager_StartAndUserID(t *testing.T) {
	m, dir := newManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, requestWith(nil), 42))
	cookie := lastCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 1, sessionFiles(t, dir))

	id, ok := m.UserID(requestWith(cookie))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestManager_NoCookie(t *testing.T) {
	m, _ := newManager(t)

	_, ok := m.UserID(requestWith(nil))
	assert.False(t, ok)
}

func TestManager_ForgedCookie(t *testing.T) {
	m, _ := newManager(t)

	_, ok := m.UserID(requestWith(&http.Cookie{Name: cookieName, Value: "not-a-real-session"}))
	assert.False(t, ok)
}

func TestManager_Clear(t *testing.T) {
	m, dir := newManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, requestWith(nil), 7))
	cookie := lastCookie(t, rec)

	rec = httptest.NewRecorder()
	require.NoError(t, m.Clear(rec, requestWith(cookie)))
	assert.Less(t, lastCookie(t, rec).MaxAge, 0)
	assert.Equal(t, 0, sessionFiles(t, dir))

	// the old cookie no longer maps to a user
	_, ok := m.UserID(requestWith(cookie))
	assert.False(t, ok)
}

func TestManager_ClearWithoutSession(t *testing.T) {
	m, _ := newManager(t)

	rec := httptest.NewRecorder()
	assert.NoError(t, m.Clear(rec, requestWith(nil)))
}

func TestManager_StartIssuesNewID(t *testing.T) {
	m, _ := newManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, requestWith(nil), 1))
	first := lastCookie(t, rec)

	rec = httptest.NewRecorder()
	require.NoError(t, m.Start(rec, requestWith(first), 2))
	second := lastCookie(t, rec)

	assert.NotEqual(t, first.Value, second.Value)
	id, ok := m.UserID(requestWith(second))
	require.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestManager_Flashes(t *testing.T) {
	m, _ := newManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, requestWith(nil), 1))
	cookie := lastCookie(t, rec)

	rec = httptest.NewRecorder()
	require.NoError(t, m.AddFlash(rec, requestWith(cookie), "Buy of 1 AAPL completed! ($150.00)"))

	rec = httptest.NewRecorder()
	msgs, err := m.Flashes(rec, requestWith(cookie))
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy of 1 AAPL completed! ($150.00)"}, msgs)

	// shown once
	rec = httptest.NewRecorder()
	msgs, err = m.Flashes(rec, requestWith(cookie))
	require.NoError(t, err)
	assert.Empty(t, msgs)

	id, ok := m.UserID(requestWith(cookie))
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestNewManager_RandomKeyAndValidation(t *testing.T) {
	_, err := NewManager(Options{Dir: t.TempDir(), MaxAge: time.Hour})
	assert.NoError(t, err)

	_, err = NewManager(Options{Dir: t.TempDir(), MaxAge: 0})
	assert.Error(t, err)
}
