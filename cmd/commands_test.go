package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/habedi/rebaton/pkg/clierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRebaton is a minimal RebatOn backend for command tests.
type fakeRebaton struct {
	server       *httptest.Server
	tokenExpired atomic.Bool
	logoutCalls  atomic.Int32

	mu    sync.Mutex
	goals []map[string]any
}

func newFakeRebaton(t *testing.T) *fakeRebaton {
	t.Helper()
	f := &fakeRebaton{}
	mux := http.NewServeMux()

	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		if f.tokenExpired.Load() {
			reply(w, http.StatusUnauthorized, map[string]string{"code": "TOKEN_EXPIRED", "message": "token expired"})
			return false
		}
		if r.Header.Get("Authorization") != "Bearer access-1" {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return false
		}
		return true
	}

	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "user@example.com" || body["password"] != "secret-pass" {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
			return
		}
		reply(w, http.StatusOK, map[string]string{"access_token": "access-1", "refresh_token": "refresh-1"})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if authorized(w, r) {
			reply(w, http.StatusOK, map[string]string{"id": "u1", "email": "user@example.com", "name": "Test User"})
		}
	})
	mux.HandleFunc("GET /api/v1/public-deals", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []map[string]any{{"id": "p1", "title": "Public Headphones", "store": "Acme", "price": 40, "original_price": 80}})
	})
	mux.HandleFunc("GET /api/v1/deals", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		pages := map[string][]map[string]any{
			"1": {{"id": "d1", "title": "Noise Cancelling Headphones", "price": 99}, {"id": "d2", "title": "Coffee Grinder", "price": 30}},
			"2": {{"id": "d3", "title": "Desk Lamp", "price": "$15.50", "discount": "20%"}},
		}
		deals := pages[r.URL.Query().Get("page")]
		if deals == nil {
			deals = []map[string]any{}
		}
		reply(w, http.StatusOK, map[string]any{"deals": deals})
	})
	mux.HandleFunc("GET /api/v1/wallet", func(w http.ResponseWriter, r *http.Request) {
		if authorized(w, r) {
			reply(w, http.StatusOK, map[string]any{"balance": 12.5, "currency": "USD", "tokens": 300})
		}
	})
	mux.HandleFunc("GET /api/v1/goals", func(w http.ResponseWriter, r *http.Request) {
		if authorized(w, r) {
			f.mu.Lock()
			defer f.mu.Unlock()
			reply(w, http.StatusOK, map[string]any{"goals": f.goals})
		}
	})
	mux.HandleFunc("POST /api/v1/goals", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		var goal map[string]any
		_ = json.NewDecoder(r.Body).Decode(&goal)
		f.mu.Lock()
		goal["id"] = "g" + string(rune('1'+len(f.goals)))
		goal["current_amount"] = 0
		f.goals = append(f.goals, goal)
		f.mu.Unlock()
		reply(w, http.StatusCreated, map[string]any{"goal": goal})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

type cliHarness struct {
	t       *testing.T
	backend *fakeRebaton
	dbPath  string
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return &cliHarness{t: t, backend: newFakeRebaton(t), dbPath: filepath.Join(home, "rebaton.db")}
}

// run executes one CLI invocation against the fake backend and returns its
// combined output.
func (h *cliHarness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	c := newCLI()
	buf := new(bytes.Buffer)
	c.root.SetOut(buf)
	c.root.SetErr(buf)
	c.root.SetIn(strings.NewReader(stdin))
	c.root.SetArgs(append(args, "--base-url", h.backend.server.URL, "--db-path", h.dbPath))
	err := c.root.Execute()
	c.close()
	return buf.String(), err
}

func (h *cliHarness) login() {
	h.t.Helper()
	out, err := h.run("secret-pass\n", "login", "--email", "user@example.com")
	require.NoError(h.t, err, out)
}

func TestLoginStatusLogout(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("user@example.com\nsecret-pass\n", "login")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signed in as user@example.com.")

	out, err = h.run("", "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Account: user@example.com (Test User)")
	assert.Contains(t, out, "Access token: expiry unknown")

	out, err = h.run("", "logout")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signed out.")
	assert.Equal(t, int32(1), h.backend.logoutCalls.Load())

	out, err = h.run("", "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Not signed in.")
	assert.NotContains(t, out, "Account:")
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("secret-pass\n", "login", "--email", "not-an-email")
	assert.Equal(t, clierr.Validation, clierr.TypeOf(err))

	_, err = h.run("wrong-pass\n", "login", "--email", "user@example.com")
	assert.Equal(t, clierr.Auth, clierr.TypeOf(err))

	out, err := h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestPublicDealsWithoutSession(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "deals", "public")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Public Headphones")
	assert.Contains(t, out, "50.0%")
}

func TestProtectedCommandRequiresSession(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "wallet", "balance")

	require.Error(t, err)
	assert.Equal(t, clierr.Auth, clierr.TypeOf(err))
	assert.NotContains(t, out, "Balance:")
}

func TestWalletBalance(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "wallet", "balance")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Balance: 12.50 USD")
	assert.Contains(t, out, "Tokens: 300")
}

func TestDealsSyncAndOfflineCache(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "deals", "sync", "--pages", "3", "--threads", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "There are 3 deals in the local cache.")

	out, err = h.run("", "deals", "search", "headphones", "--offline")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Noise Cancelling Headphones")
	assert.NotContains(t, out, "Coffee Grinder")

	out, err = h.run("", "deals", "show", "d3", "--offline")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Title: Desk Lamp")
	assert.Contains(t, out, "Price: 15.50")
	assert.Contains(t, out, "Discount: 20.0%")

	_, err = h.run("", "deals", "show", "missing", "--offline")
	assert.Equal(t, clierr.NotFound, clierr.TypeOf(err))
}

func TestTokenExpiredEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.tokenExpired.Store(true)

	out, err := h.run("", "wallet", "balance")

	require.Error(t, err)
	assert.Equal(t, clierr.Auth, clierr.TypeOf(err))
	assert.Contains(t, out, "Your session has ended (token_expired)")
	assert.Contains(t, out, "/auth/signin?reason=token_expired")

	out, err = h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestGoalsAddAndList(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("", "goals", "add", "--target", "100")
	assert.Equal(t, clierr.Validation, clierr.TypeOf(err))

	_, err = h.run("", "goals", "add", "--title", "Trip", "--target", "100", "--deadline", "31/12/2026")
	assert.Equal(t, clierr.Validation, clierr.TypeOf(err))

	out, err := h.run("", "goals", "add", "--title", "Trip", "--target", "100", "--deadline", "2026-12-31")
	require.NoError(t, err, out)
	assert.Contains(t, out, `Goal "Trip" created with ID g1.`)

	out, err = h.run("", "goals", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Trip")
	assert.Contains(t, out, "100.00")
	assert.Contains(t, out, "2026-12-31")
}

func TestVersionSkipsStore(t *testing.T) {
	h := newHarness(t)
	h.dbPath = filepath.Join(t.TempDir(), "never-created", "rebaton.db")

	out, err := h.run("", "version")

	require.NoError(t, err)
	assert.Contains(t, out, "RebatOn CLI version:")
	assert.NoFileExists(t, h.dbPath)
}
