package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/habedi/rebaton/auth"
	"github.com/habedi/rebaton/client"
	"github.com/habedi/rebaton/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// recordingServer answers every request with the response registered for
// "METHOD /path" and records what it received.
type recordingServer struct {
	mu        sync.Mutex
	calls     []recordedCall
	responses map[string]string
	statuses  map[string]int
	server    *httptest.Server
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	rs := &recordingServer{responses: map[string]string{}, statuses: map[string]int{}}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path

		rs.mu.Lock()
		rs.calls = append(rs.calls, recordedCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		resp, ok := rs.responses[key]
		status := rs.statuses[key]
		rs.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(rs.server.Close)
	return rs
}

func (rs *recordingServer) on(method, path, response string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.responses[method+" "+path] = response
}

func (rs *recordingServer) onStatus(method, path string, status int, response string) {
	rs.on(method, path, response)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.statuses[method+" "+path] = status
}

func (rs *recordingServer) last() recordedCall {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.calls) == 0 {
		return recordedCall{}
	}
	return rs.calls[len(rs.calls)-1]
}

func (rs *recordingServer) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.calls)
}

func loggedInStore() *memStore {
	return &memStore{creds: &db.Credentials{AccessToken: "acc", RefreshToken: "ref"}}
}

func TestLogin_StoresCredentialPair(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodPost, "/api/v1/auth/login", `{"access_token":"a1","refresh_token":"r1"}`)
	store := &memStore{}
	c := client.NewWithStore(rs.server.URL, store)

	require.NoError(t, c.Login(context.Background(), "user@example.com", "secret"))

	call := rs.last()
	assert.Empty(t, call.Auth)
	assert.JSONEq(t, `{"email":"user@example.com","password":"secret"}`, call.Body)
	assert.Equal(t, &db.Credentials{AccessToken: "a1", RefreshToken: "r1"}, store.get())

	ok, err := c.Authenticated(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogin_Failures(t *testing.T) {
	rs := newRecordingServer(t)
	rs.onStatus(http.MethodPost, "/api/v1/auth/login", http.StatusUnauthorized, `{"message":"bad credentials"}`)
	store := &memStore{}
	c := client.NewWithStore(rs.server.URL, store)

	err := c.Login(context.Background(), "user@example.com", "wrong")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad credentials", apiErr.Message)
	assert.Nil(t, store.get())

	assert.Error(t, c.Login(context.Background(), "", "x"))
	assert.Equal(t, 1, rs.count())
}

func TestLogin_IncompletePairIsRejected(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodPost, "/api/v1/auth/login", `{"access_token":"a1"}`)
	store := &memStore{}
	c := client.NewWithStore(rs.server.URL, store)

	assert.Error(t, c.Login(context.Background(), "user@example.com", "secret"))
	assert.Nil(t, store.get())
}

func TestRegister(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodPost, "/api/v1/auth/register", `{"access_token":"a1","refresh_token":"r1"}`)
	store := &memStore{}
	c := client.NewWithStore(rs.server.URL, store)

	err := c.Register(context.Background(), client.RegisterInput{Email: "new@example.com", Password: "secret123", Name: "New"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"new@example.com","password":"secret123","name":"New"}`, rs.last().Body)
	assert.Equal(t, "r1", store.get().RefreshToken)
}

func TestLogout_ClearsEvenWhenBackendFails(t *testing.T) {
	rs := newRecordingServer(t)
	rs.onStatus(http.MethodPost, "/api/v1/auth/logout", http.StatusInternalServerError, `{}`)
	store := loggedInStore()
	c := client.NewWithStore(rs.server.URL, store)
	fired := false
	c.OnForcedLogout(func(ev auth.LogoutEvent) { fired = true })

	require.NoError(t, c.Logout(context.Background()))

	call := rs.last()
	assert.Equal(t, "Bearer acc", call.Auth)
	assert.JSONEq(t, `{"refresh_token":"ref"}`, call.Body)
	assert.Nil(t, store.get())
	assert.False(t, fired)

	ok, err := c.Authenticated(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogout_WithoutSessionSkipsBackend(t *testing.T) {
	rs := newRecordingServer(t)
	c := client.NewWithStore(rs.server.URL, &memStore{})

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, 0, rs.count())
}

func TestMe(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodGet, "/api/v1/auth/me", `{"id":"u1","email":"user@example.com","name":"User"}`)
	c := client.NewWithStore(rs.server.URL, loggedInStore())

	user, err := c.Me(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Bearer acc", rs.last().Auth)
}

func TestDeals_QueryAndAuth(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodGet, "/api/v1/deals", `{"deals":[{"id":"d1","title":"TV","price":"300","discount":0.4}],"total":42,"page":3}`)
	c := client.NewWithStore(rs.server.URL, loggedInStore())

	page, err := c.Deals(context.Background(), client.DealQuery{Query: "tv", Page: 3, Limit: 10})

	require.NoError(t, err)
	call := rs.last()
	assert.Equal(t, "Bearer acc", call.Auth)
	assert.Equal(t, "limit=10&page=3&q=tv", call.Query)
	assert.Equal(t, 42, page.Total)
	assert.Equal(t, 3, page.Page)
	require.Len(t, page.Deals, 1)
	assert.Equal(t, 300.0, page.Deals[0].Price)
	assert.Equal(t, 40.0, page.Deals[0].DiscountPercent)
}

func TestDeal_UnwrapsEnvelope(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodGet, "/api/v1/deals/d1", `{"deal":{"id":"d1","title":"TV"}}`)
	rs.on(http.MethodGet, "/api/v1/deals/d2", `{"id":"d2","title":"Radio"}`)
	c := client.NewWithStore(rs.server.URL, loggedInStore())

	d1, err := c.Deal(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "TV", d1.Title)

	d2, err := c.Deal(context.Background(), "d2")
	require.NoError(t, err)
	assert.Equal(t, "Radio", d2.Title)

	_, err = c.Deal(context.Background(), "")
	assert.Error(t, err)

	_, err = c.Deal(context.Background(), "missing")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGoals_CRUD(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodGet, "/api/v1/goals", `{"goals":[{"id":"g1","title":"Trip","target_amount":200,"current_amount":50}]}`)
	rs.on(http.MethodPost, "/api/v1/goals", `{"goal":{"id":"g2","title":"Bike","target_amount":300}}`)
	rs.on(http.MethodPut, "/api/v1/goals/g2", `{"id":"g2","title":"E-bike","target_amount":900}`)
	rs.onStatus(http.MethodDelete, "/api/v1/goals/g2", http.StatusNoContent, ``)
	c := client.NewWithStore(rs.server.URL, loggedInStore())
	ctx := context.Background()

	goals, err := c.Goals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, 25.0, goals[0].Progress())

	created, err := c.CreateGoal(ctx, client.GoalInput{Title: "Bike", TargetAmount: 300})
	require.NoError(t, err)
	assert.Equal(t, "g2", created.ID)
	assert.JSONEq(t, `{"title":"Bike","target_amount":300}`, rs.last().Body)

	updated, err := c.UpdateGoal(ctx, "g2", client.GoalInput{Title: "E-bike", TargetAmount: 900})
	require.NoError(t, err)
	assert.Equal(t, "E-bike", updated.Title)
	assert.Equal(t, http.MethodPut, rs.last().Method)

	require.NoError(t, c.DeleteGoal(ctx, "g2"))
	assert.Equal(t, http.MethodDelete, rs.last().Method)
	assert.Equal(t, "/api/v1/goals/g2", rs.last().Path)

	_, err = c.CreateGoal(ctx, client.GoalInput{})
	assert.Error(t, err)
	assert.Error(t, c.DeleteGoal(ctx, ""))
}

func TestGoalProgress(t *testing.T) {
	assert.Equal(t, 0.0, client.Goal{}.Progress())
	assert.Equal(t, 100.0, client.Goal{TargetAmount: 10, CurrentAmount: 25}.Progress())
}

func TestWallet(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodGet, "/api/v1/wallet", `{"wallet":{"balance":12.5,"currency":"USD","tokens":300}}`)
	rs.on(http.MethodGet, "/api/v1/wallet/transactions", `[{"id":"t1","type":"cashback","amount":2.5}]`)
	c := client.NewWithStore(rs.server.URL, loggedInStore())
	ctx := context.Background()

	w, err := c.Wallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12.5, w.Balance)
	assert.Equal(t, int64(300), w.Tokens)

	txs, err := c.Transactions(ctx, 2, 5)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "cashback", txs[0].Type)
	assert.Equal(t, "limit=5&page=2", rs.last().Query)
}

func TestNotifications(t *testing.T) {
	rs := newRecordingServer(t)
	rs.on(http.MethodGet, "/api/v1/notifications", `{"data":[{"id":"n1","title":"Price drop","read":false}]}`)
	rs.on(http.MethodPatch, "/api/v1/notifications/n1/read", `{}`)
	c := client.NewWithStore(rs.server.URL, loggedInStore())
	ctx := context.Background()

	list, err := c.Notifications(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "unread=true", rs.last().Query)

	require.NoError(t, c.MarkNotificationRead(ctx, "n1"))
	call := rs.last()
	assert.Equal(t, http.MethodPatch, call.Method)
	var body map[string]bool
	require.NoError(t, json.Unmarshal([]byte(call.Body), &body))
	assert.True(t, body["read"])

	assert.Error(t, c.MarkNotificationRead(ctx, ""))
}
