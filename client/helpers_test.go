package client_test

import (
	"context"
	"encoding/json"
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

type memStore struct {
	mu    sync.Mutex
	creds *db.Credentials
}

func (m *memStore) Load(ctx context.Context) (*db.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds
	return &c, nil
}

func (m *memStore) Save(ctx context.Context, creds *db.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *creds
	m.creds = &c
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}

func (m *memStore) get() *db.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil
	}
	c := *m.creds
	return &c
}

// backend is a fake RebatOn API. Resource handlers are registered per path; the
// refresh endpoint is built in and counts its calls.
type backend struct {
	t      *testing.T
	server *httptest.Server
	mux    *http.ServeMux

	mu            sync.Mutex
	refreshCalls  int
	refreshStatus int
	authHeaders   map[string][]string
	requestIDs    map[string][]string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		t:             t,
		mux:           http.NewServeMux(),
		refreshStatus: http.StatusOK,
		authHeaders:   map[string][]string{},
		requestIDs:    map[string][]string{},
	}
	b.mux.HandleFunc("/api/v1/auth/refresh", b.handleRefresh)
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != client.RefreshPath {
			b.mu.Lock()
			b.authHeaders[r.URL.Path] = append(b.authHeaders[r.URL.Path], r.Header.Get("Authorization"))
			b.requestIDs[r.URL.Path] = append(b.requestIDs[r.URL.Path], r.Header.Get(client.RequestIDHeader))
			b.mu.Unlock()
		}
		b.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	assert.Equal(b.t, http.MethodPost, r.Method)
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	assert.Equal(b.t, "old-refresh", body.RefreshToken)

	b.mu.Lock()
	b.refreshCalls++
	status := b.refreshStatus
	b.mu.Unlock()

	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": "invalid refresh token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  "new-access",
		"refresh_token": "new-refresh",
	})
}

func (b *backend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

func (b *backend) headersFor(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders[path]...)
}

func (b *backend) idsFor(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requestIDs[path]...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newLoggedInClient returns a client whose store holds the old token pair.
func newLoggedInClient(t *testing.T, b *backend, opts ...client.Option) (*client.Client, *memStore) {
	t.Helper()
	store := &memStore{creds: &db.Credentials{AccessToken: "old-access", RefreshToken: "old-refresh"}}
	c := client.NewWithStore(b.server.URL, store, opts...)
	require.NotNil(t, c.Auth)
	return c, store
}

type logoutRecorder struct {
	mu     sync.Mutex
	events []auth.LogoutEvent
}

func (r *logoutRecorder) record(ev auth.LogoutEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *logoutRecorder) all() []auth.LogoutEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.LogoutEvent(nil), r.events...)
}
