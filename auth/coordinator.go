package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/habedi/rebaton/db"
	"github.com/rs/zerolog/log"
)

// DefaultRefreshTimeout bounds a single refresh exchange.
const DefaultRefreshTimeout = 30 * time.Second

// State is the state of the refresh coordinator.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type refreshResult struct {
	token string
	err   error
}

// pendingRequest is a caller waiting on the in-flight refresh.
// The channel is buffered so settling never blocks on a caller that stopped waiting.
type pendingRequest struct {
	result chan refreshResult
}

type listener struct {
	id int
	fn func(LogoutEvent)
}

// Coordinator serializes token refreshes for one client. At most one refresh
// exchange is in flight at any time; callers that need a new token while it runs
// are queued and receive its outcome.
type Coordinator struct {
	Storer         TokenStorer
	Refresher      TokenRefresher
	RefreshTimeout time.Duration

	mu      sync.Mutex
	state   State
	pending []pendingRequest
	// generation changes whenever a session starts or ends. A refresh that
	// started under an older generation must not write storage.
	generation uint64

	listenersMu  sync.RWMutex
	listeners    []listener
	nextListener int
}

// NewCoordinator is the constructor for the refresh coordinator.
func NewCoordinator(storer TokenStorer, refresher TokenRefresher) *Coordinator {
	return &Coordinator{
		Storer:         storer,
		Refresher:      refresher,
		RefreshTimeout: DefaultRefreshTimeout,
	}
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AccessToken returns the stored access token, or "" when none is stored.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	creds, err := c.Storer.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		return "", nil
	}
	return creds.AccessToken, nil
}

// Refresh returns an access token to replay a request that was rejected while
// carrying staleToken.
//
// If a refresh is already running the caller is queued until it settles. If the
// stored access token already differs from staleToken, it is returned without a
// network call. Otherwise this caller performs the refresh.
func (c *Coordinator) Refresh(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	if c.state == StateRefreshing {
		p := pendingRequest{result: make(chan refreshResult, 1)}
		c.pending = append(c.pending, p)
		queued := len(c.pending)
		c.mu.Unlock()

		log.Debug().Int("queued", queued).Msg("Refresh in flight, waiting for it to settle")
		select {
		case res := <-p.result:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	creds, err := c.Storer.Load(ctx)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil || creds.RefreshToken == "" {
		c.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if creds.AccessToken != "" && creds.AccessToken != staleToken {
		c.mu.Unlock()
		log.Debug().Msg("Access token already refreshed, reusing it")
		return creds.AccessToken, nil
	}
	// The transition must happen before the lock is released.
	c.state = StateRefreshing
	generation := c.generation
	c.mu.Unlock()

	log.Info().Msg("Access token rejected, refreshing...")

	timeout := c.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	// Detached from the triggering caller so its cancellation does not fail
	// everyone queued behind it.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	fresh, err := c.exchange(refreshCtx, creds.RefreshToken)
	return c.settle(refreshCtx, generation, fresh, err)
}

// exchange trades the refresh token for a complete credential pair.
func (c *Coordinator) exchange(ctx context.Context, refreshToken string) (*db.Credentials, error) {
	creds, err := c.Refresher.PerformTokenRefresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if creds == nil || creds.AccessToken == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("%w: incomplete token pair in refresh response", ErrRefreshFailed)
	}
	return creds, nil
}

// settle finishes a refresh episode. The new pair is saved only if the session
// the episode started from is still current; otherwise the result is dropped and
// every caller is rejected. On failure credentials are purged before the queue is
// drained, and observers are notified once.
func (c *Coordinator) settle(ctx context.Context, generation uint64, fresh *db.Credentials, err error) (string, error) {
	var token string
	notify := false

	c.mu.Lock()
	switch {
	case c.generation != generation:
		log.Info().Msg("Session changed during token refresh, discarding the result")
		err = fmt.Errorf("%w: session ended during token refresh", ErrSessionExpired)
	case err == nil:
		if saveErr := c.Storer.Save(ctx, fresh); saveErr != nil {
			err = fmt.Errorf("%w: failed to save refreshed credentials: %w", ErrRefreshFailed, saveErr)
		} else {
			token = fresh.AccessToken
		}
	}
	if err != nil && c.generation == generation {
		purgeCtx, cancel := context.WithTimeout(context.Background(), DefaultRefreshTimeout)
		if clearErr := c.Storer.Clear(purgeCtx); clearErr != nil {
			log.Error().Err(clearErr).Msg("Failed to purge credentials after refresh failure")
		}
		cancel()
		c.generation++
		notify = true
	}
	pending := c.pending
	c.pending = nil
	c.state = StateIdle
	c.mu.Unlock()

	for _, p := range pending {
		p.result <- refreshResult{token: token, err: err}
	}

	switch {
	case notify:
		log.Warn().Err(err).Int("rejected", len(pending)).Msg("Token refresh failed, session ended")
		c.broadcast(LogoutEvent{Reason: ReasonSessionExpired, Err: err})
	case err != nil:
		log.Debug().Err(err).Int("rejected", len(pending)).Msg("Token refresh superseded")
	default:
		log.Info().Int("replayed", len(pending)).Msg("Token refreshed and saved successfully.")
	}
	return token, err
}

// ForceLogout purges the stored credentials and notifies observers. It is a no-op
// when nothing is stored, so concurrent callers produce a single notification.
// A refresh in flight when it runs is discarded instead of saved.
func (c *Coordinator) ForceLogout(ctx context.Context, reason LogoutReason) error {
	c.mu.Lock()
	creds, err := c.Storer.Load(ctx)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds.Empty() {
		c.mu.Unlock()
		return nil
	}
	if err := c.Storer.Clear(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to purge credentials: %w", err)
	}
	c.generation++
	c.mu.Unlock()

	log.Warn().Str("reason", string(reason)).Msg("Session invalidated")
	c.broadcast(LogoutEvent{Reason: reason})
	return nil
}

// StartSession stores a freshly issued credential pair.
func (c *Coordinator) StartSession(ctx context.Context, creds *db.Credentials) error {
	if creds == nil || creds.AccessToken == "" || creds.RefreshToken == "" {
		return errors.New("incomplete token pair")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Storer.Save(ctx, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	c.generation++
	return nil
}

// EndSession purges the stored credentials on an explicit sign-out. Observers are
// not notified.
func (c *Coordinator) EndSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Storer.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	c.generation++
	return nil
}

// OnForcedLogout registers fn to be called whenever the session is invalidated.
// The returned function removes the registration.
func (c *Coordinator) OnForcedLogout(fn func(LogoutEvent)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listener{id: id, fn: fn})

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Coordinator) broadcast(ev LogoutEvent) {
	c.listenersMu.RLock()
	fns := make([]func(LogoutEvent), 0, len(c.listeners))
	for _, l := range c.listeners {
		fns = append(fns, l.fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

