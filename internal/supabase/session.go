package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/knightlife/internal/kv"
	"github.com/dukerupert/knightlife/internal/remote"
)

// refreshMargin is how long before expiry a token is considered stale.
const refreshMargin = 60 * time.Second

// Session is the auth session as the token endpoint returns it and as it is
// persisted in storage.
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type,omitempty"`
	ExpiresIn    int64           `json:"expires_in,omitempty"`
	ExpiresAt    int64           `json:"expires_at,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// normalize fills ExpiresAt from expires_in, or from the access token's exp
// claim when the server sent neither.
func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt != 0 {
		return
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = now.Unix() + s.ExpiresIn
		return
	}
	if exp, ok := tokenExpiry(s.AccessToken); ok {
		s.ExpiresAt = exp.Unix()
	}
}

func (s *Session) stale(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Unix(s.ExpiresAt, 0).Sub(now) < refreshMargin
}

// tokenExpiry reads the exp claim without verifying the signature. The
// server verifies tokens; the client only needs the hint.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Session returns a copy of the current session, if any.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// SetSession installs s and persists it.
func (c *Client) SetSession(ctx context.Context, s Session) error {
	if s.AccessToken == "" {
		return fmt.Errorf("supabase: session has no access token")
	}
	s.normalize(c.now())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &s
	return c.persistLocked(ctx)
}

// SignOut drops the session locally and from storage.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	return c.forgetLocked(ctx)
}

// accessToken returns the bearer token for the next request, refreshing the
// session first when it is close to expiry. It falls back to the anon key.
func (c *Client) accessToken(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.AccessToken == "" {
		return c.anonKey
	}
	if c.opts.AutoRefreshToken && c.session.RefreshToken != "" && c.session.stale(c.now()) {
		if err := c.refreshLocked(ctx); err != nil {
			c.logger.Warn("session refresh failed", "error", err)
		}
	}
	if c.session == nil {
		return c.anonKey
	}
	return c.session.AccessToken
}

// Refresh exchanges the refresh token for a new session now.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.RefreshToken == "" {
		return fmt.Errorf("supabase: no session to refresh")
	}
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{"refresh_token": c.session.RefreshToken})
	if err != nil {
		return fmt.Errorf("marshal refresh: %w", err)
	}

	u := c.base.JoinPath("auth", "v1", "token")
	u.RawQuery = url.Values{"grant_type": {"refresh_token"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	c.setStaticHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp.StatusCode, data)
		// A rejected refresh token will never work again.
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			c.session = nil
			if err := c.forgetLocked(ctx); err != nil {
				c.logger.Warn("clear rejected session", "error", err)
			}
		}
		return fmt.Errorf("refresh: %w", apiErr)
	}

	var next Session
	if err := json.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if next.AccessToken == "" {
		return fmt.Errorf("refresh: %w", &remote.APIError{Status: resp.StatusCode, Message: "no access token in response"})
	}
	next.normalize(c.now())
	c.session = &next
	return c.persistLocked(ctx)
}

func (c *Client) persistLocked(ctx context.Context) error {
	if !c.opts.PersistSession || c.session == nil {
		return nil
	}
	w, ok := c.opts.Storage.(kv.Writer)
	if !ok {
		return nil
	}
	data, err := json.Marshal(c.session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := w.SetItem(ctx, c.storageKey, string(data)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (c *Client) forgetLocked(ctx context.Context) error {
	w, ok := c.opts.Storage.(kv.Writer)
	if !ok {
		return nil
	}
	if err := w.RemoveItem(ctx, c.storageKey); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Start runs the background refresh loop until Stop or ctx ends. It is a
// no-op unless AutoRefreshToken is set or when the loop is already running.
func (c *Client) Start(ctx context.Context) {
	if !c.opts.AutoRefreshToken {
		return
	}

	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.stopCh != nil {
		return
	}
	stopCh, stopped := make(chan struct{}), make(chan struct{})
	c.stopCh, c.stopped = stopCh, stopped

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(c.opts.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// accessToken refreshes a stale session as a side effect.
				c.accessToken(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the background refresh loop started by Start.
func (c *Client) Stop() {
	c.loopMu.Lock()
	stopCh, stopped := c.stopCh, c.stopped
	c.stopCh, c.stopped = nil, nil
	c.loopMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopped
}
