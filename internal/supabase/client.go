// Package supabase is a minimal client for the hosted records backend: the
// PostgREST data API plus the token endpoint of its auth API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/knightlife/internal/kv"
	"github.com/dukerupert/knightlife/internal/remote"
)

// DefaultClientInfo is sent as X-Client-Info on every request.
const DefaultClientInfo = "rutgers-knightlife"

const maxResponseSize = 10 << 20

var (
	// ErrStorageUnavailable means the session storage is missing or failed its first read.
	ErrStorageUnavailable = errors.New("supabase: session storage unavailable")
	// ErrURLSessionUnsupported is returned when session detection from a
	// redirect URL is requested; this client is never an OAuth redirect target.
	ErrURLSessionUnsupported = errors.New("supabase: session detection from URL is not supported")
)

// Options configures a Client.
type Options struct {
	URL     string
	AnonKey string
	Storage kv.Getter

	PersistSession     bool
	AutoRefreshToken   bool
	DetectSessionInURL bool

	// ClientInfo is the static client-identifying header value.
	ClientInfo string
	// Headers are added to every request.
	Headers map[string]string
	// StorageKey overrides the key the session is persisted under.
	StorageKey string
	// RefreshInterval is the tick of the background refresh loop.
	RefreshInterval time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultOptions returns the fixed policies the app runs with: the session is
// persisted and refreshed automatically, and never read from a URL.
func DefaultOptions(baseURL, anonKey string, storage kv.Getter) Options {
	return Options{
		URL:                baseURL,
		AnonKey:            anonKey,
		Storage:            storage,
		PersistSession:     true,
		AutoRefreshToken:   true,
		DetectSessionInURL: false,
		ClientInfo:         DefaultClientInfo,
	}
}

// Client talks to the hosted backend. It implements remote.Backend.
type Client struct {
	base       *url.URL
	anonKey    string
	opts       Options
	storageKey string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	session *Session

	loopMu  sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
}

var _ remote.Backend = (*Client)(nil)

// New runs the construction sequence: read the storage, validate the
// endpoint, apply defaults, and restore a persisted session.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Storage == nil {
		return nil, ErrStorageUnavailable
	}
	if opts.DetectSessionInURL {
		return nil, ErrURLSessionUnsupported
	}

	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("supabase: invalid url %q", opts.URL)
	}
	if opts.AnonKey == "" {
		return nil, errors.New("supabase: anon key is required")
	}

	if opts.ClientInfo == "" {
		opts.ClientInfo = DefaultClientInfo
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		base:       base,
		anonKey:    opts.AnonKey,
		opts:       opts,
		storageKey: opts.StorageKey,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		now:        time.Now,
	}
	if c.storageKey == "" {
		c.storageKey = defaultStorageKey(base)
	}

	// The first read doubles as session restore.
	raw, ok, err := opts.Storage.GetItem(ctx, c.storageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if ok && opts.PersistSession {
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			c.logger.Warn("discarding unreadable persisted session", "error", err)
		} else if s.AccessToken != "" {
			s.normalize(c.now())
			c.session = &s
		}
	}

	return c, nil
}

func defaultStorageKey(base *url.URL) string {
	ref := base.Hostname()
	if i := strings.IndexByte(ref, '.'); i > 0 {
		ref = ref[:i]
	}
	return "sb-" + ref + "-auth-token"
}

// StorageKey returns the key the session is persisted under.
func (c *Client) StorageKey() string {
	return c.storageKey
}

func (c *Client) Select(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("select", "*")
	if order.Column != "" {
		dir := "desc"
		if order.Ascending {
			dir = "asc"
		}
		q.Set("order", order.Column+"."+dir)
	}

	body, err := c.do(ctx, http.MethodGet, c.restURL(table, q), nil, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) Insert(ctx context.Context, table string, records ...any) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, c.restURL(table, nil), payload, map[string]string{
		"Prefer": "return=minimal",
	})
	return err
}

func (c *Client) Delete(ctx context.Context, table, column string, value any) error {
	q := url.Values{}
	q.Set(column, "eq."+fmt.Sprint(value))
	_, err := c.do(ctx, http.MethodDelete, c.restURL(table, q), nil, nil)
	return err
}

func (c *Client) restURL(table string, q url.Values) string {
	u := c.base.JoinPath("rest", "v1", table)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, extra map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setStaticHeaders(req)
	req.Header.Set("Authorization", "Bearer "+c.accessToken(ctx))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) setStaticHeaders(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("X-Client-Info", c.opts.ClientInfo)
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}
}

// decodeAPIError reads the error body of either API. PostgREST uses
// "message"; the auth API uses "msg" or "error_description".
func decodeAPIError(status int, data []byte) error {
	var body struct {
		Code             any    `json:"code"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	apiErr := &remote.APIError{Status: status}
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}

	switch code := body.Code.(type) {
	case string:
		apiErr.Code = code
	case float64:
		apiErr.Code = fmt.Sprintf("%.0f", code)
	}
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	apiErr.Details = body.Details
	apiErr.Hint = body.Hint
	for _, m := range []string{body.Message, body.Msg, body.ErrorDescription} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	return apiErr
}
