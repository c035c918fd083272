package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired means the refresh token was rejected. The session state
// has already been cleared; the caller must prompt for credentials again.
var ErrSessionExpired = errors.New("session expired, sign in again")

// Client keeps one user session alive against the API. The access token
// lives only in memory; the refresh token only in the cookie jar, where the
// server put it. Concurrent requests that all find the access token stale
// share a single rotation call, since firing several in parallel would trip
// the server's reuse detection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	margin     time.Duration

	mu        sync.Mutex
	token     string
	tokenExp  time.Time
	signedIn  bool

	refreshGroup singleflight.Group
}

type Option func(*Client)

// WithRefreshMargin sets how long before expiry the token counts as stale.
func WithRefreshMargin(d time.Duration) Option {
	return func(c *Client) { c.margin = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: baseURL,
		margin:  30 * time.Second,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var res authResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}

	c.mu.Lock()
	c.token = res.AccessToken
	c.tokenExp = time.Unix(res.ExpiresAt, 0)
	c.signedIn = true
	c.mu.Unlock()
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	resp.Body.Close()

	c.clear()
	return nil
}

// Do sends req with a live access token attached, rotating first when the
// current one is stale. A 401 response triggers exactly one forced refresh
// and one retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	token, err := c.ensureAccess(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	resp.Body.Close()

	c.invalidate(token)
	token, err = c.ensureAccess(req.Context())
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return c.httpClient.Do(retry)
}

// AccessToken returns the current in-memory token. Empty when signed out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) ensureAccess(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.signedIn {
		c.mu.Unlock()
		return "", ErrSessionExpired
	}
	if c.token != "" && time.Until(c.tokenExp) > c.margin {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	// All callers that found the token stale wait on this one flight and
	// share its outcome.
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	// Another caller may have completed the rotation while this flight was
	// queued; don't rotate again on a token that is already fresh.
	c.mu.Lock()
	if c.token != "" && time.Until(c.tokenExp) > c.margin {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/refresh", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.clear()
		return "", ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh failed with status %d", resp.StatusCode)
	}

	var res authResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}

	c.mu.Lock()
	c.token = res.AccessToken
	c.tokenExp = time.Unix(res.ExpiresAt, 0)
	c.mu.Unlock()
	return res.AccessToken, nil
}

// invalidate drops the token a 401 just bounced, unless a concurrent
// rotation already replaced it.
func (c *Client) invalidate(used string) {
	c.mu.Lock()
	if c.token == used {
		c.token = ""
		c.tokenExp = time.Time{}
	}
	c.mu.Unlock()
}

func (c *Client) clear() {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.signedIn = false
	c.mu.Unlock()
}
