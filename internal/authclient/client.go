package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// apiBase is the REST surface prefix of the Team Messenger service.
const apiBase = "/api/v1"

// outcome classifies a single request attempt
// ARCHITECTURAL DISCOVERY: Modelling the attempt result explicitly drives
// the refresh state machine directly instead of re-inspecting HTTP statuses
// at every decision point
type outcome int

const (
	outcomeOK outcome = iota
	outcomeAuthRejected
	outcomeNetworkError
)

// Client wraps outgoing requests with credential injection and transparent
// refresh-and-retry.
type Client struct {
	serverURL string
	http      *http.Client
	creds     interfaces.CredentialStore

	// FUNCTIONAL DISCOVERY: singleflight guarantees at most one refresh
	// network call per expiry episode; every concurrent rejected request
	// awaits the same outcome
	refresh singleflight.Group

	mu        sync.Mutex
	onExpired func()
}

// Interface compliance verified at compile time
var _ interfaces.APIClient = (*Client)(nil)

// New creates an authenticated client for the service at serverURL
// (scheme://host, no path). httpClient may be nil for http.DefaultClient.
func New(serverURL string, creds interfaces.CredentialStore, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		serverURL: serverURL,
		http:      httpClient,
		creds:     creds,
	}
}

// OnSessionExpired registers the forced-logout hook. It fires at most once
// per expiry episode, from the single refresh attempt that failed, never
// once per rejected request.
func (c *Client) OnSessionExpired(fn func()) {
	c.mu.Lock()
	c.onExpired = fn
	c.mu.Unlock()
}

// Do sends an authenticated request and returns the final response after any
// transparent credential refresh.
//
// The algorithm: inject the current access credential; on rejection consult
// the single-flight refresh; on refresh success retry the original request
// exactly once with the new credential; on refresh failure surface
// types.ErrSessionExpired to this and every concurrent caller.
func (c *Client) Do(ctx context.Context, method, endpoint string, body interface{}) (*types.APIResponse, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}

	session, hasSession := c.creds.Get()

	resp, result, err := c.attempt(ctx, method, endpoint, payload, session.AccessToken)
	switch result {
	case outcomeOK:
		return resp, nil
	case outcomeNetworkError:
		return nil, fmt.Errorf("%w: %v", types.ErrNetworkUnavailable, err)
	}

	// Credential rejected. Without a refresh credential there is nothing to
	// recover with.
	if !hasSession {
		return nil, types.ErrSessionExpired
	}

	token, err := c.refreshSession(ctx)
	if err != nil {
		return nil, err
	}

	// FUNCTIONAL DISCOVERY: Exactly one retry after a successful refresh; a
	// second rejection means the new credential is also bad and recovery
	// must not loop
	resp, result, err = c.attempt(ctx, method, endpoint, payload, token)
	switch result {
	case outcomeOK:
		return resp, nil
	case outcomeNetworkError:
		return nil, fmt.Errorf("%w: %v", types.ErrNetworkUnavailable, err)
	default:
		return nil, types.ErrAuthRejected
	}
}

// attempt performs one HTTP round trip and classifies the result.
func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, accessToken string) (*types.APIResponse, outcome, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+apiBase+endpoint, reader)
	if err != nil {
		return nil, outcomeNetworkError, err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, outcomeNetworkError, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, outcomeNetworkError, err
	}

	resp := &types.APIResponse{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   data,
	}

	if httpResp.StatusCode == http.StatusUnauthorized {
		return resp, outcomeAuthRejected, nil
	}
	return resp, outcomeOK, nil
}

// refreshSession exchanges the stored refresh credential for a new pair.
// Concurrent callers share a single network refresh via singleflight; each
// receives the new access token or the shared failure.
func (c *Client) refreshSession(ctx context.Context) (string, error) {
	// TECHNICAL DISCOVERY: A fixed key collapses every concurrent refresh
	// request into one in-flight call; the group releases all waiters with
	// the single outcome
	token, err, _ := c.refresh.Do("refresh", func() (interface{}, error) {
		session, ok := c.creds.Get()
		if !ok || session.RefreshToken == "" {
			return nil, types.ErrSessionExpired
		}

		// The refresh belongs to the session, not to whichever request
		// happened to trigger it: once started it runs to completion, so the
		// initiator cancelling cannot fail the waiters sharing this flight
		detached := context.WithoutCancel(ctx)

		payload, _ := json.Marshal(map[string]string{"refresh_token": session.RefreshToken})
		req, err := http.NewRequestWithContext(detached, http.MethodPost, c.serverURL+apiBase+"/auth/refresh", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrNetworkUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := c.http.Do(req)
		if err != nil {
			// A transport failure is transient; the session survives so the
			// caller can retry once the network returns.
			return nil, fmt.Errorf("%w: %v", types.ErrNetworkUnavailable, err)
		}
		defer func() { _ = httpResp.Body.Close() }()

		if httpResp.StatusCode != http.StatusOK {
			// The refresh credential itself was rejected: the session is
			// irrecoverable. Clear it and fire the forced-logout hook once.
			c.expireSession()
			return nil, types.ErrSessionExpired
		}

		var tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(httpResp.Body).Decode(&tokens); err != nil || tokens.AccessToken == "" {
			c.expireSession()
			return nil, types.ErrSessionExpired
		}

		// FUNCTIONAL DISCOVERY: The service may rotate only the access
		// credential; a missing refresh token in the response keeps the old one
		next := types.Session{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
		if next.RefreshToken == "" {
			next.RefreshToken = session.RefreshToken
		}
		if err := c.creds.Set(next); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed session: %w", err)
		}

		log.Printf("Session refreshed")
		return next.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// expireSession clears the stored session and fires the forced-logout hook.
// Runs inside the single-flight refresh, so it executes at most once per
// expiry episode.
func (c *Client) expireSession() {
	if err := c.creds.Clear(); err != nil {
		log.Printf("Failed to clear expired session: %v", err)
	}
	c.mu.Lock()
	fn := c.onExpired
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Login authenticates with the service and stores the returned credential
// pair. It bypasses the refresh machinery: a rejected login is a credential
// problem, not an expiry episode.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+apiBase+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNetworkUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNetworkUnavailable, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with status %d", httpResp.StatusCode)
	}

	var tokens types.Session
	if err := json.NewDecoder(httpResp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if !tokens.Valid() {
		return fmt.Errorf("login response missing credential pair")
	}
	return c.creds.Set(tokens)
}

// Logout clears the stored session. Navigation to the authentication surface
// is the caller's responsibility.
func (c *Client) Logout() error {
	return c.creds.Clear()
}

func marshalBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return payload, nil
}
