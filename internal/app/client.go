package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"teamwire/internal/authclient"
	"teamwire/internal/cache"
	"teamwire/internal/config"
	"teamwire/internal/credstore"
	"teamwire/internal/presence"
	"teamwire/internal/push"
	"teamwire/internal/realtime"
	"teamwire/internal/rest"
)

// Client coordinates the connectivity components behind one lifecycle
// Clean dependency injection pattern with proper initialization order
type Client struct {
	config     *config.Config
	creds      *credstore.Store
	cacheStore *cache.Store
	httpClient *http.Client
	auth       *authclient.Client
	api        *rest.API
	channel    *realtime.Channel
	tracker    *presence.Tracker
	pushMgr    *push.Manager
}

// NewClient creates a client instance with all components initialized.
// Component initialization follows strict dependency order:
// CredentialStore → CacheStore → AuthenticatedClient → API → Channel →
// Presence → Push
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Open the credential store (foundation layer)
	creds, err := credstore.Open(cfg.Store.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	// STEP 2: Open the cache store, sweeping prior generations
	cacheStore, err := cache.OpenStore(cfg.Store.CachePath, cfg.Cache.Generation)
	if err != nil {
		creds.Close()
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	// STEP 3: Wrap the HTTP transport with the offline fallback gateway
	gateway, err := cache.NewGateway(cacheStore, nil, cfg.Server.BaseURL)
	if err != nil {
		cacheStore.Close()
		creds.Close()
		return nil, fmt.Errorf("failed to build cache gateway: %w", err)
	}
	httpClient := &http.Client{
		Timeout:   cfg.Server.RequestTimeout,
		Transport: gateway,
	}

	// STEP 4: Authenticated client over the gateway transport
	auth := authclient.New(cfg.Server.BaseURL, creds, httpClient)

	// STEP 5: Typed REST surface
	api := rest.New(auth)

	// STEP 6: Realtime channel reading tokens from the shared store
	rtCfg := realtime.DefaultConfig(cfg.Server.BaseURL)
	rtCfg.HandshakeTimeout = cfg.Realtime.HandshakeTimeout
	rtCfg.WriteTimeout = cfg.Realtime.WriteTimeout
	rtCfg.PingInterval = cfg.Realtime.PingInterval
	rtCfg.ReadTimeout = cfg.Realtime.ReadTimeout
	rtCfg.ReconnectInitial = cfg.Realtime.ReconnectInitial
	rtCfg.ReconnectMax = cfg.Realtime.ReconnectMax
	rtCfg.SendBuffer = cfg.Realtime.SendBuffer
	channel := realtime.New(rtCfg, creds)

	// STEP 7: Presence tracker folding channel events
	tracker := presence.New(channel, presence.Config{
		QuiescenceWindow: cfg.Presence.QuiescenceWindow,
		TypingDebounce:   cfg.Presence.TypingDebounce,
	})

	// STEP 8: Push manager sharing the credential database for persistence
	platform := push.NewLocalPlatform(cfg.Push.GatewayURL, cfg.Push.PermissionGranted)
	pushMgr := push.NewManager(api, platform, creds)

	return &Client{
		config:     cfg,
		creds:      creds,
		cacheStore: cacheStore,
		httpClient: httpClient,
		auth:       auth,
		api:        api,
		channel:    channel,
		tracker:    tracker,
		pushMgr:    pushMgr,
	}, nil
}

// Start brings the client online. The realtime channel only dials when a
// session is on record; an unauthenticated client starts in REST-only mode.
func (c *Client) Start(ctx context.Context) error {
	log.Printf("Starting teamwire client against %s", c.config.Server.BaseURL)

	if _, ok := c.creds.Get(); !ok {
		log.Printf("No stored session, realtime channel idle until login")
		return nil
	}

	if err := c.channel.Connect(ctx); err != nil {
		// The channel keeps retrying in the background; startup still succeeds
		log.Printf("Initial realtime connect failed, reconnection scheduled: %v", err)
	}
	return nil
}

// Stop gracefully shuts down the client.
// Reverse dependency order: Presence → Channel → CacheStore → CredentialStore
func (c *Client) Stop(ctx context.Context) error {
	log.Printf("Shutting down teamwire client")

	c.tracker.Close()

	if err := c.channel.Close(); err != nil {
		log.Printf("Realtime channel shutdown error: %v", err)
	}

	if err := c.cacheStore.Close(); err != nil {
		log.Printf("Cache store shutdown error: %v", err)
	}

	if err := c.creds.Close(); err != nil {
		log.Printf("Credential store shutdown error: %v", err)
	}

	log.Printf("Teamwire client shutdown complete")
	return nil
}

// Login authenticates, persists the session, and brings the realtime channel
// up.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if err := c.auth.Login(ctx, username, password); err != nil {
		return err
	}
	return c.channel.Connect(ctx)
}

// Logout drops the realtime connection and clears the stored session. The
// channel stays usable for a later Login.
func (c *Client) Logout() error {
	if err := c.channel.Disconnect(); err != nil {
		log.Printf("Realtime disconnect error during logout: %v", err)
	}
	return c.auth.Logout()
}

// OnSessionExpired registers the surface-to-login hook fired when the
// refresh flow gives up on the stored session.
func (c *Client) OnSessionExpired(fn func()) {
	c.auth.OnSessionExpired(fn)
}

// HTTP returns the gateway-backed HTTP client. Document and static reads
// issued through it degrade to the offline cache when the network is gone;
// API traffic passes straight through.
func (c *Client) HTTP() *http.Client { return c.httpClient }

// API returns the typed REST surface.
func (c *Client) API() *rest.API { return c.api }

// Channel returns the realtime event channel.
func (c *Client) Channel() *realtime.Channel { return c.channel }

// Presence returns the presence and typing tracker.
func (c *Client) Presence() *presence.Tracker { return c.tracker }

// Push returns the push subscription manager.
func (c *Client) Push() *push.Manager { return c.pushMgr }
