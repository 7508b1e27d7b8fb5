package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// Config holds the realtime channel settings.
type Config struct {
	ServerURL        string        // http(s) base URL of the service
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration // must exceed PingInterval
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration // backoff cap
	SendBuffer       int
}

// DefaultConfig returns channel settings tuned for interactive chat traffic.
func DefaultConfig(serverURL string) Config {
	return Config{
		ServerURL:        serverURL,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		ReconnectInitial: 500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		SendBuffer:       100,
	}
}

// Channel manages one persistent bidirectional connection: authentication
// handshake, room membership, reconnection and event dispatch.
//
// State machine: disconnected → connecting → connected → disconnected (on
// error/close) → connecting (after backoff) → …; the closed state is
// terminal and reached only through Close.
type Channel struct {
	cfg   Config
	creds interfaces.CredentialStore
	bus   *Bus

	// TECHNICAL DISCOVERY: An instance ID in every log line separates
	// channels when the application reconnects or runs side-by-side clients
	id string

	mu             sync.Mutex
	status         types.ChannelStatus
	room           string
	attempt        int
	conn           *websocket.Conn
	writeCh        chan types.Event
	connDone       chan struct{}
	reconnectTimer *time.Timer
	backoff        *backoff.ExponentialBackOff
	suspended      bool
	closed         bool

	statusMu     sync.Mutex
	statusSubs   map[int]func(types.ChannelStatus)
	nextStatusID int
}

// Interface compliance verified at compile time
var _ interfaces.EventChannel = (*Channel)(nil)

// New creates a channel for the service described by cfg. The channel stays
// disconnected until Connect is called.
func New(cfg Config, creds interfaces.CredentialStore) *Channel {
	// FUNCTIONAL DISCOVERY: MaxElapsedTime zero keeps the backoff retrying
	// forever; disconnection is a state to recover from, not a failure to
	// give up on
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectInitial
	b.MaxInterval = cfg.ReconnectMax
	b.MaxElapsedTime = 0

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 100
	}

	return &Channel{
		cfg:        cfg,
		creds:      creds,
		bus:        NewBus(),
		id:         uuid.NewString(),
		status:     types.StatusDisconnected,
		backoff:    b,
		statusSubs: make(map[int]func(types.ChannelStatus)),
	}
}

// Connect opens the channel using the current access credential as a
// handshake parameter. A failed dial schedules automatic reconnection before
// returning the error, so callers observe recovery through OnStatus rather
// than by retrying Connect.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.status == types.StatusConnected || c.status == types.StatusConnecting {
		c.mu.Unlock()
		return nil // Idempotent
	}
	c.suspended = false
	c.status = types.StatusConnecting
	c.mu.Unlock()
	c.notifyStatus(types.StatusConnecting)

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		if !c.closed {
			c.status = types.StatusDisconnected
		}
		c.mu.Unlock()
		c.notifyStatus(types.StatusDisconnected)
		c.scheduleReconnect()
		return fmt.Errorf("channel connect failed: %w", err)
	}
	return nil
}

// dial performs one connection attempt and, on success, installs the
// connection and starts its reader and writer goroutines.
func (c *Channel) dial(ctx context.Context) error {
	endpoint, err := c.handshakeURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.suspended {
		// A Close or Disconnect that landed while the dial was in flight
		// wins; the fresh connection must not be installed
		closed := c.closed
		c.mu.Unlock()
		_ = conn.Close()
		if closed {
			return ErrChannelClosed
		}
		return ErrNotConnected
	}

	c.conn = conn
	c.writeCh = make(chan types.Event, c.cfg.SendBuffer)
	c.connDone = make(chan struct{})
	c.attempt = 0
	c.backoff.Reset()

	// FUNCTIONAL DISCOVERY: Room membership is re-asserted on every
	// successful (re)connect, queued before the status flips to connected
	// so no other outbound event can precede the join directive
	if c.room != "" {
		c.writeCh <- mustEvent(types.DirectiveJoinRoom, types.JoinRoom{Room: c.room})
	}

	c.status = types.StatusConnected
	writeCh, done := c.writeCh, c.connDone
	c.mu.Unlock()

	go c.writeLoop(conn, writeCh, done)
	go c.readLoop(conn)

	log.Printf("Channel %s connected", c.id)
	c.notifyStatus(types.StatusConnected)
	return nil
}

// handshakeURL builds the websocket endpoint carrying the access credential.
func (c *Channel) handshakeURL() (string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// Already a websocket URL
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	u.Path = "/ws"

	session, _ := c.creds.Get()
	query := u.Query()
	query.Set("token", session.AccessToken)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// writeLoop is the single writer for one connection
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; a single
// writer goroutine per connection eliminates races between sends and pings
func (c *Channel) writeLoop(conn *websocket.Conn, ch chan types.Event, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-ch:
			if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("Channel %s write failed: %v", c.id, err)
				return // Reader notices the broken connection and drives teardown
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// readLoop reads frames and dispatches them in arrival order. FIFO delivery
// per connection follows from this being the only reader.
func (c *Channel) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.bus.Dispatch(ev)
	}
}

// handleDisconnect tears down one broken connection and schedules recovery.
func (c *Channel) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		// Teardown already happened, or a newer connection replaced this one
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.connDone)
	c.connDone = nil
	c.status = types.StatusDisconnected
	c.mu.Unlock()

	_ = conn.Close()
	log.Printf("Channel %s disconnected: %v", c.id, cause)
	c.notifyStatus(types.StatusDisconnected)
	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next connection attempt.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.suspended || c.reconnectTimer != nil {
		return
	}

	c.attempt++
	delay := c.backoff.NextBackOff()
	attempt := c.attempt
	// TECHNICAL DISCOVERY: AfterFunc gives a cancellable timer; Close stops
	// it so no reconnection fires after teardown
	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
	log.Printf("Channel %s reconnect attempt %d scheduled in %s", c.id, attempt, delay)
}

// reconnect is the timer callback driving the connecting transition.
func (c *Channel) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.closed || c.suspended || c.status == types.StatusConnected {
		c.mu.Unlock()
		return
	}
	c.status = types.StatusConnecting
	c.mu.Unlock()
	c.notifyStatus(types.StatusConnecting)

	// Reconnection runs outside any caller context: it belongs to the
	// channel's own lifetime, cancelled only by Close.
	if err := c.dial(context.Background()); err != nil {
		c.mu.Lock()
		if !c.closed {
			c.status = types.StatusDisconnected
		}
		c.mu.Unlock()
		c.notifyStatus(types.StatusDisconnected)
		c.scheduleReconnect()
	}
}

// Join records the room and, when connected, emits the join directive.
// Rejoining the current room is idempotent.
func (c *Channel) Join(room string) error {
	if !types.IsValidRoom(room) {
		return types.ErrInvalidRoom
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.room = room
	connected := c.status == types.StatusConnected
	ch := c.writeCh
	c.mu.Unlock()

	if !connected {
		// Membership is re-asserted automatically on the next connect
		return nil
	}
	return enqueue(ch, mustEvent(types.DirectiveJoinRoom, types.JoinRoom{Room: room}))
}

// Leave emits the leave directive and forgets the room, so reconnection no
// longer re-asserts membership.
func (c *Channel) Leave() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	room := c.room
	c.room = ""
	connected := c.status == types.StatusConnected
	ch := c.writeCh
	c.mu.Unlock()

	if room == "" || !connected {
		return nil
	}
	return enqueue(ch, mustEvent(types.DirectiveLeaveRoom, types.JoinRoom{Room: room}))
}

// Send emits a directive with a JSON payload. Valid only while connected;
// sends during disconnection are dropped with ErrNotConnected, never
// buffered — callers re-issue after observing reconnection.
func (c *Channel) Send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.status != types.StatusConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ch := c.writeCh
	c.mu.Unlock()

	return enqueue(ch, types.Event{Name: event, Payload: data})
}

// Subscribe registers a handler for the named inbound event.
func (c *Channel) Subscribe(event string, fn func(types.Event)) interfaces.Subscription {
	return c.bus.Subscribe(event, Handler(fn))
}

// OnStatus registers a handler observing status transitions.
func (c *Channel) OnStatus(fn func(types.ChannelStatus)) interfaces.Subscription {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	c.nextStatusID++
	id := c.nextStatusID
	c.statusSubs[id] = fn
	return &statusSubscription{channel: c, id: id}
}

type statusSubscription struct {
	channel *Channel
	id      int
	once    sync.Once
}

func (s *statusSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.channel.statusMu.Lock()
		delete(s.channel.statusSubs, s.id)
		s.channel.statusMu.Unlock()
	})
}

func (c *Channel) notifyStatus(status types.ChannelStatus) {
	c.statusMu.Lock()
	subs := make([]func(types.ChannelStatus), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		subs = append(subs, fn)
	}
	c.statusMu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

// Status returns the current channel state.
func (c *Channel) Status() types.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Room returns the recorded room, if any.
func (c *Channel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// ReconnectAttempts returns the failure counter since the last successful
// connect.
func (c *Channel) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Disconnect drops the connection and suspends automatic reconnection until
// the next Connect. Unlike Close, the channel stays usable.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.suspended = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	changed := c.status != types.StatusDisconnected
	c.status = types.StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}

	if changed {
		log.Printf("Channel %s disconnected by request", c.id)
		c.notifyStatus(types.StatusDisconnected)
	}
	return nil
}

// Close tears the channel down: cancels any pending reconnection timer,
// closes the underlying connection and transitions to the terminal closed
// state. No further automatic reconnection occurs.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil // Already closed
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.status = types.StatusClosed
	c.mu.Unlock()

	if conn != nil {
		// Best-effort close frame before dropping the connection
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}

	log.Printf("Channel %s closed", c.id)
	c.notifyStatus(types.StatusClosed)
	return nil
}

// enqueue performs a non-blocking handoff to the connection writer
// TECHNICAL DISCOVERY: Blocking here would stall the caller on a slow
// connection; a full buffer is reported instead so callers treat the send
// as dropped
func enqueue(ch chan types.Event, ev types.Event) error {
	select {
	case ch <- ev:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func mustEvent(name string, payload interface{}) types.Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("unserializable directive payload for %s: %v", name, err))
	}
	return types.Event{Name: name, Payload: data}
}
