package presence

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// Default windows matching the service UI behavior: a typing indicator goes
// stale after 3 seconds of quiescence, and outbound typing signals are
// emitted at most once per 300ms regardless of keystroke frequency.
const (
	DefaultQuiescenceWindow = 3 * time.Second
	DefaultTypingDebounce   = 300 * time.Millisecond
)

// Config holds the tracker timing windows.
type Config struct {
	QuiescenceWindow time.Duration
	TypingDebounce   time.Duration
}

// DefaultConfig returns the reference timing windows.
func DefaultConfig() Config {
	return Config{
		QuiescenceWindow: DefaultQuiescenceWindow,
		TypingDebounce:   DefaultTypingDebounce,
	}
}

// Tracker derives online-user and typing-user sets from realtime channel
// events
// ARCHITECTURAL DISCOVERY: The tracker owns no connection state of its own;
// everything is a pure fold over channel events plus per-entry expiry timers
type Tracker struct {
	cfg     Config
	channel interfaces.EventChannel

	mu       sync.Mutex
	online   map[int64]string      // userID -> displayName
	typing   map[int64]*time.Timer // userID -> eviction timer
	lastSent time.Time             // outbound typing debounce
	closed   bool

	onChange func()

	subs []interfaces.Subscription
}

// New creates a tracker fed by the given channel. Call Close to detach.
func New(channel interfaces.EventChannel, cfg Config) *Tracker {
	if cfg.QuiescenceWindow <= 0 {
		cfg.QuiescenceWindow = DefaultQuiescenceWindow
	}
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = DefaultTypingDebounce
	}

	t := &Tracker{
		cfg:     cfg,
		channel: channel,
		online:  make(map[int64]string),
		typing:  make(map[int64]*time.Timer),
	}

	t.subs = []interfaces.Subscription{
		channel.Subscribe(types.EventUserOnline, t.handleOnline),
		channel.Subscribe(types.EventUserOffline, t.handleOffline),
		channel.Subscribe(types.EventUserTyping, t.handleTyping),
		channel.Subscribe(types.EventNewMessage, t.handleNewMessage),
		channel.OnStatus(t.handleStatus),
	}
	return t
}

// OnChange registers a callback invoked after every presence or typing set
// mutation. Intended for UI refresh; the callback must not block.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Tracker) handleOnline(ev types.Event) {
	var payload types.UserOnline
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("Presence: malformed user_online payload: %v", err)
		return
	}

	t.mu.Lock()
	// FUNCTIONAL DISCOVERY: Duplicate online events for one user keep a
	// single entry; the map key is what deduplicates
	_, present := t.online[payload.UserID]
	t.online[payload.UserID] = payload.Username
	t.mu.Unlock()

	if !present {
		t.notify()
	}
}

func (t *Tracker) handleOffline(ev types.Event) {
	var payload types.UserOffline
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("Presence: malformed user_offline payload: %v", err)
		return
	}

	t.mu.Lock()
	_, present := t.online[payload.UserID]
	delete(t.online, payload.UserID)
	t.mu.Unlock()

	if present {
		t.notify()
	}
}

func (t *Tracker) handleTyping(ev types.Event) {
	var payload types.UserTyping
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("Presence: malformed user_typing payload: %v", err)
		return
	}

	t.mu.Lock()
	if timer, ok := t.typing[payload.UserID]; ok {
		// Refresh extends the expiry; exactly one entry per user
		timer.Reset(t.cfg.QuiescenceWindow)
		t.mu.Unlock()
		return
	}

	// TECHNICAL DISCOVERY: Per-entry cancellable timer, stopped on natural
	// resolution, avoids stale evictions firing after a fresh signal. The
	// set is keyed by user ID so eviction never depends on what name the
	// typist resolved to at signal time
	userID := payload.UserID
	t.typing[userID] = time.AfterFunc(t.cfg.QuiescenceWindow, func() {
		t.evict(userID)
	})
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) handleNewMessage(ev types.Event) {
	var payload types.NewMessage
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return
	}

	// A completed send implies typing ended, independent of the expiry timer
	t.mu.Lock()
	timer, ok := t.typing[payload.SenderID]
	if ok {
		timer.Stop()
		delete(t.typing, payload.SenderID)
	}
	t.mu.Unlock()

	if ok {
		t.notify()
	}
}

// handleStatus clears presence on disconnect: a new connection is a new
// causal context and the server re-announces who is online.
func (t *Tracker) handleStatus(status types.ChannelStatus) {
	if status == types.StatusConnected {
		return
	}

	t.mu.Lock()
	changed := len(t.online) > 0 || len(t.typing) > 0
	t.online = make(map[int64]string)
	for id, timer := range t.typing {
		timer.Stop()
		delete(t.typing, id)
	}
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// evict is the quiescence timer callback.
func (t *Tracker) evict(userID int64) {
	t.mu.Lock()
	_, ok := t.typing[userID]
	delete(t.typing, userID)
	t.mu.Unlock()

	if ok {
		t.notify()
	}
}

// NotifyTyping emits an outbound typing signal for the room, rate-limited to
// one per debounce window so keystroke frequency never floods the channel.
func (t *Tracker) NotifyTyping(room string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("tracker is closed")
	}
	now := time.Now()
	if now.Sub(t.lastSent) < t.cfg.TypingDebounce {
		t.mu.Unlock()
		return nil // Debounced, deliberately silent
	}
	t.lastSent = now
	t.mu.Unlock()

	return t.channel.Send(types.DirectiveTyping, types.Typing{Room: room})
}

// Online returns a copy of the presence set.
func (t *Tracker) Online() map[int64]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make(map[int64]string, len(t.online))
	for id, name := range t.online {
		users[id] = name
	}
	return users
}

// Typing returns the display names currently typing, sorted for stable
// rendering. Names are resolved at snapshot time, so a typist who comes
// online mid-signal is rendered under the announced name.
func (t *Tracker) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.typing))
	for id := range t.typing {
		names = append(names, t.displayNameLocked(id))
	}
	sort.Strings(names)
	return names
}

// Close detaches from the channel and cancels every pending expiry timer.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for id, timer := range t.typing {
		timer.Stop()
		delete(t.typing, id)
	}
	t.mu.Unlock()

	for _, sub := range t.subs {
		sub.Unsubscribe()
	}
}

// displayNameLocked resolves a user ID against the presence set. The typing
// event carries only the ID; an unknown typist gets a synthetic name rather
// than being dropped.
func (t *Tracker) displayNameLocked(userID int64) string {
	if name, ok := t.online[userID]; ok {
		return name
	}
	return fmt.Sprintf("user_%d", userID)
}

func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
