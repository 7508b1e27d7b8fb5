package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// subscriptionKey is the fixed name the active subscription persists under,
// sharing the credential database so it survives restarts.
const subscriptionKey = "push_subscription"

// Manager owns the push-subscription lifecycle: platform opt-in, remote
// registration, and relaying delivered notifications to the UI.
type Manager struct {
	api      interfaces.PushRegistrar
	platform interfaces.PushPlatform
	kv       interfaces.KeyValueStore

	mu             sync.Mutex
	onNotification func(types.PushNotification)
}

// NewManager creates a push manager. Nothing is registered until Enable.
func NewManager(api interfaces.PushRegistrar, platform interfaces.PushPlatform, kv interfaces.KeyValueStore) *Manager {
	return &Manager{api: api, platform: platform, kv: kv}
}

// Enable opts the client into push delivery: permission prompt, platform
// subscription keyed to the server public key, then remote registration.
// Enabling an already-enabled subscription is a no-op reporting success.
func (m *Manager) Enable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok, err := m.kv.Fetch(subscriptionKey); err != nil {
		return err
	} else if ok {
		return nil // Already enabled
	}

	// FUNCTIONAL DISCOVERY: A declined prompt is a disabled state, not a
	// failure banner; ErrPermissionDenied carries that distinction
	if err := m.platform.RequestPermission(ctx); err != nil {
		return err
	}

	vapidKey, err := m.api.VapidKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch server push key: %w", err)
	}

	sub, err := m.platform.Subscribe(ctx, vapidKey)
	if err != nil {
		return fmt.Errorf("platform subscription failed: %w", err)
	}

	if err := m.api.SubscribePush(ctx, sub); err != nil {
		return fmt.Errorf("remote push registration failed: %w", err)
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	if err := m.kv.Put(subscriptionKey, string(data)); err != nil {
		return err
	}

	log.Printf("Push subscription enabled: %s", sub.Endpoint)
	return nil
}

// Disable opts the client out: destroy the platform subscription, then
// deregister it remotely. Disabling an absent subscription is a no-op
// reporting success; a platform-revoked subscription counts as already
// destroyed.
func (m *Manager) Disable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, enabled, err := m.kv.Fetch(subscriptionKey)
	if err != nil {
		return err
	}

	existed, err := m.platform.Unsubscribe(ctx)
	if err != nil && !errors.Is(err, types.ErrSubscriptionInvalid) {
		return fmt.Errorf("platform unsubscribe failed: %w", err)
	}

	if !enabled && !existed {
		return nil // Never enabled; observably identical to a clean disable
	}

	if err := m.api.UnsubscribePush(ctx); err != nil {
		// Keep local state so a retry re-runs the remote deregistration
		return fmt.Errorf("remote push deregistration failed: %w", err)
	}

	if err := m.kv.Delete(subscriptionKey); err != nil {
		return err
	}

	log.Printf("Push subscription disabled")
	return nil
}

// Enabled reports whether a registered subscription is on record.
func (m *Manager) Enabled() bool {
	_, ok, err := m.kv.Fetch(subscriptionKey)
	return err == nil && ok
}

// Subscription returns the persisted subscription, if any.
func (m *Manager) Subscription() (*types.PushSubscription, bool) {
	data, ok, err := m.kv.Fetch(subscriptionKey)
	if err != nil || !ok {
		return nil, false
	}
	var sub types.PushSubscription
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, false
	}
	return &sub, true
}

// OnNotification registers the handler delivered notifications relay to.
func (m *Manager) OnNotification(fn func(types.PushNotification)) {
	m.mu.Lock()
	m.onNotification = fn
	m.mu.Unlock()
}

// HandleDelivery relays one delivered push payload to the registered
// handler.
func (m *Manager) HandleDelivery(payload []byte) error {
	var notification types.PushNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return fmt.Errorf("malformed push payload: %w", err)
	}

	m.mu.Lock()
	fn := m.onNotification
	m.mu.Unlock()

	if fn != nil {
		fn(notification)
	}
	return nil
}
