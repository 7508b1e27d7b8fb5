package interfaces

import (
	"context"

	"teamwire/pkg/types"
)

// Subscription is a cancellation handle returned by event registration
// ARCHITECTURAL DISCOVERY: Explicit handles replace ad-hoc callback removal
// so subscribers never have to identify themselves by function value
type Subscription interface {
	// Unsubscribe removes the handler. Safe to call more than once.
	Unsubscribe()
}

// EventChannel is the realtime channel surface consumed by trackers and UI
// glue: typed event subscription, connection status observation, and
// best-effort sends.
type EventChannel interface {
	// Subscribe registers a handler for the named event. Handlers for one
	// connection are invoked in the order events were received.
	Subscribe(event string, fn func(types.Event)) Subscription

	// OnStatus registers a handler observing channel status transitions.
	OnStatus(fn func(types.ChannelStatus)) Subscription

	// Send emits a directive with a JSON payload. Valid only while
	// connected; sends during disconnection are dropped with an error,
	// never buffered.
	Send(event string, payload interface{}) error
}

// PushPlatform abstracts the platform half of push delivery: permission
// prompts and subscription key material
// FUNCTIONAL DISCOVERY: Keeping the platform behind an interface lets tests
// exercise the full enable/disable lifecycle without real key generation
type PushPlatform interface {
	// RequestPermission asks the user to allow notifications. Fails with
	// types.ErrPermissionDenied when declined.
	RequestPermission(ctx context.Context) error

	// Subscribe returns the existing platform subscription or creates one
	// keyed to the given server public key.
	Subscribe(ctx context.Context, vapidPublicKey string) (*types.PushSubscription, error)

	// Unsubscribe destroys the platform subscription. Returns false when
	// none existed.
	Unsubscribe(ctx context.Context) (bool, error)
}
