package interfaces

import (
	"context"

	"teamwire/pkg/types"
)

// APIClient performs authenticated requests against the service REST surface
// ARCHITECTURAL DISCOVERY: Components that consume the API depend on this
// interface rather than the concrete client, so tests can script responses
// without a network
type APIClient interface {
	// Do sends method endpoint with an optional JSON body and returns the
	// final response after any transparent credential refresh. It fails with
	// types.ErrSessionExpired when no refresh is possible and with
	// types.ErrNetworkUnavailable on transport failure.
	Do(ctx context.Context, method, endpoint string, body interface{}) (*types.APIResponse, error)
}

// PushRegistrar is the slice of the REST surface the push subscription
// manager needs.
type PushRegistrar interface {
	// VapidKey fetches the server public key push subscriptions are bound to.
	VapidKey(ctx context.Context) (string, error)

	// SubscribePush registers a subscription with the service.
	SubscribePush(ctx context.Context, sub *types.PushSubscription) error

	// UnsubscribePush removes this client's subscriptions from the service.
	UnsubscribePush(ctx context.Context) error
}
