package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// LocalPlatform is the default PushPlatform: it mints the client half of a
// web-push subscription — a P-256 keypair plus a 16-byte auth secret — and
// derives a delivery endpoint under the configured push gateway.
//
// Key generation uses crypto/ecdh directly; the key material is opaque to
// the rest of the layer and never used for anything but registration.
type LocalPlatform struct {
	gatewayURL string

	mu      sync.Mutex
	granted bool
	current *types.PushSubscription
}

// Interface compliance verified at compile time
var _ interfaces.PushPlatform = (*LocalPlatform)(nil)

// NewLocalPlatform creates a platform delivering through gatewayURL. granted
// reflects whether the user has allowed notifications for this client.
func NewLocalPlatform(gatewayURL string, granted bool) *LocalPlatform {
	return &LocalPlatform{gatewayURL: gatewayURL, granted: granted}
}

// RequestPermission reports the recorded opt-in decision.
func (p *LocalPlatform) RequestPermission(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.granted {
		return types.ErrPermissionDenied
	}
	return nil
}

// Subscribe returns the existing subscription or creates one keyed to the
// server public key.
func (p *LocalPlatform) Subscribe(ctx context.Context, vapidPublicKey string) (*types.PushSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return p.current, nil // Reuse, as the platform contract requires
	}

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate subscription keypair: %w", err)
	}

	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return nil, fmt.Errorf("failed to generate auth secret: %w", err)
	}

	p.current = &types.PushSubscription{
		Endpoint: p.gatewayURL + "/" + uuid.NewString(),
		Keys: types.PushKeys{
			// TECHNICAL DISCOVERY: Web push transports key material as
			// unpadded URL-safe base64 of the uncompressed P-256 point
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
	return p.current, nil
}

// Unsubscribe destroys the platform subscription. Returns false when none
// existed.
func (p *LocalPlatform) Unsubscribe(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return false, nil
	}
	p.current = nil
	return true, nil
}
