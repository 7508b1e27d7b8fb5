package app

import (
	"context"
	"path/filepath"
	"testing"

	"teamwire/internal/cache"
	"teamwire/internal/config"
	"teamwire/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Store.CredentialsPath = filepath.Join(dir, "credentials.db")
	cfg.Store.CachePath = filepath.Join(dir, "cache.db")
	return cfg
}

func TestNewClient_WiresAllComponents(t *testing.T) {
	client, err := NewClient(testConfig(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Stop(context.Background())

	if client.API() == nil {
		t.Error("API surface not wired")
	}
	if client.Channel() == nil {
		t.Error("realtime channel not wired")
	}
	if client.Presence() == nil {
		t.Error("presence tracker not wired")
	}
	if client.Push() == nil {
		t.Error("push manager not wired")
	}
}

func TestClient_HTTPClientCarriesOfflineGateway(t *testing.T) {
	client, err := NewClient(testConfig(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Stop(context.Background())

	httpClient := client.HTTP()
	if httpClient == nil {
		t.Fatal("HTTP client not exposed")
	}
	if _, ok := httpClient.Transport.(*cache.Gateway); !ok {
		t.Errorf("HTTP transport is %T, want the cache gateway", httpClient.Transport)
	}
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Generation = ""

	if _, err := NewClient(cfg); err == nil {
		t.Fatal("NewClient should reject an invalid configuration")
	}
}

func TestClient_StartWithoutSessionStaysIdle(t *testing.T) {
	client, err := NewClient(testConfig(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Stop(context.Background())

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// No stored session, so the channel must not have dialed
	if status := client.Channel().Status(); status != types.StatusDisconnected {
		t.Errorf("channel status %s without a session, want disconnected", status)
	}
}

func TestClient_StopIsCleanAfterStart(t *testing.T) {
	client, err := NewClient(testConfig(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := client.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if status := client.Channel().Status(); status != types.StatusClosed {
		t.Errorf("channel status %s after Stop, want closed", status)
	}
}
