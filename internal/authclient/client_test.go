package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// Mock CredentialStore for testing
type mockCredStore struct {
	mu      sync.Mutex
	session types.Session
	present bool
}

func (m *mockCredStore) Get() (types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.present
}

func (m *mockCredStore) Set(session types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.present = true
	return nil
}

func (m *mockCredStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = types.Session{}
	m.present = false
	return nil
}

// testService is a configurable fake of the auth surface: /data accepts only
// validToken, /auth/refresh rotates the pair when refreshOK is set.
type testService struct {
	mu           sync.Mutex
	validToken   string
	refreshOK    bool
	refreshCalls int32
	refreshDelay time.Duration
}

func (s *testService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/data", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := "Bearer " + s.validToken
		s.mu.Unlock()
		if r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.refreshCalls, 1)
		if s.refreshDelay > 0 {
			time.Sleep(s.refreshDelay)
		}
		if !s.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.validToken = "rotated-access"
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "rotated-access",
			"refresh_token": "rotated-refresh",
		})
	})
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.validToken = "login-access"
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "login-access",
			"refresh_token": "login-refresh",
		})
	})
	return mux
}

func TestClient_InterfaceCompliance(t *testing.T) {
	var _ interfaces.APIClient = New("http://localhost", &mockCredStore{}, nil)
}

func TestClient_InjectsBearerToken(t *testing.T) {
	service := &testService{validToken: "good"}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "good", RefreshToken: "r"})
	client := New(server.URL, creds, nil)

	resp, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !resp.OK() {
		t.Errorf("Do returned status %d, want 2xx", resp.Status)
	}
}

func TestClient_RefreshAndRetryOnRejection(t *testing.T) {
	service := &testService{validToken: "current", refreshOK: true}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "stale", RefreshToken: "refresh-1"})
	client := New(server.URL, creds, nil)

	resp, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	if err != nil {
		t.Fatalf("Do should recover via refresh, got %v", err)
	}
	if !resp.OK() {
		t.Errorf("Do returned status %d after refresh, want 2xx", resp.Status)
	}
	if calls := atomic.LoadInt32(&service.refreshCalls); calls != 1 {
		t.Errorf("refresh called %d times, want 1", calls)
	}

	// The rotated pair must be persisted
	session, ok := creds.Get()
	if !ok || session.AccessToken != "rotated-access" || session.RefreshToken != "rotated-refresh" {
		t.Errorf("stored session %+v, want rotated pair", session)
	}
}

func TestClient_ConcurrentRejectionsShareOneRefresh(t *testing.T) {
	service := &testService{validToken: "current", refreshOK: true, refreshDelay: 50 * time.Millisecond}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "stale", RefreshToken: "refresh-1"})
	client := New(server.URL, creds, nil)

	const requests = 5
	var wg sync.WaitGroup
	errs := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Do(context.Background(), http.MethodGet, "/data", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&service.refreshCalls); calls != 1 {
		t.Errorf("refresh called %d times for %d concurrent rejections, want 1", calls, requests)
	}
}

func TestClient_RefreshFailureExpiresSession(t *testing.T) {
	service := &testService{validToken: "current", refreshOK: false}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "stale", RefreshToken: "dead"})
	client := New(server.URL, creds, nil)

	var expiredCalls int32
	client.OnSessionExpired(func() { atomic.AddInt32(&expiredCalls, 1) })

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, types.ErrSessionExpired) {
		t.Fatalf("Do returned %v, want ErrSessionExpired", err)
	}
	if _, ok := creds.Get(); ok {
		t.Error("Session should be cleared after refresh rejection")
	}
	if calls := atomic.LoadInt32(&expiredCalls); calls != 1 {
		t.Errorf("expiry hook fired %d times, want 1", calls)
	}
}

func TestClient_ExpiryHookFiresOncePerEpisode(t *testing.T) {
	service := &testService{validToken: "current", refreshOK: false, refreshDelay: 50 * time.Millisecond}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "stale", RefreshToken: "dead"})
	client := New(server.URL, creds, nil)

	var expiredCalls int32
	client.OnSessionExpired(func() { atomic.AddInt32(&expiredCalls, 1) })

	const requests = 4
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
			if !errors.Is(err, types.ErrSessionExpired) {
				t.Errorf("Do returned %v, want ErrSessionExpired", err)
			}
		}()
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&expiredCalls); calls != 1 {
		t.Errorf("expiry hook fired %d times across %d rejected requests, want 1", calls, requests)
	}
}

func TestClient_RefreshSurvivesInitiatorCancellation(t *testing.T) {
	service := &testService{validToken: "current", refreshOK: true, refreshDelay: 150 * time.Millisecond}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "stale", RefreshToken: "refresh-1"})
	client := New(server.URL, creds, nil)

	ctx, cancel := context.WithCancel(context.Background())
	initiatorDone := make(chan error, 1)
	go func() {
		_, err := client.Do(ctx, http.MethodGet, "/data", nil)
		initiatorDone <- err
	}()

	// Let the initiator reach the in-flight refresh, add a waiter, then
	// cancel the initiator mid-refresh
	time.Sleep(50 * time.Millisecond)
	lateDone := make(chan error, 1)
	go func() {
		_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
		lateDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	// The waiter must get the refreshed credential; only its own retry may
	// fail for the cancelled initiator
	if err := <-lateDone; err != nil {
		t.Fatalf("waiting caller failed after the initiator cancelled: %v", err)
	}
	<-initiatorDone

	if calls := atomic.LoadInt32(&service.refreshCalls); calls != 1 {
		t.Errorf("refresh called %d times, want 1", calls)
	}
	session, ok := creds.Get()
	if !ok || session.AccessToken != "rotated-access" {
		t.Errorf("rotated session lost after initiator cancellation: %+v", session)
	}
}

func TestClient_RejectionWithoutSessionIsExpired(t *testing.T) {
	service := &testService{validToken: "current"}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	client := New(server.URL, &mockCredStore{}, nil)

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, types.ErrSessionExpired) {
		t.Fatalf("Do returned %v, want ErrSessionExpired", err)
	}
	if calls := atomic.LoadInt32(&service.refreshCalls); calls != 0 {
		t.Errorf("refresh called %d times without a stored session, want 0", calls)
	}
}

func TestClient_SecondRejectionAfterRefreshIsAuthRejected(t *testing.T) {
	// Refresh succeeds but the service still refuses the rotated token
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "still-bad"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "stale", RefreshToken: "r"})
	client := New(server.URL, creds, nil)

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, types.ErrAuthRejected) {
		t.Fatalf("Do returned %v, want ErrAuthRejected", err)
	}
}

func TestClient_TransportFailureIsNetworkUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close() // Nothing listening anymore

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "a", RefreshToken: "r"})
	client := New(url, creds, nil)

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, types.ErrNetworkUnavailable) {
		t.Fatalf("Do returned %v, want ErrNetworkUnavailable", err)
	}
}

func TestClient_RefreshPreservesOldRefreshToken(t *testing.T) {
	// Service rotates only the access credential
	mux := http.NewServeMux()
	served := false
	mux.HandleFunc("/api/v1/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer only-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		served = true
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "only-access"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	creds := &mockCredStore{}
	creds.Set(types.Session{AccessToken: "stale", RefreshToken: "keep-me"})
	client := New(server.URL, creds, nil)

	if _, err := client.Do(context.Background(), http.MethodGet, "/data", nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !served {
		t.Error("Retry never reached the data endpoint")
	}
	session, _ := creds.Get()
	if session.RefreshToken != "keep-me" {
		t.Errorf("refresh token %q after partial rotation, want keep-me", session.RefreshToken)
	}
}

func TestClient_LoginStoresCredentialPair(t *testing.T) {
	service := &testService{}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	creds := &mockCredStore{}
	client := New(server.URL, creds, nil)

	if err := client.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Error("Login with a bad password should fail")
	}
	if _, ok := creds.Get(); ok {
		t.Error("Failed login must not store a session")
	}

	if err := client.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	session, ok := creds.Get()
	if !ok || session.AccessToken != "login-access" || session.RefreshToken != "login-refresh" {
		t.Errorf("stored session %+v after login", session)
	}

	if err := client.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, ok := creds.Get(); ok {
		t.Error("Logout should clear the stored session")
	}
}
