package cache

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// Paths carrying these markers are never intercepted: API mutations and the
// realtime channel must always hit the network directly.
var excludedMarkers = []string{"/api/", "/ws", "/socket.io"}

// Header markers distinguishing gateway-synthesized responses.
const (
	headerCacheHit = "X-Teamwire-Cache"
	headerOffline  = "X-Teamwire-Offline"
)

// Gateway is a transparent network-first read-through cache for
// document-class GET traffic
// ARCHITECTURAL DISCOVERY: Implemented as an http.RoundTripper so it shadows
// read traffic without sharing any state with the components issuing it;
// interception is purely request/response values
type Gateway struct {
	store  *Store
	next   http.RoundTripper
	origin *url.URL
}

// Interface compliance verified at compile time
var _ http.RoundTripper = (*Gateway)(nil)

// NewGateway wraps next with offline fallback for same-origin GET document
// traffic. next may be nil for http.DefaultTransport.
func NewGateway(store *Store, next http.RoundTripper, originURL string) (*Gateway, error) {
	if next == nil {
		next = http.DefaultTransport
	}
	origin, err := url.Parse(originURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache origin URL: %w", err)
	}
	return &Gateway{store: store, next: next, origin: origin}, nil
}

// RoundTrip applies the network-first policy: try the network, persist a
// successful response, and on transport failure degrade through cached
// entry → cached root document (navigations) → synthetic offline response.
// The gateway never returns an error for eligible traffic.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	if !g.eligible(req) {
		return g.next.RoundTrip(req)
	}

	key := cacheKey(req)

	resp, err := g.next.RoundTrip(req)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			g.persist(key, resp)
		}
		return resp, nil
	}

	// Network unavailable: last-known-good lookup
	if cached := g.lookup(req, key); cached != nil {
		return cached, nil
	}

	// FUNCTIONAL DISCOVERY: Navigation requests fall back to the cached root
	// document so the application shell still renders offline
	if isNavigation(req) {
		if cached := g.lookup(req, rootKey(g.origin)); cached != nil {
			return cached, nil
		}
	}

	return offlineResponse(req), nil
}

// eligible restricts interception to same-origin GET document/static traffic.
func (g *Gateway) eligible(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.URL.Host != g.origin.Host {
		return false
	}
	for _, marker := range excludedMarkers {
		if strings.Contains(req.URL.Path, marker) {
			return false
		}
	}
	return true
}

// persist clones the response body into the store and restores it for the
// caller.
func (g *Gateway) persist(key string, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		// The body is gone either way; hand the caller what was read
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if err := g.store.Put(key, resp.StatusCode, resp.Header, body); err != nil {
		log.Printf("Cache store failed for %s: %v", key, err)
	}
}

// lookup synthesizes a response from a cached entry, if one exists.
func (g *Gateway) lookup(req *http.Request, key string) *http.Response {
	entry, ok, err := g.store.Get(key)
	if err != nil {
		log.Printf("Cache read failed for %s: %v", key, err)
		return nil
	}
	if !ok {
		return nil
	}

	header := entry.Header.Clone()
	header.Set(headerCacheHit, "hit")
	return &http.Response{
		StatusCode:    entry.Status,
		Status:        fmt.Sprintf("%d %s", entry.Status, http.StatusText(entry.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

// offlineResponse is the last-resort synthetic response marking offline
// failure with a distinct status. Never an error: offline is a degraded
// response, not an exception.
func offlineResponse(req *http.Request) *http.Response {
	body := []byte("offline")
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set(headerOffline, "1")
	return &http.Response{
		StatusCode:    http.StatusServiceUnavailable,
		Status:        "503 Service Unavailable",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// isNavigation identifies document navigations by their Accept header.
func isNavigation(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// cacheKey is the normalized request identity: method plus URL without
// fragment.
func cacheKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	return req.Method + " " + u.String()
}

// rootKey is the cache identity of the application shell document.
func rootKey(origin *url.URL) string {
	u := *origin
	u.Path = "/"
	u.RawQuery = ""
	u.Fragment = ""
	return http.MethodGet + " " + u.String()
}
