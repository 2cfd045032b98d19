package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

// testEventServer upgrades each connection, records the bearer token, sends
// the queued payloads and closes.
type testEventServer struct {
	mu       sync.Mutex
	tokens   []string
	payloads [][]string
	conns    int
}

func (s *testEventServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.tokens = append(s.tokens, r.Header.Get("Authorization"))
		var batch []string
		if s.conns < len(s.payloads) {
			batch = s.payloads[s.conns]
		}
		s.conns++
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		for _, p := range batch {
			conn.WriteMessage(websocket.TextMessage, []byte(p))
		}
		conn.Close()
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSourceDeliversNewOrderEvents(t *testing.T) {
	events := `{"type":"new-order","payload":{"id":9,"status":"pending"}}`
	ignored := `{"type":"heartbeat","payload":{}}`
	server := &testEventServer{payloads: [][]string{{ignored, events}}}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	source := NewWebSocketSource(WebSocketConfig{
		URL:               wsURL(srv),
		Token:             "secret-token",
		InitialRetryDelay: 10 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go source.Run(ctx)

	select {
	case event := <-source.Events():
		if event.Order.ID != 9 || event.Order.Status != models.StatusPending {
			t.Errorf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	cancel()

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.tokens) == 0 || server.tokens[0] != "Bearer secret-token" {
		t.Errorf("expected bearer credential on dial, got %v", server.tokens)
	}
}

func TestWebSocketSourceReconnectsWithSameCredential(t *testing.T) {
	server := &testEventServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	resyncs := make(chan struct{}, 8)
	source := NewWebSocketSource(WebSocketConfig{
		URL:               wsURL(srv),
		Token:             "secret-token",
		InitialRetryDelay: 5 * time.Millisecond,
		OnResync:          func() { resyncs <- struct{}{} },
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go source.Run(ctx)

	// The server closes every connection immediately, so the source keeps
	// redialing; each reconnect after the first must trigger a resync.
	select {
	case <-resyncs:
	case <-time.After(2 * time.Second):
		t.Fatal("no resync after reconnect")
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if server.conns < 2 {
		t.Fatalf("expected at least 2 connections, got %d", server.conns)
	}
	for _, token := range server.tokens {
		if token != "Bearer secret-token" {
			t.Errorf("reconnect must reuse the credential, got %q", token)
		}
	}
}

func TestWebSocketSourceDegradedAfterRetryCeiling(t *testing.T) {
	degraded := make(chan error, 1)
	source := NewWebSocketSource(WebSocketConfig{
		URL:               "ws://127.0.0.1:1", // nothing listens here
		Token:             "secret-token",
		RetryCeiling:      2,
		InitialRetryDelay: 5 * time.Millisecond,
		MaxRetryDelay:     10 * time.Millisecond,
		OnDegraded:        func(err error) { degraded <- err },
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go source.Run(ctx)

	select {
	case err := <-degraded:
		if err == nil {
			t.Error("degraded callback should carry the dial error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("degraded callback never fired")
	}
}

func TestWebSocketSourceClosesEventsOnCancel(t *testing.T) {
	server := &testEventServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	source := NewWebSocketSource(WebSocketConfig{
		URL:               wsURL(srv),
		Token:             "secret-token",
		InitialRetryDelay: 5 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		source.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, ok := <-source.Events(); ok {
		// Drain until closed; buffered events are fine.
		for range source.Events() {
		}
	}
}
