// Package testutil holds helpers shared by HTTP-facing tests.
package testutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
)

// SSEServer is an HTTP test server bound to the IPv4 loopback interface so
// streaming tests behave the same on hosts where ::1 is unavailable.
type SSEServer struct {
	URL      string
	listener net.Listener
	server   *http.Server
}

// NewSSEServer starts a test server for the given handler.
func NewSSEServer(t *testing.T, handler http.Handler) *SSEServer {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	s := &SSEServer{
		URL:      "http://" + l.Addr().String(),
		listener: l,
		server:   &http.Server{Handler: handler},
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("test server serve error: %v", err)
		}
	}()
	return s
}

// Close shuts the server down.
func (s *SSEServer) Close() {
	_ = s.server.Shutdown(context.Background())
}
