package wsclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	gorilla "github.com/gorilla/websocket"

	"netkit/endpoint"
	"netkit/protocol"
	"netkit/telemetry"
)

// newGorillaPeer starts an independent WebSocket server, built on
// gorilla/websocket rather than this package, so the handshake and frame
// tests exercise real interop instead of our own codec on both ends.
func newGorillaPeer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gorilla.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("peer upgrade: %v", err)
			return
		}
		defer conn.Close()
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("peer read: %v", err)
			return
		}
		if mt != gorilla.TextMessage {
			t.Errorf("peer got message type %d, want text", mt)
			return
		}
		echo := append([]byte("echo:"), msg...)
		if err := conn.WriteMessage(gorilla.TextMessage, echo); err != nil {
			t.Errorf("peer write: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialEndpoint(t *testing.T, srv *httptest.Server) (*endpoint.Endpoint, string) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	host, portS, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host %q: %v", u.Host, err)
	}
	port, err := strconv.Atoi(portS)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	ep, err := endpoint.Create(endpoint.FamilyIPv4, protocol.TCP)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ep.Connect(host, port); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ep.SetTimeout(2000, 2000)
	t.Cleanup(func() { ep.Close() })
	return ep, u.Host
}

// TestHandshakeAndTextRoundTrip drives the client handshake and a single
// text frame round trip against an independent gorilla/websocket peer.
func TestHandshakeAndTextRoundTrip(t *testing.T) {
	srv := newGorillaPeer(t)
	ep, host := dialEndpoint(t, srv)

	if err := Handshake(ep, host, "/"); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	reg := telemetry.New()
	if err := SendText(ep, []byte("hello"), reg); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 256)
	op, n, err := RecvText(ep, buf, reg)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if op != OpText {
		t.Fatalf("opcode = %v, want OpText", op)
	}
	if got := string(buf[:n]); got != "echo:hello" {
		t.Fatalf("payload = %q, want %q", got, "echo:hello")
	}
}
