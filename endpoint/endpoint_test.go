package endpoint

import (
	"net"
	"strconv"
	"testing"
	"time"

	"netkit/protocol"
)

// TestTCPLoopbackRoundTrip covers spec.md scenario S1.
func TestTCPLoopbackRoundTrip(t *testing.T) {
	listener, err := Create(FamilyIPv4, protocol.TCP)
	if err != nil {
		t.Fatalf("create listener: %v", err)
	}
	if err := listener.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := listener.Listen(1); err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr, err := listener.LocalAddr()
	if err != nil {
		t.Fatalf("localaddr: %v", err)
	}
	host, portS, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portS)
	if err != nil {
		t.Fatalf("parse port %q: %v", portS, err)
	}

	accepted := make(chan *Endpoint, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := listener.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	client, err := Create(FamilyIPv4, protocol.TCP)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := client.Connect(host, port); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var server *Endpoint
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}

	if _, err := client.Send([]byte("ping")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	buf := make([]byte, 4)
	n, err := server.Recv(buf)
	if err != nil || n != 4 || string(buf[:n]) != "ping" {
		t.Fatalf("server recv = %q, %v, want ping", buf[:n], err)
	}
	if _, err := server.Send([]byte("pong")); err != nil {
		t.Fatalf("server send: %v", err)
	}
	n, err = client.Recv(buf)
	if err != nil || n != 4 || string(buf[:n]) != "pong" {
		t.Fatalf("client recv = %q, %v, want pong", buf[:n], err)
	}

	for _, ep := range []*Endpoint{client, server, listener} {
		if err := ep.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := ep.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
	}
}

type fakeTelemetry struct {
	sent, recv int
	errKinds   map[string]int
}

func (f *fakeTelemetry) AddBytesSent(n int)     { f.sent += n }
func (f *fakeTelemetry) AddBytesReceived(n int) { f.recv += n }
func (f *fakeTelemetry) ObserveError(kind string) {
	if f.errKinds == nil {
		f.errKinds = make(map[string]int)
	}
	f.errKinds[kind]++
}

// TestTelemetryCountsBytesAndErrors confirms SetTelemetry observes both a
// successful round trip and a translated read error after the peer closes.
func TestTelemetryCountsBytesAndErrors(t *testing.T) {
	listener, err := Create(FamilyIPv4, protocol.TCP)
	if err != nil {
		t.Fatalf("create listener: %v", err)
	}
	if err := listener.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := listener.Listen(1); err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr, err := listener.LocalAddr()
	if err != nil {
		t.Fatalf("localaddr: %v", err)
	}
	host, portS, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portS)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	accepted := make(chan *Endpoint, 1)
	go func() {
		c, err := listener.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err := Create(FamilyIPv4, protocol.TCP)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	tel := &fakeTelemetry{}
	client.SetTelemetry(tel)
	if err := client.Connect(host, port); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var server *Endpoint
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
	defer server.Close()
	defer listener.Close()

	if _, err := client.Send([]byte("ping")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	if tel.sent != 4 {
		t.Fatalf("telemetry sent = %d, want 4", tel.sent)
	}

	buf := make([]byte, 4)
	if _, err := server.Send([]byte("pong")); err != nil {
		t.Fatalf("server send: %v", err)
	}
	if _, err := client.Recv(buf); err != nil {
		t.Fatalf("client recv: %v", err)
	}
	if tel.recv != 4 {
		t.Fatalf("telemetry recv = %d, want 4", tel.recv)
	}

	server.Close()
	if _, err := client.Recv(buf); err == nil {
		t.Fatal("want error reading after peer closed")
	}
	if total := len(tel.errKinds); total == 0 {
		t.Fatal("telemetry recorded no error kind for the translated read failure")
	}
	client.Close()
}

// TestOpenWithRetryGivesUpAfterMaxRetries covers spec.md §4.B's connect
// suspension point: an unreachable port exhausts every attempt and
// surfaces the last error rather than hanging.
func TestOpenWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	start := time.Now()
	_, err := OpenWithRetry(protocol.TCP, "127.0.0.1", 1, 20*time.Millisecond, 2)
	if err == nil {
		t.Fatal("want error connecting to port 1, which nothing should be listening on")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("elapsed %s, want at least two retry delays", elapsed)
	}
}

// TestOpenWithRetrySucceedsOnFirstAttempt covers the immediate-success
// path: no sleep, single Open call.
func TestOpenWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	ln, err := Create(FamilyIPv4, protocol.TCP)
	if err != nil {
		t.Fatalf("create listener: %v", err)
	}
	defer ln.Close()
	if err := ln.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := ln.Listen(1); err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr, err := ln.LocalAddr()
	if err != nil {
		t.Fatalf("localaddr: %v", err)
	}
	host, portS, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portS)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	ep, err := OpenWithRetry(protocol.TCP, host, port, time.Second, 3)
	if err != nil {
		t.Fatalf("open with retry: %v", err)
	}
	ep.Close()
}
