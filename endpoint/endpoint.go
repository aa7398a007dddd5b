// Package endpoint provides a uniform abstraction over POSIX and Windows
// socket APIs: protocol selection, blocking/nonblocking I/O, option
// management, address resolution, and OS-agnostic error translation.
package endpoint

import (
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"netkit/internal/jitter"
	"netkit/protocol"
)

// Family selects the address family an Endpoint is created with.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// SocketKind is the socket type backing an Endpoint, derived from its protocol tag.
type SocketKind int

const (
	KindStream SocketKind = iota
	KindDatagram
	KindRaw
)

var errInvalidAddress = errors.New("endpoint: invalid address")
var errClosed = errors.New("endpoint: use of closed endpoint")

func kindForTag(tag protocol.Tag) SocketKind {
	switch tag {
	case protocol.UDP:
		return KindDatagram
	case protocol.Raw, protocol.ICMP:
		return KindRaw
	default:
		return KindStream
	}
}

// Endpoint is an owned handle over one transport descriptor. A live
// Endpoint has a valid descriptor (raw, or wrapped in a net.Conn /
// net.Listener / net.PacketConn); a closed Endpoint has it replaced with a
// sentinel and further I/O fails with Closed.
type Endpoint struct {
	mu     sync.Mutex
	family Family
	kind   SocketKind
	tag    protocol.Tag
	closed bool

	fd         rawFD // valid only between Create and the first Bind/Listen/Connect wrap
	conn       net.Conn
	listener   net.Listener
	packetConn net.PacketConn

	nonblocking bool
	sendTimeout time.Duration
	recvTimeout time.Duration

	telemetry telemetryHook
}

// telemetryHook is the subset of telemetry.Registry that endpoint needs,
// kept narrow so this package never imports telemetry's prometheus deps
// unless a caller opts in.
type telemetryHook interface {
	AddBytesSent(n int)
	AddBytesReceived(n int)
	ObserveError(kind string)
}

// SetTelemetry attaches an optional counter sink; nil (the default)
// disables instrumentation entirely.
func (e *Endpoint) SetTelemetry(t telemetryHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.telemetry = t
}

// Create allocates a descriptor for the given family and protocol tag. Tags
// without a dedicated OS mapping fall back to stream-over-TCP (spec.md
// §4.B).
func Create(family Family, tag protocol.Tag) (*Endpoint, error) {
	fd, err := sysSocket(family, tag)
	if err != nil {
		return nil, translate("create", err)
	}
	return &Endpoint{
		family: family,
		kind:   kindForTag(tag),
		tag:    tag,
		fd:     fd,
	}, nil
}

// Family reports the address family this endpoint was created with.
func (e *Endpoint) Family() Family { return e.family }

// Kind reports the socket type this endpoint was created with.
func (e *Endpoint) Kind() SocketKind { return e.kind }

// Tag reports the protocol tag this endpoint was created with.
func (e *Endpoint) Tag() protocol.Tag { return e.tag }

func (e *Endpoint) liveFD(op string) (rawFD, error) {
	if e.closed {
		return invalidFD, newErr(op, Closed, errClosed)
	}
	if e.fd == invalidFD {
		return invalidFD, newErr(op, InvalidArgument, errors.New("endpoint already wrapped"))
	}
	return e.fd, nil
}

// Bind associates the endpoint with a local address. An empty host binds to
// all interfaces.
func (e *Endpoint) Bind(host string, port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fd, err := e.liveFD("bind")
	if err != nil {
		return err
	}
	_ = sysSetsockoptInt(fd, solSocket, soReuseAddr, 1)
	if err := sysBind(fd, e.family, host, port); err != nil {
		if errors.Is(err, errInvalidAddress) {
			return newErr("bind", InvalidAddress, err)
		}
		return translate("bind", err)
	}
	if e.kind == KindDatagram {
		return e.wrapPacketConn("bind")
	}
	return nil
}

// Listen transitions a stream endpoint to accepting state.
func (e *Endpoint) Listen(backlog int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fd, err := e.liveFD("listen")
	if err != nil {
		return err
	}
	if err := sysListen(fd, backlog); err != nil {
		return translate("listen", err)
	}
	return e.wrapListener("listen")
}

func (e *Endpoint) wrapListener(op string) error {
	f := os.NewFile(uintptr(e.fd), "netkit-listener")
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return translate(op, err)
	}
	e.listener = ln
	e.fd = invalidFD
	return nil
}

func (e *Endpoint) wrapPacketConn(op string) error {
	f := os.NewFile(uintptr(e.fd), "netkit-packetconn")
	defer f.Close()
	pc, err := net.FilePacketConn(f)
	if err != nil {
		return translate(op, err)
	}
	e.packetConn = pc
	e.fd = invalidFD
	return nil
}

func (e *Endpoint) wrapConn(op string) error {
	f := os.NewFile(uintptr(e.fd), "netkit-conn")
	defer f.Close()
	conn, err := net.FileConn(f)
	if err != nil {
		return translate(op, err)
	}
	e.conn = conn
	e.fd = invalidFD
	return nil
}

// Accept blocks until a peer connects, returning a new Endpoint that
// inherits family/kind/tag from the listener.
func (e *Endpoint) Accept() (*Endpoint, error) {
	e.mu.Lock()
	ln := e.listener
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return nil, newErr("accept", Closed, errClosed)
	}
	if ln == nil {
		return nil, newErr("accept", InvalidArgument, errors.New("endpoint is not listening"))
	}
	conn, err := ln.Accept()
	if err != nil {
		return nil, translate("accept", err)
	}
	return &Endpoint{family: e.family, kind: e.kind, tag: e.tag, conn: conn}, nil
}

// connectIP attempts sysConnect against a single resolved address, using
// the endpoint's already-fixed family, and wraps the descriptor into a
// net.Conn on success. Errors are returned already translated.
func (e *Endpoint) connectIP(ip net.IP, port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fd, err := e.liveFD("connect")
	if err != nil {
		return err
	}
	if cerr := sysConnect(fd, e.family, ip.String(), port); cerr != nil {
		return translate("connect", cerr)
	}
	return e.wrapConn("connect")
}

// Connect resolves host via the system resolver and attempts each
// candidate matching the endpoint's own family, in order, succeeding on
// the first peer that accepts the connection. An Endpoint's family is
// fixed at Create time; use Open to resolve-then-create across families.
func (e *Endpoint) Connect(host string, port int) error {
	candidates, err := resolveCandidates(host)
	if err != nil {
		return newErr("connect", InvalidAddress, err)
	}

	var lastErr error
	tried := false
	for _, ip := range candidates {
		fam := FamilyIPv4
		if ip.To4() == nil {
			fam = FamilyIPv6
		}
		if fam != e.family {
			continue
		}
		tried = true
		if cerr := e.connectIP(ip, port); cerr != nil {
			lastErr = cerr
			continue
		}
		return nil
	}
	if !tried {
		return newErr("connect", InvalidAddress, errors.New("no candidates match endpoint family"))
	}
	if lastErr == nil {
		lastErr = newErr("connect", InvalidAddress, errors.New("no usable address candidates"))
	}
	return lastErr
}

// Open resolves host first, then creates and connects a socket per
// candidate family in order, so a host that resolves only to AAAA
// records (an IPv6-only deployment) is reachable instead of being
// rejected by a family guessed from string parsing alone (spec.md §1,
// §4.B: IPv6-only hosts must be permitted). On any failure it closes the
// partial descriptor before trying the next candidate.
func Open(tag protocol.Tag, host string, port int) (*Endpoint, error) {
	candidates, err := resolveCandidates(host)
	if err != nil {
		return nil, newErr("open", InvalidAddress, err)
	}
	if len(candidates) == 0 {
		return nil, newErr("open", InvalidAddress, errors.New("no usable address candidates"))
	}

	var lastErr error
	for _, ip := range candidates {
		family := FamilyIPv4
		if ip.To4() == nil {
			family = FamilyIPv6
		}
		ep, err := Create(family, tag)
		if err != nil {
			lastErr = err
			continue
		}
		if cerr := ep.connectIP(ip, port); cerr != nil {
			_ = ep.Close()
			lastErr = cerr
			continue
		}
		return ep, nil
	}
	return nil, lastErr
}

// OpenWithRetry calls Open up to maxRetries+1 times, sleeping a
// jitter.Delay(retryDelay) between attempts, and returns the first
// success. The config package's ConnectConfig supplies retryDelay and
// maxRetries for the "connect" suspension point (spec.md §4.B).
func OpenWithRetry(tag protocol.Tag, host string, port int, retryDelay time.Duration, maxRetries int) (*Endpoint, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(jitter.Delay(retryDelay))
		}
		ep, err := Open(tag, host, port)
		if err == nil {
			return ep, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (e *Endpoint) applyDeadline(isSend bool) {
	var conn interface {
		SetReadDeadline(time.Time) error
		SetWriteDeadline(time.Time) error
	}
	if e.conn != nil {
		conn = e.conn
	} else if e.packetConn != nil {
		conn = e.packetConn
	} else {
		return
	}
	if e.nonblocking {
		now := time.Now()
		if isSend {
			conn.SetWriteDeadline(now)
		} else {
			conn.SetReadDeadline(now)
		}
		return
	}
	d := e.recvTimeout
	if isSend {
		d = e.sendTimeout
	}
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	if isSend {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetReadDeadline(deadline)
	}
}

// Send writes bytes in a single syscall; it may return a short count.
func (e *Endpoint) Send(b []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, newErr("send", Closed, errClosed)
	}
	if e.conn == nil {
		return 0, newErr("send", InvalidArgument, errors.New("endpoint not connected"))
	}
	e.applyDeadline(true)
	n, err := e.conn.Write(b)
	if err != nil {
		return n, e.translateIO("send", err)
	}
	if e.telemetry != nil {
		e.telemetry.AddBytesSent(n)
	}
	return n, nil
}

// Recv reads into buf in a single syscall; it may return a short count.
func (e *Endpoint) Recv(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, newErr("recv", Closed, errClosed)
	}
	if e.conn == nil {
		return 0, newErr("recv", InvalidArgument, errors.New("endpoint not connected"))
	}
	e.applyDeadline(false)
	n, err := e.conn.Read(buf)
	if err != nil {
		return n, e.translateIO("recv", err)
	}
	if e.telemetry != nil {
		e.telemetry.AddBytesReceived(n)
	}
	return n, nil
}

// SendTo writes a single datagram to host:port.
func (e *Endpoint) SendTo(b []byte, host string, port int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, newErr("sendto", Closed, errClosed)
	}
	if e.packetConn == nil {
		return 0, newErr("sendto", InvalidArgument, errors.New("endpoint is not bound"))
	}
	e.applyDeadline(true)
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	n, err := e.packetConn.WriteTo(b, addr)
	if err != nil {
		return n, e.translateIO("sendto", err)
	}
	if e.telemetry != nil {
		e.telemetry.AddBytesSent(n)
	}
	return n, nil
}

// RecvFrom reads a single datagram, returning the sender's address and port.
func (e *Endpoint) RecvFrom(buf []byte) (n int, host string, port int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, "", 0, newErr("recvfrom", Closed, errClosed)
	}
	if e.packetConn == nil {
		return 0, "", 0, newErr("recvfrom", InvalidArgument, errors.New("endpoint is not bound"))
	}
	e.applyDeadline(false)
	n, addr, rerr := e.packetConn.ReadFrom(buf)
	if rerr != nil {
		return n, "", 0, e.translateIO("recvfrom", rerr)
	}
	if e.telemetry != nil {
		e.telemetry.AddBytesReceived(n)
	}
	if ua, ok := addr.(*net.UDPAddr); ok {
		return n, ua.IP.String(), ua.Port, nil
	}
	h, p, _ := net.SplitHostPort(addr.String())
	pi, _ := strconv.Atoi(p)
	return n, h, pi, nil
}

// translateIO distinguishes a nonblocking "would suspend" deadline from a
// real configured timeout.
func (e *Endpoint) translateIO(op string, err error) error {
	var translated *Error
	switch {
	case e.nonblocking && errors.Is(err, os.ErrDeadlineExceeded):
		translated = newErr(op, WouldBlock, err)
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && !e.nonblocking {
			translated = newErr(op, TimedOut, err)
		} else {
			translated = translate(op, err)
		}
	}
	if e.telemetry != nil {
		e.telemetry.ObserveError(translated.Kind.String())
	}
	return translated
}

// Close is idempotent: the second call is a no-op.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	switch {
	case e.conn != nil:
		err = e.conn.Close()
	case e.listener != nil:
		err = e.listener.Close()
	case e.packetConn != nil:
		err = e.packetConn.Close()
	case e.fd != invalidFD:
		err = sysClose(e.fd)
		e.fd = invalidFD
	}
	if err != nil {
		return translate("close", err)
	}
	return nil
}

// Direction selects which half of a full-duplex stream Shutdown disables.
type Direction int

const (
	ShutdownRead Direction = iota
	ShutdownWrite
	ShutdownBoth
)

// Shutdown disables reads, writes, or both without releasing the
// descriptor.
func (e *Endpoint) Shutdown(dir Direction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return newErr("shutdown", Closed, errClosed)
	}
	type shutdowner interface {
		CloseRead() error
		CloseWrite() error
	}
	how := shutBoth
	switch dir {
	case ShutdownRead:
		how = shutRD
	case ShutdownWrite:
		how = shutWR
	}
	if sc, ok := e.conn.(syscallConn); ok {
		raw, rerr := sc.SyscallConn()
		if rerr != nil {
			return translate("shutdown", rerr)
		}
		var serr error
		ctlErr := raw.Control(func(fd uintptr) {
			serr = sysShutdown(rawFD(fd), how)
		})
		if ctlErr != nil {
			return translate("shutdown", ctlErr)
		}
		if serr != nil {
			return translate("shutdown", serr)
		}
		return nil
	}
	return newErr("shutdown", Unsupported, errors.New("endpoint does not support shutdown"))
}

type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// fdController runs a closure with access to the endpoint's raw descriptor,
// whether it is still a bare fd (pre-wrap) or backed by a net.Conn-family
// value (post-wrap).
type fdController interface {
	control(f func(rawFD)) error
}

type directFD rawFD

func (d directFD) control(f func(rawFD)) error {
	f(rawFD(d))
	return nil
}

type syscallFD struct{ raw syscall.RawConn }

func (s syscallFD) control(f func(rawFD)) error {
	return s.raw.Control(func(fd uintptr) { f(rawFD(fd)) })
}

// RawFD exposes the endpoint's current OS descriptor for use by the poll
// package's readiness multiplexer. The value is a snapshot: it stays valid
// for the lifetime of the endpoint, but callers must not close it
// themselves — Endpoint.Close remains the sole owner.
func (e *Endpoint) RawFD() (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fd, ok := e.controlFD()
	if !ok {
		return 0, newErr("rawfd", Closed, errClosed)
	}
	var v uintptr
	err := fd.control(func(f rawFD) { v = uintptr(f) })
	if err != nil {
		return 0, translate("rawfd", err)
	}
	return v, nil
}

// NetConn exposes the endpoint's underlying stream connection for
// layering a protocol (such as a TLS session) directly over the wire.
// It only succeeds for a connected stream endpoint (post-Connect or
// post-Accept); once returned, the caller owns all I/O on it and must not
// call Send/Recv on the Endpoint directly.
func (e *Endpoint) NetConn() (net.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, newErr("netconn", Closed, errClosed)
	}
	if e.conn == nil {
		return nil, newErr("netconn", InvalidArgument, errors.New("endpoint: not a connected stream endpoint"))
	}
	return e.conn, nil
}

// PacketConn exposes the endpoint's underlying datagram connection for
// layering a protocol (such as multicast group membership) directly over
// the wire. It only succeeds for a bound datagram endpoint.
func (e *Endpoint) PacketConn() (net.PacketConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, newErr("packetconn", Closed, errClosed)
	}
	if e.packetConn == nil {
		return nil, newErr("packetconn", InvalidArgument, errors.New("endpoint: not a bound datagram endpoint"))
	}
	return e.packetConn, nil
}

func (e *Endpoint) controlFD() (fdController, bool) {
	if e.closed {
		return nil, false
	}
	if e.fd != invalidFD {
		return directFD(e.fd), true
	}
	var sc syscall.Conn
	switch {
	case e.conn != nil:
		sc, _ = e.conn.(syscall.Conn)
	case e.packetConn != nil:
		sc, _ = e.packetConn.(syscall.Conn)
	case e.listener != nil:
		sc, _ = e.listener.(syscall.Conn)
	}
	if sc == nil {
		return nil, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, false
	}
	return syscallFD{raw}, true
}
