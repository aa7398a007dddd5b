// Package tlssession implements the TLS session contract of spec.md
// §4.F: a session wraps one endpoint and exposes send/recv that preserve
// byte-stream semantics. The contract is backend-agnostic; this package
// backs it with crypto/tls, since the corpus's own inline stub (a fixed-
// byte XOR) is explicitly called out as unfit for any non-test use.
package tlssession

import (
	"crypto/tls"
	"net"

	"netkit/endpoint"
)

// Session is a secure channel bound to exactly one endpoint. After Wrap
// succeeds the underlying endpoint must not be used directly; all I/O
// goes through Send/Recv.
type Session struct {
	isServer bool
	conn     *tls.Conn
}

// New allocates a session configured for the given role. The session is
// inert until Wrap binds it to an endpoint and performs the handshake.
func New(isServer bool, config *tls.Config) *Session {
	if config == nil {
		config = &tls.Config{}
	}
	return &Session{isServer: isServer, conn: nil}
}

// Wrap binds s to ep and performs the role-appropriate handshake: a
// peer-initiated handshake on the server role, an outbound handshake on
// the client role (spec.md §4.F). ep must be a connected stream endpoint.
func Wrap(s *Session, ep *endpoint.Endpoint, config *tls.Config) error {
	nc, err := ep.NetConn()
	if err != nil {
		return err
	}
	if config == nil {
		config = &tls.Config{}
	}
	var tc *tls.Conn
	if s.isServer {
		tc = tls.Server(nc, config)
	} else {
		tc = tls.Client(nc, config)
	}
	if err := tc.Handshake(); err != nil {
		return endpoint.NewProtocolError("tlssession: handshake failed: %v", err)
	}
	s.conn = tc
	return nil
}

// WrapConn is the same bind-and-handshake step for callers that already
// hold a net.Conn rather than an Endpoint, such as a connection accepted
// from a plain net.Listener.
func WrapConn(s *Session, nc net.Conn, config *tls.Config) error {
	if config == nil {
		config = &tls.Config{}
	}
	var tc *tls.Conn
	if s.isServer {
		tc = tls.Server(nc, config)
	} else {
		tc = tls.Client(nc, config)
	}
	if err := tc.Handshake(); err != nil {
		return endpoint.NewProtocolError("tlssession: handshake failed: %v", err)
	}
	s.conn = tc
	return nil
}

// Send writes b over the secure channel, retrying partial writes until
// all bytes are sent or the channel fails.
func (s *Session) Send(b []byte) (int, error) {
	n, err := s.conn.Write(b)
	if err != nil {
		return n, endpoint.NewProtocolError("tlssession: send: %v", err)
	}
	return n, nil
}

// Recv reads into buf, returning whatever the secure channel has ready.
func (s *Session) Recv(buf []byte) (int, error) {
	n, err := s.conn.Read(buf)
	if err != nil {
		return n, endpoint.NewProtocolError("tlssession: recv: %v", err)
	}
	return n, nil
}

// Free gracefully closes the session, notifying the peer, then releases
// it (spec.md §4.F "free").
func (s *Session) Free() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
