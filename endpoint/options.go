package endpoint

import (
	"errors"
	"net"
	"time"
)

// SetOption passes level/option/value through to the OS option interface
// unchanged; this package does not filter or interpret it.
func (e *Endpoint) SetOption(level, option, value int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fd, ok := e.controlFD()
	if !ok {
		return newErr("setoption", Closed, errClosed)
	}
	var err error
	ctlErr := fd.control(func(f rawFD) { err = sysSetsockoptInt(f, level, option, value) })
	if ctlErr != nil {
		return translate("setoption", ctlErr)
	}
	if err != nil {
		return translate("setoption", err)
	}
	return nil
}

// GetOption reads an OS option value through the same pass-through path as
// SetOption.
func (e *Endpoint) GetOption(level, option int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fd, ok := e.controlFD()
	if !ok {
		return 0, newErr("getoption", Closed, errClosed)
	}
	var val int
	var err error
	ctlErr := fd.control(func(f rawFD) { val, err = sysGetsockoptInt(f, level, option) })
	if ctlErr != nil {
		return 0, translate("getoption", ctlErr)
	}
	if err != nil {
		return 0, translate("getoption", err)
	}
	return val, nil
}

// SetBroadcast toggles SO_BROADCAST on a datagram endpoint.
func (e *Endpoint) SetBroadcast(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return e.SetOption(solSocket, soBroadcast, v)
}

// SetReuseAddr toggles SO_REUSEADDR, letting a UDP endpoint rebind an
// address still in TIME_WAIT (spec.md §4.G "UDP bind").
func (e *Endpoint) SetReuseAddr(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return e.SetOption(solSocket, soReuseAddr, v)
}

// SetNonblocking toggles nonblocking mode. In nonblocking mode, operations
// that would otherwise suspend fail immediately with WouldBlock.
func (e *Endpoint) SetNonblocking(nb bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nonblocking = nb
	return nil
}

// SetTimeout bounds Send/Recv (and SendTo/RecvFrom) operations; zero
// disables the timeout for that direction.
func (e *Endpoint) SetTimeout(sendMs, recvMs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendTimeout = time.Duration(sendMs) * time.Millisecond
	e.recvTimeout = time.Duration(recvMs) * time.Millisecond
}

// LocalAddr renders the endpoint's local address as a string.
func (e *Endpoint) LocalAddr() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.conn != nil:
		return e.conn.LocalAddr().String(), nil
	case e.listener != nil:
		return e.listener.Addr().String(), nil
	case e.packetConn != nil:
		return e.packetConn.LocalAddr().String(), nil
	default:
		return "", newErr("localaddr", InvalidArgument, errors.New("endpoint has no bound address"))
	}
}

// RemoteAddr renders the endpoint's peer address as a string.
func (e *Endpoint) RemoteAddr() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return e.conn.RemoteAddr().String(), nil
	}
	return "", newErr("remoteaddr", InvalidArgument, errors.New("endpoint is not connected"))
}

// ResolveHostname returns the first address for name, preferring IPv4 when
// both families are present.
func ResolveHostname(name string) (string, error) {
	ips, err := resolveCandidates(name)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("endpoint: no addresses found")
	}
	return ips[0].String(), nil
}

func resolveCandidates(host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	// IPv4 preferred where ambiguous (spec.md §4.B get-address/resolve).
	ordered := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		if ip.To4() != nil {
			ordered = append(ordered, ip)
		}
	}
	for _, ip := range ips {
		if ip.To4() == nil {
			ordered = append(ordered, ip)
		}
	}
	return ordered, nil
}
