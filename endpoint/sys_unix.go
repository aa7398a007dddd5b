//go:build !windows

package endpoint

import (
	"net"

	"golang.org/x/sys/unix"

	"netkit/protocol"
)

type rawFD uintptr

const invalidFD rawFD = ^rawFD(0)

// socketTypeAndProto maps a protocol tag to the OS (socket type, protocol)
// pair per spec.md §4.B: unrecognized/high-level tags fall back to
// stream-over-TCP. The address family is chosen separately by sysFamily.
func socketTypeAndProto(tag protocol.Tag) (sockType, sysProto int) {
	switch tag {
	case protocol.UDP:
		return unix.SOCK_DGRAM, unix.IPPROTO_UDP
	case protocol.Raw:
		return unix.SOCK_RAW, unix.IPPROTO_RAW
	case protocol.ICMP:
		return unix.SOCK_RAW, unix.IPPROTO_ICMP
	case protocol.SCTP:
		return unix.SOCK_STREAM, unix.IPPROTO_SCTP
	case protocol.TCP:
		return unix.SOCK_STREAM, unix.IPPROTO_TCP
	default:
		return unix.SOCK_STREAM, unix.IPPROTO_TCP
	}
}

func sysFamily(f Family) int {
	if f == FamilyIPv6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

func sysSocket(family Family, tag protocol.Tag) (rawFD, error) {
	sockType, sysProto := socketTypeAndProto(tag)
	fd, err := unix.Socket(sysFamily(family), sockType, sysProto)
	if err != nil {
		return invalidFD, err
	}
	return rawFD(fd), nil
}

func sockaddrFor(family Family, host string, port int) (unix.Sockaddr, error) {
	if family == FamilyIPv6 {
		var a [16]byte
		if host != "" {
			ip := net.ParseIP(host)
			if ip == nil {
				return nil, errInvalidAddress
			}
			copy(a[:], ip.To16())
		}
		return &unix.SockaddrInet6{Port: port, Addr: a}, nil
	}
	var a [4]byte
	if host != "" {
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return nil, errInvalidAddress
		}
		copy(a[:], ip.To4())
	}
	return &unix.SockaddrInet4{Port: port, Addr: a}, nil
}

func sysBind(fd rawFD, family Family, host string, port int) error {
	sa, err := sockaddrFor(family, host, port)
	if err != nil {
		return err
	}
	return unix.Bind(int(fd), sa)
}

func sysListen(fd rawFD, backlog int) error {
	return unix.Listen(int(fd), backlog)
}

func sysConnect(fd rawFD, family Family, host string, port int) error {
	sa, err := sockaddrFor(family, host, port)
	if err != nil {
		return err
	}
	return unix.Connect(int(fd), sa)
}

func sysSetNonblock(fd rawFD, nb bool) error {
	return unix.SetNonblock(int(fd), nb)
}

func sysClose(fd rawFD) error {
	return unix.Close(int(fd))
}

func sysSetsockoptInt(fd rawFD, level, opt, value int) error {
	return unix.SetsockoptInt(int(fd), level, opt, value)
}

func sysGetsockoptInt(fd rawFD, level, opt int) (int, error) {
	return unix.GetsockoptInt(int(fd), level, opt)
}

func sysShutdown(fd rawFD, how int) error {
	return unix.Shutdown(int(fd), how)
}

const (
	shutRD   = unix.SHUT_RD
	shutWR   = unix.SHUT_WR
	shutBoth = unix.SHUT_RDWR

	solSocket   = unix.SOL_SOCKET
	soReuseAddr = unix.SO_REUSEADDR
	soBroadcast = unix.SO_BROADCAST
)
