//go:build windows

package endpoint

import (
	"net"

	"golang.org/x/sys/windows"

	"netkit/protocol"
)

type rawFD uintptr

const invalidFD rawFD = rawFD(windows.InvalidHandle)

func socketTypeAndProto(tag protocol.Tag) (sockType, sysProto int) {
	switch tag {
	case protocol.UDP:
		return windows.SOCK_DGRAM, windows.IPPROTO_UDP
	case protocol.Raw:
		return windows.SOCK_RAW, windows.IPPROTO_RAW
	case protocol.ICMP:
		return windows.SOCK_RAW, windows.IPPROTO_ICMP
	case protocol.TCP:
		return windows.SOCK_STREAM, windows.IPPROTO_TCP
	default:
		return windows.SOCK_STREAM, windows.IPPROTO_TCP
	}
}

func sysFamily(f Family) int {
	if f == FamilyIPv6 {
		return windows.AF_INET6
	}
	return windows.AF_INET
}

func sysSocket(family Family, tag protocol.Tag) (rawFD, error) {
	sockType, sysProto := socketTypeAndProto(tag)
	fd, err := windows.Socket(sysFamily(family), sockType, sysProto)
	if err != nil {
		return invalidFD, err
	}
	return rawFD(fd), nil
}

func sockaddrFor(family Family, host string, port int) (windows.Sockaddr, error) {
	if family == FamilyIPv6 {
		var a [16]byte
		if host != "" {
			ip := net.ParseIP(host)
			if ip == nil {
				return nil, errInvalidAddress
			}
			copy(a[:], ip.To16())
		}
		return &windows.SockaddrInet6{Port: port, Addr: a}, nil
	}
	var a [4]byte
	if host != "" {
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return nil, errInvalidAddress
		}
		copy(a[:], ip.To4())
	}
	return &windows.SockaddrInet4{Port: port, Addr: a}, nil
}

func sysBind(fd rawFD, family Family, host string, port int) error {
	sa, err := sockaddrFor(family, host, port)
	if err != nil {
		return err
	}
	return windows.Bind(windows.Handle(fd), sa)
}

func sysListen(fd rawFD, backlog int) error {
	return windows.Listen(windows.Handle(fd), backlog)
}

func sysConnect(fd rawFD, family Family, host string, port int) error {
	sa, err := sockaddrFor(family, host, port)
	if err != nil {
		return err
	}
	return windows.Connect(windows.Handle(fd), sa)
}

func sysSetNonblock(fd rawFD, nb bool) error {
	var mode uint32
	if nb {
		mode = 1
	}
	return windows.IoctlSocket(windows.Handle(fd), windows.FIONBIO, &mode)
}

func sysClose(fd rawFD) error {
	return windows.Closesocket(windows.Handle(fd))
}

func sysSetsockoptInt(fd rawFD, level, opt, value int) error {
	v := int32(value)
	return windows.Setsockopt(windows.Handle(fd), int32(level), int32(opt),
		(*byte)(unsafePointer(&v)), 4)
}

func sysGetsockoptInt(fd rawFD, level, opt int) (int, error) {
	var v int32
	l := int32(4)
	err := windows.Getsockopt(windows.Handle(fd), int32(level), int32(opt),
		(*byte)(unsafePointer(&v)), &l)
	return int(v), err
}

func sysShutdown(fd rawFD, how int) error {
	return windows.Shutdown(windows.Handle(fd), how)
}

const (
	shutRD   = windows.SHUT_RD
	shutWR   = windows.SHUT_WR
	shutBoth = windows.SHUT_RDWR

	solSocket   = windows.SOL_SOCKET
	soReuseAddr = windows.SO_REUSEADDR
	soBroadcast = windows.SO_BROADCAST
)
