//go:build windows

package endpoint

import (
	"errors"

	"golang.org/x/sys/windows"
)

// translatePlatform maps a Winsock error code into the OS-agnostic
// taxonomy. Returns Unknown when err carries no recognized WSA code.
func translatePlatform(err error) Kind {
	var errno windows.Errno
	if !errors.As(err, &errno) {
		return Unknown
	}
	switch errno {
	case windows.WSAECONNREFUSED:
		return Refused
	case windows.WSAETIMEDOUT:
		return TimedOut
	case windows.WSAEWOULDBLOCK:
		return WouldBlock
	case windows.WSAECONNRESET:
		return ConnReset
	case windows.WSAEADDRINUSE:
		return AddressInUse
	case windows.WSAEADDRNOTAVAIL, windows.WSAEINVAL:
		return InvalidAddress
	case windows.WSAEHOSTUNREACH, windows.WSAEHOSTDOWN:
		return HostUnreachable
	case windows.WSAENETUNREACH:
		return NetworkUnreachable
	case windows.WSAENETDOWN:
		return NetDown
	case windows.WSAEMFILE, windows.WSAENOBUFS:
		return ResourceExhausted
	case windows.WSAEAFNOSUPPORT, windows.WSAEPROTONOSUPPORT, windows.WSAESOCKTNOSUPPORT:
		return Unsupported
	case windows.WSAEBADF, windows.WSAENOTCONN:
		return Closed
	default:
		return Unknown
	}
}
