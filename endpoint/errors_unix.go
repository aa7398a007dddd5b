//go:build !windows

package endpoint

import (
	"errors"

	"golang.org/x/sys/unix"
)

// translatePlatform maps a POSIX errno surfaced by a syscall into the
// OS-agnostic taxonomy. Returns Unknown when err carries no recognized
// errno.
func translatePlatform(err error) Kind {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return Unknown
	}
	switch errno {
	case unix.ECONNREFUSED:
		return Refused
	case unix.ETIMEDOUT:
		return TimedOut
	case unix.EAGAIN:
		return WouldBlock
	case unix.ECONNRESET, unix.EPIPE:
		return ConnReset
	case unix.EADDRINUSE:
		return AddressInUse
	case unix.EADDRNOTAVAIL, unix.EINVAL:
		return InvalidAddress
	case unix.EHOSTUNREACH, unix.EHOSTDOWN:
		return HostUnreachable
	case unix.ENETUNREACH:
		return NetworkUnreachable
	case unix.ENETDOWN:
		return NetDown
	case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
		return ResourceExhausted
	case unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT, unix.ESOCKTNOSUPPORT, unix.EPROTOTYPE:
		return Unsupported
	case unix.EBADF, unix.ENOTCONN:
		return Closed
	default:
		return Unknown
	}
}
