//go:build !windows

package poll

import "golang.org/x/sys/unix"

func toPollEvents(e Events) int16 {
	var pe int16
	if e&Readable != 0 {
		pe |= unix.POLLIN
	}
	if e&Writable != 0 {
		pe |= unix.POLLOUT
	}
	if e&ErrorSignal != 0 {
		pe |= unix.POLLERR
	}
	return pe
}

func fromPollEvents(pe int16) Events {
	var e Events
	if pe&unix.POLLIN != 0 {
		e |= Readable
	}
	if pe&unix.POLLOUT != 0 {
		e |= Writable
	}
	if pe&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		e |= ErrorSignal
	}
	return e
}

// osPoll submits one poll(2) call covering all fds and returns each
// registration's result mask in the same order.
func osPoll(fds []uintptr, requested []Events, timeoutMs int) ([]Events, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: toPollEvents(requested[i])}
	}
	for {
		_, err := unix.Poll(pfds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	out := make([]Events, len(pfds))
	for i, pf := range pfds {
		out[i] = fromPollEvents(pf.Revents)
	}
	return out, nil
}

func sleepMs(ms int) {
	if ms <= 0 {
		return
	}
	unix.Poll(nil, ms) //nolint:errcheck // timeout-only wait, no fds to poll
}
