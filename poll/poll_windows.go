//go:build windows

package poll

import (
	"time"

	"golang.org/x/sys/windows"
)

// osPoll uses WSAPoll, the Winsock equivalent of poll(2), so the semantics
// (single bounded wait, result mask per fd) match the POSIX backend.
func osPoll(fds []uintptr, requested []Events, timeoutMs int) ([]Events, error) {
	pfds := make([]windows.WSAPollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = windows.WSAPollFd{Fd: windows.Handle(fd), Events: toPollEvents(requested[i])}
	}
	if _, err := windows.WSAPoll(pfds, int32(timeoutMs)); err != nil {
		return nil, err
	}
	out := make([]Events, len(pfds))
	for i, pf := range pfds {
		out[i] = fromPollEvents(pf.REvents)
	}
	return out, nil
}

func toPollEvents(e Events) int16 {
	var pe int16
	if e&Readable != 0 {
		pe |= windows.POLLIN
	}
	if e&Writable != 0 {
		pe |= windows.POLLOUT
	}
	return pe
}

func fromPollEvents(pe int16) Events {
	var e Events
	if pe&windows.POLLIN != 0 {
		e |= Readable
	}
	if pe&windows.POLLOUT != 0 {
		e |= Writable
	}
	if pe&(windows.POLLHUP|windows.POLLERR) != 0 {
		e |= ErrorSignal
	}
	return e
}

func sleepMs(ms int) {
	if ms <= 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
