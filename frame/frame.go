// Package frame implements the length-prefixed message codec layered over
// an endpoint: a 4-byte big-endian header followed by exactly that many
// payload bytes (spec.md §4.D).
package frame

import (
	"encoding/binary"

	"netkit/endpoint"
)

const headerLen = 4

// Send writes the 4-byte length header followed by all of b. Partial
// writes from the underlying transport are retried internally; the
// codec reports only success or a terminal failure, never a partial
// count.
func Send(ep *endpoint.Endpoint, b []byte) error {
	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if err := writeFull(ep, hdr[:]); err != nil {
		return err
	}
	return writeFull(ep, b)
}

// Recv reads exactly one framed message into buf and returns its length.
// If the decoded length exceeds len(buf), Recv fails with ProtocolError
// without reading any payload bytes beyond the header.
func Recv(ep *endpoint.Endpoint, buf []byte) (int, error) {
	var hdr [headerLen]byte
	if err := readFull(ep, hdr[:]); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int(n) > len(buf) {
		return 0, endpoint.NewProtocolError("frame: message of %d bytes exceeds buffer of %d", n, len(buf))
	}
	if err := readFull(ep, buf[:n]); err != nil {
		return 0, err
	}
	return int(n), nil
}

func writeFull(ep *endpoint.Endpoint, b []byte) error {
	for len(b) > 0 {
		n, err := ep.Send(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return endpoint.NewProtocolError("frame: zero-length write, transport stalled")
		}
		b = b[n:]
	}
	return nil
}

func readFull(ep *endpoint.Endpoint, b []byte) error {
	for len(b) > 0 {
		n, err := ep.Recv(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return endpoint.NewProtocolError("frame: connection closed mid-message")
		}
		b = b[n:]
	}
	return nil
}
