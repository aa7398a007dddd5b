// Package wsclient implements the client half of a minimal WebSocket
// codec: the RFC 6455 opening handshake, masked text-frame send, and
// unmasked text-frame receive, layered over an endpoint (spec.md §4.E).
package wsclient

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"netkit/endpoint"
)

// Opcode identifies a frame's payload interpretation.
type Opcode byte

const (
	OpText Opcode = 0x1
)

// telemetryHook is the subset of telemetry.Registry wsclient reports
// through; pass nil to disable instrumentation.
type telemetryHook interface {
	AddWSFramesSent(n int)
	AddWSFramesRecv(n int)
}

// Handshake performs the client-role RFC 6455 opening handshake over ep:
// it generates a CSPRNG key, sends the upgrade request for path/host, and
// accepts the response iff it contains a "101" status token and a
// Sec-WebSocket-Accept header (the test-grade acceptance check the spec
// prescribes; see spec.md §9 for the hardening note this intentionally
// skips).
func Handshake(ep *endpoint.Endpoint, host, path string) error {
	keyRaw := make([]byte, 16)
	if _, err := rand.Read(keyRaw); err != nil {
		return endpoint.NewProtocolError("wsclient: generating key: %v", err)
	}
	key := base64.StdEncoding.EncodeToString(keyRaw)

	req := fmt.Sprintf(
		"GET %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Key: %s\r\n"+
			"Sec-WebSocket-Version: 13\r\n"+
			"\r\n",
		path, host, key)

	if err := writeFull(ep, []byte(req)); err != nil {
		return err
	}

	resp := make([]byte, 4096)
	n, err := ep.Recv(resp)
	if err != nil {
		return err
	}
	resp = resp[:n]

	if !bytes.Contains(resp, []byte("101")) {
		return endpoint.NewProtocolError("wsclient: handshake rejected, no 101 status in response")
	}
	if !strings.Contains(strings.ToLower(string(resp)), "sec-websocket-accept") {
		return endpoint.NewProtocolError("wsclient: handshake rejected, missing Sec-WebSocket-Accept")
	}
	return nil
}

// SendText writes a single text frame, masked with a fresh random 4-byte
// key as RFC 6455 requires of client-to-server frames. t may be nil to
// skip frame-count instrumentation.
func SendText(ep *endpoint.Endpoint, payload []byte, t telemetryHook) error {
	if err := sendFrame(ep, OpText, payload); err != nil {
		return err
	}
	if t != nil {
		t.AddWSFramesSent(1)
	}
	return nil
}

func sendFrame(ep *endpoint.Endpoint, op Opcode, payload []byte) error {
	b0 := byte(0x80) | byte(op&0x0F)
	plen := len(payload)

	var hdr []byte
	switch {
	case plen <= 125:
		hdr = []byte{b0, byte(plen)}
	case plen <= 0xFFFF:
		hdr = make([]byte, 4)
		hdr[0] = b0
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
	default:
		hdr = make([]byte, 10)
		hdr[0] = b0
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
	}

	var mask [4]byte
	if _, err := rand.Read(mask[:]); err != nil {
		return endpoint.NewProtocolError("wsclient: generating mask: %v", err)
	}
	hdr[1] |= 0x80
	hdr = append(hdr, mask[:]...)
	masked := make([]byte, plen)
	for i, c := range payload {
		masked[i] = c ^ mask[i%4]
	}

	if err := writeFull(ep, hdr); err != nil {
		return err
	}
	return writeFull(ep, masked)
}

// RecvText reads a single frame into buf, NUL-terminating at the decoded
// payload length, and returns the opcode and payload length. If buf is
// too small to hold the payload, RecvText fails with ProtocolError. t may
// be nil to skip frame-count instrumentation.
func RecvText(ep *endpoint.Endpoint, buf []byte, t telemetryHook) (Opcode, int, error) {
	var hdr [2]byte
	if err := readFull(ep, hdr[:]); err != nil {
		return 0, 0, err
	}
	op := Opcode(hdr[0] & 0x0F)
	lenCode := hdr[1] & 0x7F

	var plen uint64
	switch {
	case lenCode <= 125:
		plen = uint64(lenCode)
	case lenCode == 126:
		var ext [2]byte
		if err := readFull(ep, ext[:]); err != nil {
			return 0, 0, err
		}
		plen = uint64(binary.BigEndian.Uint16(ext[:]))
	default:
		var ext [8]byte
		if err := readFull(ep, ext[:]); err != nil {
			return 0, 0, err
		}
		plen = binary.BigEndian.Uint64(ext[:])
	}

	if plen > uint64(len(buf)) {
		return 0, 0, endpoint.NewProtocolError("wsclient: frame of %d bytes exceeds buffer of %d", plen, len(buf))
	}
	if err := readFull(ep, buf[:plen]); err != nil {
		return 0, 0, err
	}
	if int(plen) < len(buf) {
		buf[plen] = 0
	}
	if t != nil {
		t.AddWSFramesRecv(1)
	}
	return op, int(plen), nil
}

func writeFull(ep *endpoint.Endpoint, b []byte) error {
	for len(b) > 0 {
		n, err := ep.Send(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return endpoint.NewProtocolError("wsclient: zero-length write, transport stalled")
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
			return endpoint.NewProtocolError("wsclient: connection closed mid-frame")
		}
		b = b[n:]
	}
	return nil
}
