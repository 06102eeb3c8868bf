package mysql

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// maxPacketPayload is 2^24-1, the largest payload a single MySQL packet
// header can describe; larger writes are chunked into continuations.
const maxPacketPayload = 1<<24 - 1

// transport wraps a net.Conn with MySQL packet framing: 3-byte
// little-endian length + 1-byte sequence id, shared between reader and
// writer (§4.1). It is not safe for concurrent use; callers serialize
// access through the session's exclusive lock.
type transport struct {
	conn       net.Conn
	seq        atomic.Uint32 // holds a byte 0-255, wraps via modulo 256
	readTimeout time.Duration
	maxAllowedPacket uint32
	carry      []byte // bytes consumed before the socket by readExact; nothing in this file fills it
}

func newTransport(conn net.Conn, readTimeout time.Duration, maxAllowedPacket uint32) *transport {
	return &transport{conn: conn, readTimeout: readTimeout, maxAllowedPacket: maxAllowedPacket}
}

// resetSequenceID restores the shared sequence cell to 0; called by the
// protocol session before dispatching each new command (§4.1, §8 inv. 4).
func (t *transport) resetSequenceID() {
	t.seq.Store(0)
}

func (t *transport) nextSeq() byte {
	return byte(t.seq.Add(1) - 1)
}

func (t *transport) peekSeq() byte {
	return byte(t.seq.Load())
}

// writePacket sends one logical MySQL packet, chunking payloads of
// maxPacketPayload or more into continuation packets, each consuming the
// next sequence id. An exact multiple of maxPacketPayload is terminated
// by an empty continuation packet (§8 invariant 1).
func (t *transport) writePacket(payload []byte) error {
	if uint32(len(payload)) > t.maxAllowedPacket {
		return NewPacketTooBig(uint32(len(payload)), t.maxAllowedPacket)
	}
	for {
		chunk := payload
		if len(chunk) > maxPacketPayload {
			chunk = payload[:maxPacketPayload]
		}
		var hdr [4]byte
		hdr[0] = byte(len(chunk))
		hdr[1] = byte(len(chunk) >> 8)
		hdr[2] = byte(len(chunk) >> 16)
		hdr[3] = t.nextSeq()
		if _, err := t.conn.Write(hdr[:]); err != nil {
			return NewIOError(err)
		}
		if len(chunk) > 0 {
			if _, err := t.conn.Write(chunk); err != nil {
				return NewIOError(err)
			}
		}
		payload = payload[len(chunk):]
		if len(chunk) < maxPacketPayload {
			return nil
		}
		if len(payload) == 0 {
			// exact multiple: terminate with an empty continuation
			var empty [4]byte
			empty[3] = t.nextSeq()
			if _, err := t.conn.Write(empty[:]); err != nil {
				return NewIOError(err)
			}
			return nil
		}
	}
}

// readPacket reads one logical MySQL packet, reassembling continuations
// (payload length == maxPacketPayload means "more data follows"), and
// verifies the sequence id matches the expected one.
func (t *transport) readPacket() ([]byte, error) {
	var out []byte
	for {
		if t.readTimeout > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		}
		hdr, err := t.readExact(4)
		if err != nil {
			return nil, err
		}
		length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
		seq := hdr[3]
		expected := t.peekSeq()
		if seq != expected {
			return nil, NewProtocolError("unexpected sequence id: got %d want %d", seq, expected)
		}
		t.nextSeq()
		payload, err := t.readExact(length)
		if err != nil {
			return nil, err
		}
		out = append(out, payload...)
		if length < maxPacketPayload {
			return out, nil
		}
	}
}

// readExact reads exactly n bytes (§4.1 read(n) contract). Any bytes in
// t.carry are used first; each socket read asks only for the bytes still
// missing, so no surplus is ever read and nothing is added to t.carry.
func (t *transport) readExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	copied := copy(buf, t.carry)
	t.carry = t.carry[copied:]
	for copied < n {
		m, err := t.conn.Read(buf[copied:])
		if m > 0 {
			copied += m
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil, NewTimeout("reading packet")
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, NewEOF(n, copied)
			}
			return nil, NewIOError(err)
		}
	}
	return buf, nil
}

// negotiateTLS sends an SSL-request half-packet containing the
// intersected capabilities, then upgrades the underlying connection to
// TLS. The transport's conn is replaced by the TLS connection in place;
// the sequence id is preserved across the upgrade.
func (t *transport) negotiateTLS(cfg *tls.Config, sslRequest []byte) error {
	if err := t.writePacket(sslRequest); err != nil {
		return err
	}
	tlsConn := tls.Client(t.conn, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return NewTLSError(err)
	}
	t.conn = tlsConn
	return nil
}

func (t *transport) Close() error {
	return t.conn.Close()
}
